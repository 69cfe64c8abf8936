package lateral

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rcliao/context-engine/internal/model"
)

// strengthFunc computes a bounded [0,1] strength for one dimension.
// Strengths are not comparable across dimensions and are never summed.
type strengthFunc func(a, b *model.Record, cfg Config) (float64, string)

var strengthFuncs = map[model.Dimension]strengthFunc{
	model.DimTopic:      topicStrength,
	model.DimEmotion:    emotionStrength,
	model.DimTemporal:   temporalStrength,
	model.DimActor:      actorStrength,
	model.DimOutcome:    outcomeStrength,
	model.DimRecurrence: recurrenceStrength,
	model.DimDomain:     domainStrength,
}

// topicStrength measures shared subject matter via tag and content-token
// overlap.
func topicStrength(a, b *model.Record, _ Config) (float64, string) {
	tokA, tokB := contentTokens(a.Text), contentTokens(b.Text)
	shared := intersect(tokA, tokB)
	tokenScore := overlapCoefficient(len(shared), len(tokA), len(tokB))

	tagA, tagB := tagSet(a.Tags), tagSet(b.Tags)
	if len(tagA) > 0 && len(tagB) > 0 {
		sharedTags := intersect(tagA, tagB)
		tagScore := overlapCoefficient(len(sharedTags), len(tagA), len(tagB))
		score := 0.5*tokenScore + 0.5*tagScore
		return score, rationaleTerms("shares topics", append(sorted(shared), sorted(sharedTags)...))
	}

	return tokenScore, rationaleTerms("shares topics", sorted(shared))
}

var positiveCues = map[string]bool{
	"great": true, "good": true, "happy": true, "glad": true, "excited": true,
	"energized": true, "calm": true, "proud": true, "relieved": true, "well": true,
}

var negativeCues = map[string]bool{
	"behind": true, "stressed": true, "anxious": true, "tired": true,
	"worried": true, "frustrated": true, "overwhelmed": true, "sad": true,
	"angry": true, "exhausted": true, "drained": true, "late": true,
}

// emotionStrength compares the valence of the two records. Records without
// any emotional cue never connect on this dimension.
func emotionStrength(a, b *model.Record, _ Config) (float64, string) {
	toneA, okA := tone(a.Text)
	toneB, okB := tone(b.Text)
	if !okA || !okB {
		return 0, ""
	}
	strength := 1 - math.Abs(toneA-toneB)/2
	lean := "mixed"
	switch {
	case toneA > 0 && toneB > 0:
		lean = "positive"
	case toneA < 0 && toneB < 0:
		lean = "negative"
	}
	return strength, fmt.Sprintf("similar emotional tone (both lean %s)", lean)
}

func tone(text string) (float64, bool) {
	var pos, neg int
	for tok := range contentTokens(text) {
		if positiveCues[tok] {
			pos++
		}
		if negativeCues[tok] {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, false
	}
	return float64(pos-neg) / float64(pos+neg), true
}

// temporalStrength decays exponentially with the gap between creation
// times.
func temporalStrength(a, b *model.Record, cfg Config) (float64, string) {
	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	halfLife := cfg.TemporalHalfLife
	if halfLife <= 0 {
		halfLife = DefaultConfig().TemporalHalfLife
	}
	strength := math.Exp(-math.Ln2 * gap.Hours() / halfLife.Hours())
	return strength, fmt.Sprintf("created %s apart", gap.Round(time.Hour))
}

// dayAndMonthNames keeps calendar words out of the actor heuristic.
var dayAndMonthNames = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// actorStrength matches capitalized names appearing in both records.
func actorStrength(a, b *model.Record, _ Config) (float64, string) {
	actA, actB := actorSet(a.Text), actorSet(b.Text)
	shared := intersect(actA, actB)
	if len(shared) == 0 {
		return 0, ""
	}
	return overlapCoefficient(len(shared), len(actA), len(actB)),
		rationaleTerms("mentions the same people", sorted(shared))
}

func actorSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:'\"()")
		if len(word) < 3 {
			continue
		}
		runes := []rune(word)
		if !unicode.IsUpper(runes[0]) {
			continue
		}
		lower := strings.ToLower(word)
		if dayAndMonthNames[lower] || stopwords[lower] {
			continue
		}
		set[lower] = true
	}
	return set
}

var completionCues = map[string]bool{
	"finished": true, "done": true, "shipped": true, "completed": true,
	"resolved": true, "launched": true, "delivered": true, "closed": true,
	"fixed": true,
}

var setbackCues = map[string]bool{
	"failed": true, "blocked": true, "missed": true, "behind": true,
	"delayed": true, "stuck": true, "slipped": true, "cancelled": true,
	"broke": true,
}

// outcomeStrength connects records describing how things ended. Matching
// outcome classes bind strongly; contrasting ones weakly.
func outcomeStrength(a, b *model.Record, _ Config) (float64, string) {
	doneA, failA := outcomeClass(a.Text)
	doneB, failB := outcomeClass(b.Text)
	if !(doneA || failA) || !(doneB || failB) {
		return 0, ""
	}
	switch {
	case doneA && doneB:
		return 0.9, "both describe completed outcomes"
	case failA && failB:
		return 0.9, "both describe setbacks"
	default:
		return 0.4, "contrasting outcomes"
	}
}

func outcomeClass(text string) (done, fail bool) {
	for tok := range contentTokens(text) {
		if completionCues[tok] {
			done = true
		}
		if setbackCues[tok] {
			fail = true
		}
	}
	return done, fail
}

// recurrenceStrength finds the same subject resurfacing after a real gap,
// which plain similarity search buries under recency.
func recurrenceStrength(a, b *model.Record, cfg Config) (float64, string) {
	minGap := cfg.RecurrenceMinGap
	if minGap <= 0 {
		minGap = DefaultConfig().RecurrenceMinGap
	}
	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap < minGap {
		return 0, ""
	}

	tokA, tokB := contentTokens(a.Text), contentTokens(b.Text)
	shared := intersect(tokA, tokB)
	if len(shared) == 0 {
		return 0, ""
	}
	strength := overlapCoefficient(len(shared), len(tokA), len(tokB))
	days := int(gap.Hours() / 24)
	return strength, fmt.Sprintf("%s recur after %d days", strings.Join(sorted(shared), ", "), days)
}

// domainBuckets maps life areas to signal words.
var domainBuckets = map[string][]string{
	"work":    {"meeting", "deadline", "deliverable", "sprint", "review", "project", "client", "standup", "presentation"},
	"health":  {"sleep", "run", "workout", "gym", "diet", "exercise", "doctor", "rest"},
	"finance": {"budget", "rent", "invoice", "expense", "savings", "salary", "taxes"},
	"social":  {"dinner", "friend", "family", "party", "birthday", "visit"},
}

// domainStrength combines producing-source affinity with shared life-area
// vocabulary.
func domainStrength(a, b *model.Record, _ Config) (float64, string) {
	bucketsA, bucketsB := buckets(a.Text), buckets(b.Text)
	shared := intersect(bucketsA, bucketsB)

	score := 0.0
	var parts []string
	if a.Source == b.Source {
		score += 0.5
		parts = append(parts, fmt.Sprintf("same source %q", a.Source))
	}
	if len(shared) > 0 {
		score += 0.5 * overlapCoefficient(len(shared), len(bucketsA), len(bucketsB))
		parts = append(parts, rationaleTerms("shared domain", sorted(shared)))
	}
	if score == 0 {
		return 0, ""
	}
	return score, strings.Join(parts, "; ")
}

func buckets(text string) map[string]bool {
	tokens := contentTokens(text)
	set := make(map[string]bool)
	for name, words := range domainBuckets {
		for _, w := range words {
			if tokens[w] {
				set[name] = true
				break
			}
		}
	}
	return set
}

// --- shared helpers ---

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "was": true, "are": true,
	"with": true, "this": true, "that": true, "from": true, "have": true,
	"felt": true, "been": true, "about": true, "into": true, "over": true,
}

func contentTokens(text string) map[string]bool {
	set := make(map[string]bool)
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			set[f] = true
		}
	}
	return set
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[strings.ToLower(t)] = true
	}
	return set
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

// overlapCoefficient is |intersection| / min(|a|, |b|), which favors a small
// record fully contained in a larger one.
func overlapCoefficient(shared, lenA, lenB int) float64 {
	min := lenA
	if lenB < min {
		min = lenB
	}
	if min == 0 {
		return 0
	}
	v := float64(shared) / float64(min)
	if v > 1 {
		v = 1
	}
	return v
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func rationaleTerms(prefix string, terms []string) string {
	if len(terms) == 0 {
		return prefix
	}
	if len(terms) > 4 {
		terms = terms[:4]
	}
	return prefix + ": " + strings.Join(terms, ", ")
}
