package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"time"
)

// StaticEmbedder is a deterministic embedder for tests and offline use.
// Each token hashes into a fixed bucket, so texts sharing words produce
// similar vectors without any model. Err and Delay inject backend failures
// and latency for degradation tests.
type StaticEmbedder struct {
	dims  int
	Err   error
	Delay time.Duration
}

// NewStaticEmbedder creates a deterministic embedder. dims <= 0 defaults
// to 64.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &StaticEmbedder{dims: dims}
}

func (e *StaticEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.Err != nil {
		return nil, e.Err
	}

	text = strings.TrimPrefix(text, QueryPrefix)
	vec := make(Vector, e.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dims]++
	}
	Normalize(vec)
	return vec, nil
}

func (e *StaticEmbedder) Dims() int { return e.dims }
