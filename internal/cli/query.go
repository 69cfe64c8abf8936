package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-engine/internal/engine"
	"github.com/rcliao/context-engine/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query [text or record id]",
		Short: "Assemble context for a question or record",
		Long:  "Run hybrid retrieval, reasoning, and lateral linking concurrently and print the assembled context. A section that times out is marked degraded instead of failing the query.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runQuery,
	}

	cmd.Flags().IntP("top-k", "k", 0, "Max retrieval hits (default: engine setting)")
	cmd.Flags().String("dimensions", "", "Comma-separated lateral dimensions (default: all)")
	cmd.Flags().Bool("no-reasoning", false, "Skip the reasoning section")
	cmd.Flags().Duration("timeout", 0, "Per-section timeout (default: engine setting)")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	topK, _ := cmd.Flags().GetInt("top-k")
	dimsStr, _ := cmd.Flags().GetString("dimensions")
	noReasoning, _ := cmd.Flags().GetBool("no-reasoning")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	dims, err := parseDimensions(dimsStr)
	if err != nil {
		exitErr("parse --dimensions", err)
	}

	opts := engine.Options{TopK: topK, Dimensions: dims, Timeout: timeout}
	if noReasoning {
		off := false
		opts.Reasoning = &off
	}

	o, closer, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	ic, err := o.Query(cmd.Context(), strings.Join(args, " "), opts)
	if err != nil {
		exitErr("query", err)
	}

	if formatFlag == "text" {
		printContextText(ic)
		return
	}
	b, _ := json.MarshalIndent(ic, "", "  ")
	fmt.Println(string(b))
}

func parseDimensions(s string) ([]model.Dimension, error) {
	if s == "" {
		return nil, nil
	}
	var dims []model.Dimension
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := model.ParseDimension(part)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func printContextText(ic *model.IntelligentContext) {
	fmt.Printf("query: %s\n", ic.Query)
	if ic.RecordID != "" {
		fmt.Printf("anchor: %s\n", ic.RecordID)
	}

	fmt.Printf("\nhits (%d)%s:\n", len(ic.Hits), statusSuffix(ic.RetrievalStatus))
	for _, h := range ic.Hits {
		fmt.Printf("  %.3f  %s  %s\n", h.FusedScore, h.RecordID, oneLine(h.Record.Text, 70))
	}

	if ic.Reasoning != nil {
		fmt.Printf("\nreasoning [%s]%s:\n", ic.Reasoning.State, statusSuffix(ic.ReasoningStatus))
		for _, s := range ic.Reasoning.Steps {
			marker := " "
			if s.Index == ic.Reasoning.ConclusionIndex {
				marker = "*"
			}
			fmt.Printf("  %s %d. (%.2f) %s\n", marker, s.Index, s.Confidence, s.Claim)
		}
	}

	fmt.Printf("\nconnections (%d)%s:\n", len(ic.Connections), statusSuffix(ic.LateralStatus))
	for _, c := range ic.Connections {
		fmt.Printf("  %.2f  %-18s %s <-> %s  %s\n", c.Strength, c.Dimension, c.RecordA, c.RecordB, c.Rationale)
	}

	fmt.Printf("\ngenerated at %s\n", ic.GeneratedAt.Format(time.RFC3339))
}

func statusSuffix(s model.SectionStatus) string {
	if !s.Degraded {
		return ""
	}
	return fmt.Sprintf(" [degraded: %s]", s.Reason)
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		cut := max - 3
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
