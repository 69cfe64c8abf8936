package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-engine/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Store an observation",
		Long:  "Store an observation. Text can be a positional arg or piped via stdin. Embedding and tier promotion happen in the background.",
		Run:   runIngest,
	}

	cmd.Flags().StringP("source", "s", "", "Producing source (required)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("supersedes", "", "ID of the record this one corrects")
	cmd.Flags().String("at", "", "Creation time override (RFC 3339)")

	cmd.MarkFlagRequired("source")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	tagsStr, _ := cmd.Flags().GetString("tags")
	supersedes, _ := cmd.Flags().GetString("supersedes")
	atStr, _ := cmd.Flags().GetString("at")

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}

	if strings.TrimSpace(text) == "" {
		exitErr("ingest", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	var tags []string
	if tagsStr != "" {
		for _, t := range strings.Split(tagsStr, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
	}

	var at time.Time
	if atStr != "" {
		parsed, err := time.Parse(time.RFC3339, atStr)
		if err != nil {
			exitErr("parse --at", err)
		}
		at = parsed
	}

	o, closer, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	rec, err := o.Ingest(cmd.Context(), store.StoreParams{
		Text:       text,
		Source:     source,
		Tags:       tags,
		Supersedes: supersedes,
		CreatedAt:  at,
	})
	if err != nil {
		exitErr("ingest", err)
	}

	if formatFlag == "text" {
		fmt.Println(rec.ID)
		return
	}
	b, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(b))
}
