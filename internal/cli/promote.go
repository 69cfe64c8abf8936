package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "promote [record id...]",
		Short: "Promote records to the archival tier",
		Long:  "Promote the given records, or with --sweep every record the promotion policy has made eligible. Promoting an archival record is a no-op.",
		Run:   runPromote,
	}

	cmd.Flags().Bool("sweep", false, "Promote all eligible records instead of named ones")
	cmd.Flags().Duration("min-age", 72*time.Hour, "Sweep: minimum record age")
	cmd.Flags().Int("min-access", 5, "Sweep: access count that promotes early")

	RootCmd.AddCommand(cmd)
}

func runPromote(cmd *cobra.Command, args []string) {
	sweep, _ := cmd.Flags().GetBool("sweep")
	minAge, _ := cmd.Flags().GetDuration("min-age")
	minAccess, _ := cmd.Flags().GetInt("min-access")

	if !sweep && len(args) == 0 {
		exitErr("promote", fmt.Errorf("record ids or --sweep required"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ids := args
	if sweep {
		ids, err = s.PromotionCandidates(cmd.Context(), minAge, minAccess)
		if err != nil {
			exitErr("promotion sweep", err)
		}
	}

	promoted := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := s.Promote(cmd.Context(), id); err != nil {
			exitErr("promote "+id, err)
		}
		promoted = append(promoted, id)
	}

	if formatFlag == "text" {
		fmt.Printf("promoted %d record(s)\n", len(promoted))
		return
	}
	b, _ := json.MarshalIndent(map[string]any{"promoted": promoted}, "", "  ")
	fmt.Println(string(b))
}
