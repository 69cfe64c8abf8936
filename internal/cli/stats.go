package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run:   runStats,
	}
	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if formatFlag == "text" {
		fmt.Printf("db: %s (%d bytes)\n", st.DBPath, st.DBSizeBytes)
		fmt.Printf("records: %d (%d pending embedding)\n", st.TotalRecords, st.PendingEmbedding)
		for tier, n := range st.Tiers {
			fmt.Printf("  %s: %d\n", tier, n)
		}
		return
	}
	b, _ := json.MarshalIndent(st, "", "  ")
	fmt.Println(string(b))
}
