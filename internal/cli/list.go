package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-engine/internal/model"
	"github.com/rcliao/context-engine/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		Run:   runList,
	}

	cmd.Flags().String("tier", "", "Filter by tier: recent or archival")
	cmd.Flags().StringP("source", "s", "", "Filter by source")
	cmd.Flags().String("since", "", "Only records created after this time (RFC 3339)")
	cmd.Flags().IntP("limit", "l", 50, "Max results")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	tierStr, _ := cmd.Flags().GetString("tier")
	source, _ := cmd.Flags().GetString("source")
	sinceStr, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")

	tier := model.Tier(tierStr)
	if tierStr != "" && !model.ValidTiers[tier] {
		exitErr("list", fmt.Errorf("unknown tier %q", tierStr))
	}

	var since time.Time
	if sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			exitErr("parse --since", err)
		}
		since = parsed
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	recs, err := s.List(cmd.Context(), store.ListParams{
		Tier:   tier,
		Source: source,
		Since:  since,
		Limit:  limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if formatFlag == "text" {
		for _, r := range recs {
			fmt.Printf("%s  [%s]  %s  %s\n", r.ID, r.Tier, r.CreatedAt.Format("2006-01-02 15:04"), oneLine(r.Text, 60))
		}
		return
	}
	if len(recs) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(recs, "", "  ")
	fmt.Println(string(b))
}
