package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get [record id]",
		Short: "Fetch a record by id",
		Long:  "Fetch a single record. Reads count toward the access-based promotion policy.",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	if formatFlag == "text" {
		fmt.Printf("%s  [%s]  %s\n%s\n", rec.ID, rec.Tier, rec.CreatedAt.Format("2006-01-02 15:04"), rec.Text)
		return
	}
	b, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(b))
}
