package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from stored embeddings",
		Long:  "Drop and rebuild the vector index from the database. Use after index corruption or after moving the database file.",
		Run:   runReindex,
	}
	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.RebuildIndex(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}
	fmt.Println("index rebuilt")
}
