package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-engine/internal/lateral"
)

func init() {
	cmd := &cobra.Command{
		Use:   "connections [record id]",
		Short: "Find lateral connections for a record",
		Long:  "Scan stored records for connections to the given record across dimensions such as topic, emotional tone, and recurrence.",
		Args:  cobra.ExactArgs(1),
		Run:   runConnections,
	}

	cmd.Flags().String("dimensions", "", "Comma-separated dimensions (default: all)")
	cmd.Flags().Float64("min-strength", lateral.DefaultMinStrength, "Minimum connection strength")

	RootCmd.AddCommand(cmd)
}

func runConnections(cmd *cobra.Command, args []string) {
	dimsStr, _ := cmd.Flags().GetString("dimensions")
	minStrength, _ := cmd.Flags().GetFloat64("min-strength")

	dims, err := parseDimensions(dimsStr)
	if err != nil {
		exitErr("parse --dimensions", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	l := lateral.New(s, lateral.DefaultConfig(), newLogger())
	conns, err := l.FindConnections(cmd.Context(), args[0], dims, minStrength)
	if err != nil {
		exitErr("find connections", err)
	}

	if formatFlag == "text" {
		for _, c := range conns {
			fmt.Printf("%.2f  %-18s %s <-> %s  %s\n", c.Strength, c.Dimension, c.RecordA, c.RecordB, c.Rationale)
		}
		return
	}
	if len(conns) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(conns, "", "  ")
	fmt.Println(string(b))
}
