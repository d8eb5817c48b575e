package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the header of a saved tree file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := readHeader(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "version:     %d\n", h.Version)
			fmt.Fprintf(w, "capacity:    %d\n", h.Capacity)
			fmt.Fprintf(w, "key size:    %d\n", h.KeySize)
			fmt.Fprintf(w, "data size:   %d\n", h.DataSize)
			fmt.Fprintf(w, "used:        %d\n", h.Used)
			fmt.Fprintf(w, "high water:  %d\n", h.HighWater)
			fmt.Fprintf(w, "root:        %d\n", h.Root)
			fmt.Fprintf(w, "free head:   %d\n", h.FreeHead)
			fmt.Fprintf(w, "live:        %d\n", h.Live)
			fmt.Fprintf(w, "tombstones:  %d\n", h.Tombstones)
			fmt.Fprintf(w, "balanced:    %t\n", h.Balanced)
			fmt.Fprintf(w, "owns data:   %t\n", h.OwnsData)
			fmt.Fprintf(w, "compression: %s\n", h.Compression)
			fmt.Fprintf(w, "block size:  %d\n", h.BlockSize)
			return nil
		},
	}
}
