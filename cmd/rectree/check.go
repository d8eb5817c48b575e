package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hupe1980/rectree"
	"github.com/spf13/cobra"
)

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Load a saved tree file and verify its integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openFile(cmd, g, args[0])
			if t != nil {
				defer t.Close()
			}
			if err != nil {
				var ce *rectree.CorruptionError
				if errors.As(err, &ce) {
					fmt.Fprintf(cmd.OutOrStdout(), "corrupt: slot %d: %s\n", ce.Slot, ce.Reason)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d records (%d live, %d tombstones), height %d\n",
				t.Used(), t.LiveCount(), t.TombstoneCount(), t.Height())
			return nil
		},
	}
}

func newRepairCmd(g *globalFlags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "repair FILE",
		Short: "Rebuild a damaged tree file from its valid records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openFile(cmd, g, args[0])
			if t == nil {
				return err
			}
			defer t.Close()

			if err != nil && !errors.Is(err, rectree.ErrCorrupt) {
				return err
			}

			dropped, err := t.Repair()
			if err != nil {
				return err
			}

			dir := out
			if dir == "" {
				dir = filepath.Dir(args[0])
			}
			if err := t.SaveSync(cmd.Context(), dir); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "repaired: kept %d, dropped %d, saved to %s\n",
				t.Used(), dropped, filepath.Join(dir, rectree.SavedFileName(t.Config().Name)))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "directory to write the repaired file to (default: next to FILE)")
	return cmd
}
