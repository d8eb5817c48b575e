package main

import (
	"encoding/hex"
	"fmt"

	"github.com/hupe1980/rectree"
	"github.com/hupe1980/rectree/namespace"
	"github.com/spf13/cobra"
)

func newDumpCmd(g *globalFlags) *cobra.Command {
	var (
		ns         int
		limit      int
		tombstones bool
	)

	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the records of a saved tree file in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openFile(cmd, g, args[0])
			if t != nil {
				defer t.Close()
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			n := 0
			for i := t.First(); i != rectree.Nil; i = t.Successor(i) {
				id, key, err := t.Slot(i)
				if err != nil {
					return err
				}
				if ns >= 0 && id != namespace.ID(ns) {
					continue
				}
				tomb := rectree.IsTombstone(key)
				if tomb && !tombstones {
					continue
				}

				data, err := t.GetData(i)
				if err != nil {
					return err
				}
				marker := "+"
				if tomb {
					marker = "-"
				}
				fmt.Fprintf(w, "%s %d %s %d\n", marker, id, hex.EncodeToString(key), len(data))

				n++
				if limit > 0 && n >= limit {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&ns, "ns", -1, "only dump this namespace")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many records (0 = all)")
	cmd.Flags().BoolVar(&tombstones, "tombstones", false, "include tombstones")
	return cmd
}
