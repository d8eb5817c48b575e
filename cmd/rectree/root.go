package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/rectree"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:          "rectree",
		Short:        "Inspect, check, repair and mirror saved rectree files",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInspectCmd(),
		newCheckCmd(g),
		newRepairCmd(g),
		newDumpCmd(g),
		newPushCmd(),
		newPullCmd(g),
		newPruneCmd(),
	)
	return root
}

func (g *globalFlags) logger() (*rectree.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", g.logLevel)
	}
	return rectree.NewTextLogger(level), nil
}

// treeName derives a tree's name from its saved file name.
func treeName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), "-saved.dat")
}

func readHeader(path string) (*rectree.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return rectree.ReadHeader(f)
}

// openFile creates a tree shaped like the saved file at path and loads it.
// The returned error is the load outcome; the tree is non-nil whenever the
// header could be read.
func openFile(cmd *cobra.Command, g *globalFlags, path string, opts ...rectree.Option) (*rectree.Tree, error) {
	h, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	logger, err := g.logger()
	if err != nil {
		return nil, err
	}

	cfg := rectree.Config{
		Name:             treeName(path),
		KeySize:          int(h.KeySize),
		DataSize:         int(h.DataSize),
		Capacity:         max(int(h.Capacity), int(h.HighWater), 1),
		OwnsData:         true,
		DisableBalancing: !h.Balanced,
		Compression:      h.Compression,
	}

	opts = append([]rectree.Option{
		rectree.WithLogger(logger),
		rectree.WithBackgroundWorkers(0),
		rectree.WithFatalHandler(func(err error) { logger.Error("fatal", "error", err) }),
	}, opts...)

	t, err := rectree.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return t, t.Load(cmd.Context(), path)
}
