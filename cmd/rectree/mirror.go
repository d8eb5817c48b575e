package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/rectree"
	"github.com/hupe1980/rectree/blobstore"
	"github.com/hupe1980/rectree/blobstore/s3"
	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	b := &backendFlags{}

	cmd := &cobra.Command{
		Use:   "push FILE",
		Short: "Upload a saved tree file to a blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			// Refuse to publish a file that does not parse.
			if _, err := readHeader(path); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			store, err := b.open(ctx)
			if err != nil {
				return err
			}

			name := treeName(path)
			object := rectree.SavedFileName(name)
			committer, versioned := store.(blobstore.Committer)
			if versioned {
				object = rectree.GenerationName(name)
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			size := int64(-1)
			if fi, err := f.Stat(); err == nil {
				size = fi.Size()
			}
			if err := store.Put(ctx, object, f, size); err != nil {
				return fmt.Errorf("push %s: %w", object, err)
			}
			if versioned {
				if err := committer.Commit(ctx, name, object); err != nil {
					return fmt.Errorf("commit %s: %w", object, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s\n", object)
			return nil
		},
	}
	b.register(cmd)
	return cmd
}

func newPullCmd(g *globalFlags) *cobra.Command {
	var (
		b       = &backendFlags{}
		version uint64
		verify  bool
	)

	cmd := &cobra.Command{
		Use:   "pull NAME DIR",
		Short: "Download the current (or a given) version of a tree into DIR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, dir := args[0], args[1]

			store, err := b.open(ctx)
			if err != nil {
				return err
			}

			object := rectree.SavedFileName(name)
			switch c := store.(type) {
			case *s3.CommitStore:
				if version > 0 {
					object, err = c.Version(ctx, name, version)
				} else {
					object, err = c.Current(ctx, name)
				}
			case blobstore.Committer:
				if version > 0 {
					return fmt.Errorf("--version: %w", errNotVersioned)
				}
				object, err = c.Current(ctx, name)
			default:
				if version > 0 {
					return fmt.Errorf("--version: %w", errNotVersioned)
				}
			}
			if err != nil {
				return fmt.Errorf("resolve %s: %w", name, err)
			}

			path := filepath.Join(dir, rectree.SavedFileName(name))
			if err := download(cmd, store, object, path); err != nil {
				return fmt.Errorf("pull %s: %w", object, err)
			}

			if verify {
				t, err := openFile(cmd, g, path)
				if t != nil {
					defer t.Close()
				}
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pulled %s to %s\n", object, path)
			return nil
		},
	}
	b.register(cmd)
	cmd.Flags().Uint64Var(&version, "version", 0, "commit version to pull (0 = current)")
	cmd.Flags().BoolVar(&verify, "verify", false, "load and check the file after download")
	return cmd
}

func download(cmd *cobra.Command, store blobstore.Store, object, path string) error {
	rc, err := store.Get(cmd.Context(), object)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".pull-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func newPruneCmd() *cobra.Command {
	var (
		b    = &backendFlags{}
		keep int
	)

	cmd := &cobra.Command{
		Use:   "prune NAME",
		Short: "Delete all but the newest committed versions of a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1, got %d", keep)
			}

			store, err := b.open(cmd.Context())
			if err != nil {
				return err
			}
			cs, ok := store.(*s3.CommitStore)
			if !ok {
				return errNotVersioned
			}

			n, err := cs.Prune(cmd.Context(), args[0], keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d versions\n", n)
			return nil
		},
	}
	b.register(cmd)
	cmd.Flags().IntVar(&keep, "keep", 3, "number of newest versions to keep")
	return cmd
}
