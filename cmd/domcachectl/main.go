// Command domcachectl inspects, validates, and dumps the block index of a
// cache file produced by package cache (SPEC_FULL.md §6's "domcachectl"
// operator tool). It never parses a document itself; every subcommand works
// purely off cache.File's already-exported introspection surface
// (File.Inspect, File.FreeListSize, Options.ValidateContents).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/readflow/domcache/cache"
)

var (
	flagDomVersion uint32
	flagCompress   string
)

func compressionFromFlag(s string) (cache.CompressionType, error) {
	switch s {
	case "none", "":
		return cache.CompressionNone, nil
	case "zlib":
		return cache.CompressionZlib, nil
	case "zstd":
		return cache.CompressionZstd, nil
	default:
		return 0, fmt.Errorf("domcachectl: unknown --compress value %q (want none, zlib, or zstd)", s)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "domcachectl",
		Short: "Inspect and validate CoolReader-style dom cache files",
	}
	root.PersistentFlags().Uint32Var(&flagDomVersion, "dom-version", 0, "dom_version recorded in the cache file header")
	root.PersistentFlags().StringVar(&flagCompress, "compress", "none", "compression the cache file was created with: none, zlib, zstd")
	root.AddCommand(newInspectCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newDumpIndexCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
