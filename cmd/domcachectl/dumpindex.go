package main

import (
	"fmt"
	"strings"

	"github.com/ghemawat/stream"
	"github.com/spf13/cobra"

	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/internal/base"
)

func newDumpIndexCmd() *cobra.Command {
	var grep string
	cmd := &cobra.Command{
		Use:   "dump-index <path>",
		Short: "Print one line per live block, optionally filtered by a regexp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDumpIndex(args[0], grep)
		},
	}
	cmd.Flags().StringVar(&grep, "grep", "", "only print lines matching this regexp (e.g. TEXT_DATA, FONT_DATA)")
	return cmd
}

func runDumpIndex(path, grep string) error {
	ct, err := compressionFromFlag(flagCompress)
	if err != nil {
		return err
	}
	f, err := cache.Open(path, cache.Options{DomVersion: flagDomVersion, Compress: ct, Logger: base.NoopLogger{}})
	if err != nil {
		return err
	}
	defer f.Close()

	var lines []string
	for _, b := range f.Inspect() {
		lines = append(lines, fmt.Sprintf("%s[%d] pos=%d block=%d data=%d compressed=%v",
			b.Type, b.Index, b.FilePos, b.BlockSize, b.DataSize, b.Compressed))
	}

	filters := []stream.Filter{stream.Lines(strings.Join(lines, "\n"))}
	if grep != "" {
		filters = append(filters, stream.Grep(grep))
	}
	var printed int
	filters = append(filters, stream.ForEach(func(s string) {
		fmt.Println(s)
		printed++
	}))
	if err := stream.Run(filters...); err != nil {
		return fmt.Errorf("domcachectl: dump-index: %w", err)
	}
	if printed == 0 {
		fmt.Println("(no matching blocks)")
	}
	return nil
}
