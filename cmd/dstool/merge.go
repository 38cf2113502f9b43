package main

import (
	"github.com/grailbio/base/vcontext"
	"github.com/pacbioseq/dataset/dataset"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <output.xml> <input.xml>...",
	Short: "Merge dataset records",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := vcontext.Background()
		opts := dataset.Options{Strict: flagStrict, SkipCounts: flagSkipCounts}
		sets := make([]*dataset.DataSet, 0, len(args)-1)
		for _, path := range args[1:] {
			d, err := dataset.Open(ctx, path, opts)
			if err != nil {
				return err
			}
			defer d.Close() // nolint: errcheck
			sets = append(sets, d)
		}
		merged, err := dataset.MergeAll(sets...)
		if err != nil {
			return err
		}
		return merged.Write(ctx, args[0])
	},
}
