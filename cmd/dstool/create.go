package main

import (
	"github.com/grailbio/base/vcontext"
	"github.com/pacbioseq/dataset/dataset"
	"github.com/spf13/cobra"
)

var createKind string

var createCmd = &cobra.Command{
	Use:   "create <output.xml> <input>...",
	Short: "Create a dataset record from resource files, records, or fofns",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := vcontext.Background()
		opts := dataset.Options{Strict: flagStrict, SkipCounts: flagSkipCounts}
		var (
			d   *dataset.DataSet
			err error
		)
		if createKind == "" {
			d, err = dataset.OpenDataFile(ctx, opts, args[1:]...)
		} else {
			var kind dataset.Kind
			if kind, err = dataset.KindForRootTag(createKind); err != nil {
				return err
			}
			d, err = dataset.OpenKind(ctx, kind, opts, args[1:]...)
		}
		if err != nil {
			return err
		}
		defer d.Close() // nolint: errcheck
		return d.Write(ctx, args[0])
	},
}

func init() {
	createCmd.Flags().StringVar(&createKind, "type", "",
		"dataset type (SubreadSet, AlignmentSet, ...); divined from the inputs when empty")
}
