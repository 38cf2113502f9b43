package main

import (
	"fmt"

	"github.com/grailbio/base/vcontext"
	"github.com/pacbioseq/dataset/dataset"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <input.xml>",
	Short: "Summarize a dataset record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := vcontext.Background()
		d, err := dataset.Open(ctx, args[0], dataset.Options{Strict: flagStrict, SkipCounts: true})
		if err != nil {
			return err
		}
		defer d.Close() // nolint: errcheck
		fmt.Printf("Type:         %s\n", d.Kind())
		fmt.Printf("Name:         %s\n", d.Name())
		fmt.Printf("UniqueId:     %s\n", d.UUID())
		fmt.Printf("Version:      %s\n", d.Version())
		fmt.Printf("NumRecords:   %d\n", d.NumRecords())
		fmt.Printf("TotalLength:  %d\n", d.TotalLength())
		fmt.Printf("Resources:    %d\n", d.NumExternalResources())
		fmt.Printf("SubDatasets:  %d\n", len(d.SubDatasets()))
		fmt.Printf("Filters:      %s\n", d.Filters().String())
		for _, p := range d.ToFofn(false) {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

var consolidateNumFiles int

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <input.xml> <output-resource> <output.xml>",
	Short: "Rewrite a dataset's resources into fewer files",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := vcontext.Background()
		d, err := dataset.Open(ctx, args[0], dataset.Options{Strict: flagStrict, SkipCounts: true})
		if err != nil {
			return err
		}
		defer d.Close() // nolint: errcheck
		if err := d.Consolidate(ctx, args[1], consolidateNumFiles); err != nil {
			return err
		}
		return d.Write(ctx, args[2])
	},
}

func init() {
	consolidateCmd.Flags().IntVar(&consolidateNumFiles, "num-files", 1,
		"number of output resource files")
}
