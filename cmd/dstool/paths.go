package main

import (
	"fmt"
	"os"

	"github.com/grailbio/base/vcontext"
	"github.com/pacbioseq/dataset/dataset"
	"github.com/spf13/cobra"
)

var pathStart string

func rewrite(inPath, outPath string, rel bool) error {
	ctx := vcontext.Background()
	d, err := dataset.Open(ctx, inPath, dataset.Options{Strict: flagStrict, SkipCounts: true})
	if err != nil {
		return err
	}
	defer d.Close() // nolint: errcheck
	start := pathStart
	if start == "" {
		if start, err = os.Getwd(); err != nil {
			return err
		}
	}
	if rel {
		err = d.MakePathsRelative(start)
	} else {
		err = d.MakePathsAbsolute(start)
	}
	if err != nil {
		return err
	}
	return d.Write(ctx, outPath)
}

var absolutizeCmd = &cobra.Command{
	Use:   "absolutize <input.xml> <output.xml>",
	Short: "Rewrite resource paths to absolute form",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return rewrite(args[0], args[1], false)
	},
}

var relativizeCmd = &cobra.Command{
	Use:   "relativize <input.xml> <output.xml>",
	Short: "Rewrite resource paths relative to a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return rewrite(args[0], args[1], true)
	},
}

var toFofnCmd = &cobra.Command{
	Use:   "tofofn <input.xml>",
	Short: "Print the resource paths of a dataset record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := vcontext.Background()
		d, err := dataset.Open(ctx, args[0], dataset.Options{Strict: flagStrict, SkipCounts: true})
		if err != nil {
			return err
		}
		defer d.Close() // nolint: errcheck
		for _, p := range d.ToFofn(false) {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{absolutizeCmd, relativizeCmd} {
		cmd.Flags().StringVar(&pathStart, "start", "",
			"directory to resolve against (default: working directory)")
	}
}
