// dstool manipulates dataset records: create, merge, split, path rewrites,
// fofn export, and summaries.
package main

import (
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/spf13/cobra"

	// Register the resource adapters.
	_ "github.com/pacbioseq/dataset/bamio"
	_ "github.com/pacbioseq/dataset/fastaio"
)

var (
	flagStrict     bool
	flagSkipCounts bool
)

var rootCmd = &cobra.Command{
	Use:   "dstool",
	Short: "dstool - dataset record tools",
	Long: `dstool creates and manipulates dataset records: typed collections of
sequencing resource files (BAM, FASTA) with filters, subdatasets, and
companion indices.`,
}

func main() {
	shutdown := grail.Init()
	defer shutdown()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagStrict, "strict", false,
		"fail instead of degrading on missing indices and mismatched resources")
	rootCmd.PersistentFlags().BoolVar(&flagSkipCounts, "skip-counts", false,
		"do not compute record counts")
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(absolutizeCmd)
	rootCmd.AddCommand(relativizeCmd)
	rootCmd.AddCommand(toFofnCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(consolidateCmd)
}
