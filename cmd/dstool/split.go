package main

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/vcontext"
	"github.com/pacbioseq/dataset/dataset"
	"github.com/spf13/cobra"
)

var splitOpts struct {
	chunks       int
	maxChunks    int
	subdatasets  bool
	contigs      bool
	zmws         bool
	barcodes     bool
	byRecords    bool
	breakContigs bool
	targetSize   int
	outPrefix    string
}

var splitCmd = &cobra.Command{
	Use:   "split <input.xml>",
	Short: "Split a dataset record into chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := vcontext.Background()
		d, err := dataset.Open(ctx, args[0], dataset.Options{Strict: flagStrict, SkipCounts: true})
		if err != nil {
			return err
		}
		defer d.Close() // nolint: errcheck
		chunks, err := d.Split(ctx, dataset.SplitOptions{
			Chunks:        splitOpts.chunks,
			MaxChunks:     splitOpts.maxChunks,
			BySubDatasets: splitOpts.subdatasets,
			ByContigs:     splitOpts.contigs,
			ByZMWs:        splitOpts.zmws,
			ByBarcodes:    splitOpts.barcodes,
			ByRecords:     splitOpts.byRecords,
			BreakContigs:  splitOpts.breakContigs,
			TargetSize:    splitOpts.targetSize,
			SkipCounts:    flagSkipCounts,
		})
		if err != nil {
			return err
		}
		prefix := splitOpts.outPrefix
		if prefix == "" {
			prefix = strings.TrimSuffix(strings.TrimSuffix(args[0], ".xml"), ".xml.gz")
		}
		for i, c := range chunks {
			path := fmt.Sprintf("%s.chunk%d.xml", prefix, i)
			if err := c.Write(ctx, path); err != nil {
				return err
			}
			fmt.Println(path)
		}
		return nil
	},
}

func init() {
	f := splitCmd.Flags()
	f.IntVar(&splitOpts.chunks, "chunks", 0, "requested chunk count (0: mode default)")
	f.IntVar(&splitOpts.maxChunks, "max-chunks", 0, "cap on the chunk count")
	f.BoolVar(&splitOpts.subdatasets, "subdatasets", false, "split by subdataset")
	f.BoolVar(&splitOpts.contigs, "contigs", false, "split by reference window")
	f.BoolVar(&splitOpts.zmws, "zmws", false, "split by ZMW range")
	f.BoolVar(&splitOpts.barcodes, "barcodes", false, "split by barcode pair")
	f.BoolVar(&splitOpts.byRecords, "by-records", false,
		"balance contig windows by read coverage instead of reference length")
	f.BoolVar(&splitOpts.breakContigs, "break-contigs", false,
		"bisect chunks whose reference span exceeds the per-chunk target")
	f.IntVar(&splitOpts.targetSize, "target-size", 0, "target records per chunk (ZMW mode)")
	f.StringVar(&splitOpts.outPrefix, "out-prefix", "", "output path prefix")
}
