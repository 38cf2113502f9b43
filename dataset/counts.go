package dataset

import (
	"context"

	"github.com/grailbio/base/log"
)

// UpdateCounts recomputes NumRecords and TotalLength from the materialized
// index. In non-strict mode a failure (missing files, no index support)
// degrades both counts to the -1 sentinel with a warning; in strict mode it
// is fatal.
func (d *DataSet) UpdateCounts(ctx context.Context) error {
	ix, err := d.Index(ctx)
	if err != nil {
		if d.strict {
			return err
		}
		log.Printf("dataset: cannot update counts: %v", err)
		d.meta.NumRecords = -1
		d.meta.TotalLength = -1
		return nil
	}
	d.meta.NumRecords = int64(ix.Len())
	d.meta.TotalLength = indexTotalLength(ix)
	return nil
}

// indexTotalLength sums record lengths over the index: query spans when the
// query columns are present, contig lengths for contig tables, aligned
// reference spans as a last resort.
func indexTotalLength(ix *Index) int64 {
	t := ix.Table
	var total int64
	switch {
	case t.QStart != nil && t.QEnd != nil:
		for i := range t.QStart {
			total += int64(t.QEnd[i] - t.QStart[i])
		}
	case t.Length != nil:
		for _, l := range t.Length {
			total += l
		}
	case t.TStart != nil && t.TEnd != nil:
		for i := range t.TStart {
			total += int64(t.TEnd[i] - t.TStart[i])
		}
	}
	return total
}
