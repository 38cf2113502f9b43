package dataset

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/chunk"
	"github.com/pacbioseq/dataset/filters"
)

// splitContigs partitions the dataset by reference window. Windows come
// from the current filters (or one whole-length window per reference);
// when more chunks are requested than windows exist, windows are
// subdivided, either at equal-length boundaries or, with ByRecords, at
// coverage-contour breakpoints so each piece holds comparable read mass.
// Chunks become filter groups constraining rname/tstart/tend.
func (d *DataSet) splitContigs(ctx context.Context, opts SplitOptions) ([]*DataSet, error) {
	if !d.kind.Mapped() {
		return nil, errors.E(errors.NotSupported,
			"dataset: cannot split "+d.kind.String()+" by contigs")
	}
	windows, err := d.RefWindows(ctx)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, errors.E(errors.NotExist, "dataset: no reference windows to split")
	}
	var (
		ix *Index
		rt *refTable
	)
	if opts.ByRecords {
		if ix, err = d.Index(ctx); err != nil {
			return nil, err
		}
		if rt, err = d.refs(ctx); err != nil {
			return nil, err
		}
		for i := range windows {
			windows[i].Records = d.countWindow(ix, rt, windows[i])
		}
	}

	n := opts.Chunks
	if n <= 0 {
		n = len(windows)
	}
	n = capChunks(n, opts.MaxChunks)

	if n > len(windows) {
		windows, err = d.subdivideWindows(ix, rt, windows, n, opts.ByRecords)
		if err != nil {
			return nil, err
		}
	}
	if opts.BreakContigs && !opts.ByRecords {
		var total int64
		for _, w := range windows {
			total += w.Span()
		}
		if target := total / int64(n); target > 0 {
			windows = chunk.BreakWindows(windows, target)
		}
	}
	if n > len(windows) {
		n = len(windows)
	}

	weights := make([]int64, len(windows))
	for i, w := range windows {
		if opts.ByRecords {
			weights[i] = w.Records
		} else {
			weights[i] = w.Span()
		}
	}
	var out []*DataSet
	for _, group := range chunk.Balance(weights, n) {
		c := d.Copy()
		c.subsets = nil
		reqs := map[string][]filters.Req{
			"rname":  make([]filters.Req, len(group)),
			"tstart": make([]filters.Req, len(group)),
			"tend":   make([]filters.Req, len(group)),
		}
		for i, wi := range group {
			w := windows[wi]
			// A read overlaps [start, end) iff tstart < end AND tend > start.
			reqs["rname"][i] = filters.Req{Op: filters.OpEq, Value: w.Name}
			reqs["tstart"][i] = filters.Req{Op: filters.OpLt, Value: fmt.Sprint(w.End)}
			reqs["tend"][i] = filters.Req{Op: filters.OpGt, Value: fmt.Sprint(w.Start)}
		}
		c.Invalidate()
		if err := c.filters.AddRequirement(reqs); err != nil {
			return nil, err
		}
		if err := d.finishChunk(ctx, c, opts.SkipCounts); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// subdivideWindows grows per-window segment counts until target pieces
// exist, always adding a segment to the window with the worst
// size/segment ratio, then cuts each window accordingly.
func (d *DataSet) subdivideWindows(ix *Index, rt *refTable, windows []chunk.Window, target int, byRecords bool) ([]chunk.Window, error) {
	atoms := make([]chunk.Segmented, len(windows))
	for i, w := range windows {
		size := w.Span()
		if byRecords {
			size = w.Records
		}
		atoms[i] = chunk.Segmented{Name: w.Name, Size: size, Segments: 1}
	}
	chunk.GrowSegments(atoms, target)

	var out []chunk.Window
	for i, a := range atoms {
		w := windows[i]
		if a.Segments <= 1 {
			out = append(out, w)
			continue
		}
		if byRecords {
			out = append(out, d.contourCut(ix, rt, w, a.Segments)...)
		} else {
			out = append(out, equalCut(w, a.Segments)...)
		}
	}
	return out, nil
}

// equalCut slices a window into n equal-length pieces, the last absorbing
// the remainder.
func equalCut(w chunk.Window, n int) []chunk.Window {
	span := w.Span()
	if int64(n) > span {
		n = int(span)
	}
	if n <= 1 {
		return []chunk.Window{w}
	}
	size := span / int64(n)
	out := make([]chunk.Window, 0, n)
	for i := 0; i < n; i++ {
		start := w.Start + int64(i)*size
		end := start + size
		if i == n-1 {
			end = w.End
		}
		out = append(out, chunk.Window{Name: w.Name, Start: start, End: end})
	}
	return out
}

// contourCut slices a window at coverage-mass-equal breakpoints: the read
// coverage profile over the window is prefix-summed and walked so each
// piece holds a comparable share of aligned bases, not merely of
// reference length.
func (d *DataSet) contourCut(ix *Index, rt *refTable, w chunk.Window, n int) []chunk.Window {
	starts, ends := d.windowRows(ix, rt, w)
	if len(starts) == 0 {
		return equalCut(w, n)
	}
	contour := chunk.Contour(starts, ends, w.End-w.Start)
	breaks := chunk.SplitContour(contour, n)
	out := make([]chunk.Window, 0, n)
	for i, b := range breaks {
		start := w.Start + b
		end := w.End
		if i+1 < len(breaks) {
			end = w.Start + breaks[i+1]
		}
		if end > start {
			out = append(out, chunk.Window{Name: w.Name, Start: start, End: end})
		}
	}
	if len(out) == 0 {
		return []chunk.Window{w}
	}
	return out
}

// windowRows collects the clipped start/end offsets, relative to the
// window, of every index record overlapping it.
func (d *DataSet) windowRows(ix *Index, rt *refTable, w chunk.Window) (starts, ends []int32) {
	for i, ref := range ix.Rows {
		name, ok := rt.localNames[ref.Resource][ix.Table.RefID[i]]
		if !ok || name != w.Name {
			continue
		}
		s, e := int64(ix.Table.TStart[i]), int64(ix.Table.TEnd[i])
		if s >= w.End || e <= w.Start {
			continue
		}
		if s < w.Start {
			s = w.Start
		}
		if e > w.End {
			e = w.End
		}
		starts = append(starts, int32(s-w.Start))
		ends = append(ends, int32(e-w.Start))
	}
	return starts, ends
}

func (d *DataSet) countWindow(ix *Index, rt *refTable, w chunk.Window) int64 {
	starts, _ := d.windowRows(ix, rt, w)
	return int64(len(starts))
}
