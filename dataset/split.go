package dataset

import (
	"context"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/chunk"
	"github.com/pacbioseq/dataset/filters"
	"github.com/pacbioseq/dataset/resource"
)

// SplitOptions select and tune one splitting mode. The By* fields are
// mutually exclusive; with none set the dataset splits by resource.
type SplitOptions struct {
	// Chunks is the requested chunk count. 0 picks a mode-specific
	// default (by resource: one per resource; by subdataset: one per
	// subdataset; by contig: one per window; by ZMW: from TargetSize).
	Chunks int

	// MaxChunks caps the chunk count regardless of mode defaults.
	MaxChunks int

	BySubDatasets bool
	ByContigs     bool
	ByZMWs        bool
	ByBarcodes    bool

	// ByRecords balances contig windows by read counts using a coverage
	// contour instead of by reference length.
	ByRecords bool

	// BreakContigs bisects chunks whose aggregate reference length still
	// exceeds the per-chunk target after balancing.
	BreakContigs bool

	// TargetSize is the target number of records per chunk for the ZMW
	// mode's default chunk count. 0 means DefaultTargetSize.
	TargetSize int

	// SkipCounts leaves each chunk's counts at the parent's values
	// instead of recomputing them.
	SkipCounts bool
}

// DefaultTargetSize is the default ZMW-mode records-per-chunk target.
const DefaultTargetSize = 5000

// Split partitions the dataset into chunks per the selected mode. Every
// chunk is a full copy with a fresh UniqueId; the parent is unchanged.
func (d *DataSet) Split(ctx context.Context, opts SplitOptions) ([]*DataSet, error) {
	modes := 0
	for _, b := range []bool{opts.BySubDatasets, opts.ByContigs, opts.ByZMWs, opts.ByBarcodes} {
		if b {
			modes++
		}
	}
	if modes > 1 {
		return nil, errors.E(errors.Invalid, "dataset: split modes are mutually exclusive")
	}
	switch {
	case opts.ByContigs:
		return d.splitContigs(ctx, opts)
	case opts.ByZMWs:
		return d.splitZMWs(ctx, opts)
	case opts.ByBarcodes:
		return d.splitBarcodes(ctx, opts)
	case opts.BySubDatasets:
		return d.splitSubDatasets(ctx, opts)
	}
	return d.splitResources(ctx, opts)
}

func capChunks(n, max int) int {
	if max > 0 && n > max {
		return max
	}
	return n
}

// finishChunk recomputes identity and counts after a chunk's resources or
// filters were rewritten.
func (d *DataSet) finishChunk(ctx context.Context, c *DataSet, skipCounts bool) error {
	c.Invalidate()
	c.refreshUUID()
	if skipCounts {
		return nil
	}
	return c.UpdateCounts(ctx)
}

// splitResources emits one chunk per external resource group. A chunk
// count of 1 short-circuits to an unmodified copy.
func (d *DataSet) splitResources(ctx context.Context, opts SplitOptions) ([]*DataSet, error) {
	n := opts.Chunks
	if n <= 0 {
		n = d.resources.Len()
	}
	n = capChunks(n, opts.MaxChunks)
	if n > d.resources.Len() {
		n = d.resources.Len()
	}
	if n <= 1 {
		return []*DataSet{d.Copy()}, nil
	}
	weights := make([]int64, d.resources.Len())
	for i := range weights {
		weights[i] = 1
	}
	var out []*DataSet
	for _, group := range chunk.Balance(weights, n) {
		c := d.Copy()
		c.subsets = nil
		items := make([]*resource.ExternalResource, 0, len(group))
		for _, ri := range group {
			items = append(items, d.resources.At(ri).Copy())
		}
		c.invalidateReaders()
		c.resources.Replace(items)
		if err := d.finishChunk(ctx, c, opts.SkipCounts); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// splitSubDatasets balances the existing subdatasets into chunks by their
// recorded record counts. When the chunk count matches the subdataset
// count and every subdataset carries resources, the literal subdatasets
// are returned.
func (d *DataSet) splitSubDatasets(ctx context.Context, opts SplitOptions) ([]*DataSet, error) {
	if len(d.subsets) < 2 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"dataset: cannot split by subdatasets, have %d", len(d.subsets)))
	}
	n := opts.Chunks
	if n <= 0 {
		n = len(d.subsets)
	}
	n = capChunks(n, opts.MaxChunks)
	if n > len(d.subsets) {
		n = len(d.subsets)
	}
	if n == len(d.subsets) {
		allHave := true
		for _, sub := range d.subsets {
			if sub.resources.Len() == 0 {
				allHave = false
				break
			}
		}
		if allHave {
			out := make([]*DataSet, len(d.subsets))
			for i, sub := range d.subsets {
				out[i] = sub.Copy()
			}
			return out, nil
		}
	}
	weights := make([]int64, len(d.subsets))
	for i, sub := range d.subsets {
		if w := sub.meta.NumRecords; w > 0 {
			weights[i] = w
		} else {
			weights[i] = 1
		}
	}
	var out []*DataSet
	for _, group := range chunk.Balance(weights, n) {
		c := d.Copy()
		c.subsets = nil
		c.invalidateReaders()
		var items []*resource.ExternalResource
		num, total := int64(0), int64(0)
		for _, si := range group {
			sub := d.subsets[si]
			c.subsets = append(c.subsets, sub.Copy())
			for _, r := range sub.resources.Items() {
				items = append(items, r.Copy())
			}
			if num >= 0 && sub.meta.NumRecords >= 0 {
				num += sub.meta.NumRecords
			} else {
				num = -1
			}
			if total >= 0 && sub.meta.TotalLength >= 0 {
				total += sub.meta.TotalLength
			} else {
				total = -1
			}
		}
		if len(items) > 0 {
			c.resources.Replace(nil)
			c.resources.Add(items...)
		}
		c.Invalidate()
		c.refreshUUID()
		c.meta.NumRecords = num
		c.meta.TotalLength = total
		out = append(out, c)
	}
	return out, nil
}

// splitBarcodes groups index rows by barcode pair, balances the pairs by
// record count, and constrains each chunk with bc filter groups.
func (d *DataSet) splitBarcodes(ctx context.Context, opts SplitOptions) ([]*DataSet, error) {
	ix, err := d.Index(ctx)
	if err != nil {
		return nil, err
	}
	if !ix.Table.Barcoded() || ix.Table.BcForward == nil {
		return nil, errors.E(errors.NotSupported, "dataset: resources carry no barcode columns")
	}
	counts := make(map[string]int64)
	for i := range ix.Table.BcForward {
		counts[filters.BarcodePair(ix.Table.BcForward[i], ix.Table.BcReverse[i])]++
	}
	pairs := make([]string, 0, len(counts))
	for p := range counts {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	n := opts.Chunks
	if n <= 0 {
		n = len(pairs)
	}
	n = capChunks(n, opts.MaxChunks)
	if n > len(pairs) {
		n = len(pairs)
	}
	weights := make([]int64, len(pairs))
	for i, p := range pairs {
		weights[i] = counts[p]
	}
	var out []*DataSet
	for _, group := range chunk.Balance(weights, n) {
		c := d.Copy()
		c.subsets = nil
		reqs := make([]filters.Req, len(group))
		for i, pi := range group {
			reqs[i] = filters.Req{Op: filters.OpEq, Value: pairs[pi]}
		}
		c.Invalidate()
		if err := c.filters.AddRequirement(map[string][]filters.Req{"bc": reqs}); err != nil {
			return nil, err
		}
		if err := d.finishChunk(ctx, c, opts.SkipCounts); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// zmwWindow is one contiguous hole-number range of one movie.
type zmwWindow struct {
	movie      string
	start, end int32
	records    int64
}

// splitZMWs walks each resource's sorted hole numbers, cutting windows of
// roughly equal record count and snapping each boundary outward across
// ties so that no hole number is split across two chunks. Every resource
// must carry exactly one read group.
func (d *DataSet) splitZMWs(ctx context.Context, opts SplitOptions) ([]*DataSet, error) {
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return nil, err
	}
	ix, err := d.Index(ctx)
	if err != nil {
		return nil, err
	}
	if ix.Table.HoleNumber == nil {
		return nil, errors.E(errors.NotSupported, "dataset: index carries no hole numbers")
	}
	target := opts.TargetSize
	if target <= 0 {
		target = DefaultTargetSize
	}

	// Per-resource sorted hole sequences.
	type fileHoles struct {
		movie string
		holes []int32
	}
	files := make([]fileHoles, len(rs))
	for i, r := range rs {
		groups := r.ReadGroups()
		if len(groups) != 1 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf(
				"dataset: ZMW split requires exactly one read group per file, %s has %d",
				r.Name(), len(groups)))
		}
		files[i].movie = groups[0].MovieName
	}
	for row, ref := range ix.Rows {
		files[ref.Resource].holes = append(files[ref.Resource].holes, ix.Table.HoleNumber[row])
	}

	var windows []zmwWindow
	for _, f := range files {
		if len(f.holes) == 0 {
			continue
		}
		holes := append([]int32(nil), f.holes...)
		sort.Slice(holes, func(a, b int) bool { return holes[a] < holes[b] })
		active := countUnique(holes)
		per := len(holes) / maxInt(1, minInt(active, (len(holes)+target-1)/target))
		if per < 1 {
			per = 1
		}
		for at := 0; at < len(holes); {
			cut := at + per
			if cut >= len(holes) {
				cut = len(holes)
			} else {
				// Snap outward across ties: never split one hole number.
				for cut < len(holes) && holes[cut] == holes[cut-1] {
					cut++
				}
			}
			windows = append(windows, zmwWindow{
				movie:   f.movie,
				start:   holes[at],
				end:     holes[cut-1],
				records: int64(cut - at),
			})
			at = cut
		}
	}
	if len(windows) == 0 {
		return nil, errors.E(errors.NotExist, "dataset: no records to split by ZMW")
	}
	n := opts.Chunks
	if n <= 0 {
		n = len(windows)
	}
	n = capChunks(n, opts.MaxChunks)
	if n > len(windows) {
		n = len(windows)
	}
	weights := make([]int64, len(windows))
	for i, w := range windows {
		weights[i] = w.records
	}
	var out []*DataSet
	for _, group := range chunk.Balance(weights, n) {
		c := d.Copy()
		c.subsets = nil
		exts := make([]filters.Filter, len(group))
		for i, wi := range group {
			w := windows[wi]
			exts[i] = filters.Filter{
				{Name: "movie", Op: filters.OpEq, Value: w.movie},
				{Name: "zm", Op: filters.OpGe, Value: fmt.Sprint(w.start)},
				{Name: "zm", Op: filters.OpLe, Value: fmt.Sprint(w.end)},
			}
		}
		c.Invalidate()
		c.filters.CrossExtend(exts)
		if err := d.finishChunk(ctx, c, opts.SkipCounts); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ZMWRanges recovers the (movie, first, last) hole ranges constrained by
// the current filters, in group order.
func (d *DataSet) ZMWRanges() []struct {
	Movie       string
	First, Last int32
} {
	type rng = struct {
		Movie       string
		First, Last int32
	}
	var out []rng
	for _, g := range d.filters.Groups() {
		r := rng{First: -1, Last: -1}
		for _, p := range g {
			switch p.Name {
			case "movie":
				r.Movie = p.Value
			case "zm", "zmw":
				var v int32
				fmt.Sscan(p.Value, &v)
				switch p.Op {
				case filters.OpGe:
					r.First = v
				case filters.OpGt:
					r.First = v + 1
				case filters.OpLe:
					r.Last = v
				case filters.OpLt:
					r.Last = v - 1
				}
			}
		}
		if r.Movie != "" && r.First >= 0 && r.Last >= 0 {
			out = append(out, r)
		}
	}
	return out
}

// Barcodes recovers the barcode pairs constrained by the current filters.
func (d *DataSet) Barcodes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range d.filters.Groups() {
		for _, p := range g {
			if p.Name == "bc" && p.Op == filters.OpEq && !seen[p.Value] {
				seen[p.Value] = true
				out = append(out, p.Value)
			}
		}
	}
	return out
}

func countUnique(sorted []int32) int {
	n := 0
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			n++
		}
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
