package dataset

import (
	"context"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/reader"
)

// RangeOptions tune ReadsInRange.
type RangeOptions struct {
	// LongestFirst orders results by decreasing length clipped to the
	// query window instead of by start position. Requires the indexed
	// path.
	LongestFirst bool

	// SampleSize bounds the tie scan deciding between the stable and the
	// cheaper unstable longest-first sort. 0 means DefaultSampleSize;
	// negative forces the stable sort.
	SampleSize int

	// BufferSize is the per-resource lookahead depth of the k-way merge
	// path and the fetch batch of the indexed path. 0 means
	// DefaultBufferSize.
	BufferSize int
}

// Defaults for RangeOptions.
const (
	DefaultSampleSize = 1000
	DefaultBufferSize = 100
)

// ReadsInRange iterates over the records overlapping [start, end) on the
// named reference, in ascending start order (or longest first, see
// RangeOptions). When every resource carries a companion index the query
// resolves entirely through the materialized index; otherwise each
// resource is range-scanned and the streams are merged by start position.
func (d *DataSet) ReadsInRange(ctx context.Context, name string, start, end int32, opts RangeOptions) (reader.Iterator, error) {
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return nil, err
	}
	indexed := len(rs) > 0
	for _, r := range rs {
		if !r.Indexed() {
			indexed = false
			break
		}
	}
	if indexed {
		return d.indexedReadsInRange(ctx, name, start, end, opts)
	}
	if opts.LongestFirst {
		return nil, errors.E(errors.NotSupported,
			"dataset: longest-first ordering requires indexed resources")
	}
	if len(rs) == 1 {
		return filterIterator(rs[0].RecordsInRange(name, start, end),
			d.effectiveFilters().Tests()), nil
	}
	return d.mergedReadsInRange(rs, name, start, end, opts), nil
}

// ReadsInReference iterates over every record aligned to the named
// reference.
func (d *DataSet) ReadsInReference(ctx context.Context, name string, opts RangeOptions) (reader.Iterator, error) {
	length, err := d.RefLength(ctx, name)
	if err != nil {
		return nil, err
	}
	return d.ReadsInRange(ctx, name, 0, int32(length), opts)
}

// indexedReadsInRange resolves the query through the materialized index:
// candidate rows are selected by overlap against the per-resource local
// reference id, ordered, and materialized through a demand buffer that
// coalesces row fetches per resource.
func (d *DataSet) indexedReadsInRange(ctx context.Context, name string, start, end int32, opts RangeOptions) (reader.Iterator, error) {
	ix, err := d.Index(ctx)
	if err != nil {
		return nil, err
	}
	if ix.Table.RefID == nil {
		return nil, errors.E(errors.NotSupported, "dataset: index has no reference column")
	}
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return nil, err
	}
	// Per-resource local id of the named reference; -1 when the resource
	// does not know it.
	localIDs := make([]int32, len(rs))
	for i, r := range rs {
		localIDs[i] = -1
		for _, ref := range r.References() {
			if ref.Name == name {
				localIDs[i] = ref.ID
				break
			}
		}
	}
	rows := make([]int, 0, 64)
	for i := range ix.Rows {
		if ix.Table.RefID[i] != localIDs[ix.Rows[i].Resource] || localIDs[ix.Rows[i].Resource] < 0 {
			continue
		}
		if ix.Table.TStart[i] < end && ix.Table.TEnd[i] > start {
			rows = append(rows, i)
		}
	}
	if opts.LongestFirst {
		sortLongestFirst(ix, rows, start, end, opts.SampleSize)
	} else {
		sort.SliceStable(rows, func(a, b int) bool {
			return ix.Table.TStart[rows[a]] < ix.Table.TStart[rows[b]]
		})
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &fetchIterator{ds: d, ix: ix, rows: rows, batch: bufSize}, nil
}

// sortLongestFirst orders rows by decreasing length clipped to the query
// window. Quality-sensitive consumers need deterministic order among
// equal-length reads, so ties force the stable sort; when a bounded sample
// finds no duplicate clipped lengths the cheaper unstable sort is used
// instead.
func sortLongestFirst(ix *Index, rows []int, start, end int32, sampleSize int) {
	if sampleSize == 0 {
		sampleSize = DefaultSampleSize
	}
	clipped := func(i int) int32 {
		s, e := ix.Table.TStart[i], ix.Table.TEnd[i]
		if s < start {
			s = start
		}
		if e > end {
			e = end
		}
		return e - s
	}
	stable := true
	if sampleSize > 0 {
		n := len(rows)
		if n > sampleSize {
			n = sampleSize
		}
		seen := make(map[int32]bool, n)
		ties := false
		for _, r := range rows[:n] {
			l := clipped(r)
			if seen[l] {
				ties = true
				break
			}
			seen[l] = true
		}
		stable = ties
	}
	less := func(a, b int) bool { return clipped(rows[a]) > clipped(rows[b]) }
	if stable {
		sort.SliceStable(rows, less)
	} else {
		sort.Slice(rows, less)
	}
}

// fetchIterator materializes resolved index rows. Each refill takes the
// next batch of rows, fetches them grouped by resource in ascending row
// order, and yields them in the originally requested order.
type fetchIterator struct {
	ds    *DataSet
	ix    *Index
	rows  []int
	batch int

	buf []*reader.Record
	pos int
	rec *reader.Record
	err error
}

func (f *fetchIterator) refill() bool {
	if len(f.rows) == 0 || f.err != nil {
		return false
	}
	n := f.batch
	if n > len(f.rows) {
		n = len(f.rows)
	}
	take := f.rows[:n]
	f.rows = f.rows[n:]

	// Fetch per resource in row order, then restore request order.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := f.ix.Rows[take[order[a]]], f.ix.Rows[take[order[b]]]
		if ra.Resource != rb.Resource {
			return ra.Resource < rb.Resource
		}
		return ra.Row < rb.Row
	})
	f.buf = make([]*reader.Record, n)
	for _, i := range order {
		ref := f.ix.Rows[take[i]]
		rec, err := f.ds.readers[ref.Resource].At(ref.Row)
		if err != nil {
			f.err = err
			return false
		}
		f.buf[i] = rec
	}
	f.pos = 0
	return true
}

func (f *fetchIterator) Scan() bool {
	if f.pos >= len(f.buf) && !f.refill() {
		return false
	}
	f.rec = f.buf[f.pos]
	f.pos++
	return true
}

func (f *fetchIterator) Record() *reader.Record { return f.rec }
func (f *fetchIterator) Err() error             { return f.err }
func (f *fetchIterator) Close() error           { return f.err }

// rangeLeaf is one resource's buffered range stream in the k-way merge.
// Ordered by the head record's start position, with the resource position
// breaking ties for determinism.
type rangeLeaf struct {
	seq  int
	it   reader.Iterator
	buf  []*reader.Record
	pos  int
	size int
	err  error
}

func (l *rangeLeaf) head() *reader.Record { return l.buf[l.pos] }

// fill refills the lookahead buffer, reporting false when the source is
// exhausted with nothing buffered.
func (l *rangeLeaf) fill() bool {
	if l.pos < len(l.buf) {
		return true
	}
	l.buf = l.buf[:0]
	l.pos = 0
	for len(l.buf) < l.size && l.it.Scan() {
		l.buf = append(l.buf, l.it.Record())
	}
	if err := l.it.Err(); err != nil {
		l.err = err
		return false
	}
	return len(l.buf) > 0
}

func (l *rangeLeaf) Compare(c llrb.Comparable) int {
	o := c.(*rangeLeaf)
	if d := l.head().TStart - o.head().TStart; d != 0 {
		return int(d)
	}
	return l.seq - o.seq
}

// mergeIterator k-way merges buffered per-resource range streams, always
// yielding the globally smallest buffered start next.
type mergeIterator struct {
	leafs llrb.Tree
	all   []*rangeLeaf
	rec   *reader.Record
	err   error
}

func (d *DataSet) mergedReadsInRange(rs []reader.Reader, name string, start, end int32, opts RangeOptions) reader.Iterator {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	m := &mergeIterator{}
	for i, r := range rs {
		leaf := &rangeLeaf{seq: i, it: r.RecordsInRange(name, start, end), size: size}
		m.all = append(m.all, leaf)
		if leaf.fill() {
			m.leafs.Insert(leaf)
		} else if leaf.err != nil {
			m.err = leaf.err
		}
	}
	return filterIterator(m, d.effectiveFilters().Tests())
}

func (m *mergeIterator) Scan() bool {
	if m.err != nil || m.leafs.Len() == 0 {
		return false
	}
	top := m.leafs.Min().(*rangeLeaf)
	m.leafs.DeleteMin()
	m.rec = top.head()
	top.pos++
	if top.fill() {
		m.leafs.Insert(top)
	} else if top.err != nil {
		m.err = top.err
		return false
	}
	return true
}

func (m *mergeIterator) Record() *reader.Record { return m.rec }
func (m *mergeIterator) Err() error             { return m.err }

func (m *mergeIterator) Close() error {
	for _, l := range m.all {
		if err := l.it.Close(); err != nil && m.err == nil {
			m.err = err
		}
	}
	return m.err
}
