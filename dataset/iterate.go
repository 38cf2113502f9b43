package dataset

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/filters"
	"github.com/pacbioseq/dataset/reader"
)

// Records iterates over every passing record, resource by resource in
// resource order. The iterator is lazy and forward-only; a fresh call
// restarts from the first resource.
func (d *DataSet) Records(ctx context.Context) (reader.Iterator, error) {
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return nil, err
	}
	its := make([]reader.Iterator, len(rs))
	for i, r := range rs {
		its[i] = r.Records()
	}
	return filterIterator(chain(its), d.effectiveFilters().Tests()), nil
}

// ReadsInSubDatasets iterates over the records of the named subdatasets.
// With no names, every subdataset contributes. Errors if the dataset has
// no subdatasets.
func (d *DataSet) ReadsInSubDatasets(ctx context.Context, names ...string) (reader.Iterator, error) {
	if len(d.subsets) == 0 {
		return nil, errors.E(errors.NotExist, "dataset: no subdatasets")
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var its []reader.Iterator
	for _, sub := range d.subsets {
		if len(names) > 0 && !want[sub.name] {
			continue
		}
		it, err := sub.Records(ctx)
		if err != nil {
			closeIters(its)
			return nil, err
		}
		its = append(its, it)
	}
	if len(its) == 0 {
		return nil, errors.E(errors.NotExist, "dataset: no subdataset named any of", names)
	}
	return chain(its), nil
}

func closeIters(its []reader.Iterator) {
	for _, it := range its {
		it.Close() // nolint: errcheck
	}
}

// chainIterator concatenates iterators.
type chainIterator struct {
	its []reader.Iterator
	i   int
	err error
}

func chain(its []reader.Iterator) reader.Iterator {
	return &chainIterator{its: its}
}

func (c *chainIterator) Scan() bool {
	for c.i < len(c.its) {
		if c.its[c.i].Scan() {
			return true
		}
		if err := c.its[c.i].Err(); err != nil {
			c.err = err
			return false
		}
		c.i++
	}
	return false
}

func (c *chainIterator) Record() *reader.Record { return c.its[c.i].Record() }

func (c *chainIterator) Err() error { return c.err }

func (c *chainIterator) Close() error {
	for _, it := range c.its {
		if err := it.Close(); err != nil && c.err == nil {
			c.err = err
		}
	}
	return c.err
}

// filteredIterator yields only records passing at least one predicate.
type filteredIterator struct {
	in    reader.Iterator
	tests []filters.Predicate
}

// filterIterator wraps in so that each yielded record passes at least one
// OR group. A nil test list passes everything.
func filterIterator(in reader.Iterator, tests []filters.Predicate) reader.Iterator {
	if tests == nil {
		return in
	}
	return &filteredIterator{in: in, tests: tests}
}

func (f *filteredIterator) Scan() bool {
	for f.in.Scan() {
		rec := f.in.Record()
		for _, test := range f.tests {
			if test(rec) {
				return true
			}
		}
	}
	return false
}

func (f *filteredIterator) Record() *reader.Record { return f.in.Record() }
func (f *filteredIterator) Err() error             { return f.in.Err() }
func (f *filteredIterator) Close() error           { return f.in.Close() }
