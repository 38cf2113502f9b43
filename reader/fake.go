package reader

import (
	"errors"
)

// Fake is an in-memory Reader for unit tests. It yields the given records
// and synthesizes an index table from them.
type Fake struct {
	name      string
	recs      []*Record
	refs      []ReferenceInfo
	groups    []ReadGroup
	flags     uint32
	chemistry string
	readType  string
	sorted    bool
	contig    bool
	closed    bool
}

// FakeOpts tunes the synthesized resource properties.
type FakeOpts struct {
	// Refs is the reference-info table; nil marks the resource as not
	// alignment capable.
	Refs []ReferenceInfo
	// Groups is the read-group table; when empty a single group is derived
	// from the first record's movie name.
	Groups []ReadGroup
	// Flags is the index feature bitmask (e.g. FlagBarcode).
	Flags uint32
	// Chemistry and ReadType are the polled resource properties.
	Chemistry string
	ReadType  string
	// Unsorted withholds the sorted-by-TStart promise from range queries.
	Unsorted bool
	// Contig synthesizes a contig index (ID/Length columns) instead of a
	// read index.
	Contig bool
}

// NewFake creates a fake reader named name that yields recs.
func NewFake(name string, recs []*Record, opts FakeOpts) *Fake {
	groups := opts.Groups
	if len(groups) == 0 && len(recs) > 0 && recs[0].Movie != "" {
		groups = []ReadGroup{{ID: recs[0].Movie, MovieName: recs[0].Movie, ReadType: opts.ReadType}}
	}
	return &Fake{
		name:      name,
		recs:      recs,
		refs:      opts.Refs,
		groups:    groups,
		flags:     opts.Flags,
		chemistry: opts.Chemistry,
		readType:  opts.ReadType,
		sorted:    !opts.Unsorted,
		contig:    opts.Contig,
	}
}

// Name implements the Reader interface.
func (f *Fake) Name() string { return f.name }

// NumRecords implements the Reader interface.
func (f *Fake) NumRecords() int { return len(f.recs) }

// Indexed implements the Reader interface.
func (f *Fake) Indexed() bool { return true }

// Index implements the Reader interface.
func (f *Fake) Index() *IndexTable {
	t := &IndexTable{Flags: f.flags}
	if f.contig {
		t.ID = make([]string, len(f.recs))
		t.Length = make([]int64, len(f.recs))
		t.Offset = make([]int64, len(f.recs))
		var off int64
		for i, r := range f.recs {
			t.ID[i] = r.Name
			t.Length[i] = int64(len(r.Seq))
			t.Offset[i] = off
			off += int64(len(r.Seq))
		}
		return t
	}
	n := len(f.recs)
	t.RefID = make([]int32, n)
	t.TStart = make([]int32, n)
	t.TEnd = make([]int32, n)
	t.QStart = make([]int32, n)
	t.QEnd = make([]int32, n)
	t.HoleNumber = make([]int32, n)
	t.ReadQual = make([]float32, n)
	t.Movie = make([]string, n)
	if f.flags&FlagBarcode != 0 {
		t.BcForward = make([]int16, n)
		t.BcReverse = make([]int16, n)
	}
	for i, r := range f.recs {
		t.RefID[i] = f.refID(r.RefName)
		t.TStart[i] = r.TStart
		t.TEnd[i] = r.TEnd
		t.QStart[i] = r.QStart
		t.QEnd[i] = r.QEnd
		t.HoleNumber[i] = r.HoleNumber
		t.ReadQual[i] = r.ReadQual
		t.Movie[i] = r.Movie
		if t.BcForward != nil {
			t.BcForward[i] = r.BcForward
			t.BcReverse[i] = r.BcReverse
		}
	}
	return t
}

func (f *Fake) refID(name string) int32 {
	for _, ref := range f.refs {
		if ref.Name == name {
			return ref.ID
		}
	}
	return -1
}

// At implements the Reader interface.
func (f *Fake) At(row int) (*Record, error) {
	if row < 0 || row >= len(f.recs) {
		return nil, errors.New("fake reader: row out of range")
	}
	return f.recs[row], nil
}

// Records implements the Reader interface.
func (f *Fake) Records() Iterator {
	return &sliceIterator{recs: f.recs}
}

// RecordsInRange implements the Reader interface. Records are yielded in
// file order, which is TStart order for sorted fakes.
func (f *Fake) RecordsInRange(refName string, start, end int32) Iterator {
	var hits []*Record
	for _, r := range f.recs {
		if r.RefName == refName && r.TStart < end && r.TEnd > start {
			hits = append(hits, r)
		}
	}
	return &sliceIterator{recs: hits}
}

// References implements the Reader interface.
func (f *Fake) References() []ReferenceInfo { return f.refs }

// ReadGroups implements the Reader interface.
func (f *Fake) ReadGroups() []ReadGroup { return f.groups }

// Mapped implements the Reader interface.
func (f *Fake) Mapped() bool { return len(f.refs) > 0 }

// Empty implements the Reader interface.
func (f *Fake) Empty() bool { return len(f.recs) == 0 }

// Sorted implements the Reader interface.
func (f *Fake) Sorted() bool { return f.sorted }

// Chemistry implements the Reader interface.
func (f *Fake) Chemistry() string { return f.chemistry }

// ReadType implements the Reader interface.
func (f *Fake) ReadType() string { return f.readType }

// Close implements the Reader interface.
func (f *Fake) Close() error {
	if f.closed {
		return errors.New("fake reader: double close")
	}
	f.closed = true
	return nil
}

type sliceIterator struct {
	recs []*Record
	rec  *Record
}

func (i *sliceIterator) Scan() bool {
	if len(i.recs) == 0 {
		return false
	}
	i.rec = i.recs[0]
	i.recs = i.recs[1:]
	return true
}

func (i *sliceIterator) Record() *Record { return i.rec }
func (i *sliceIterator) Err() error      { return nil }
func (i *sliceIterator) Close() error    { return nil }
