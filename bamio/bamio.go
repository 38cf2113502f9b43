// Package bamio adapts BAM files to the dataset reader interface. Parsing
// is delegated to github.com/grailbio/hts; this package only maps sam
// records and header metadata onto the dataset record model. It registers
// itself with the dataset opener and writer registries at init time.
package bamio

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/pacbioseq/dataset/dataset"
	"github.com/pacbioseq/dataset/reader"
	"github.com/pacbioseq/dataset/resource"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

func init() {
	dataset.RegisterOpener("bam", func(ctx context.Context, res *resource.ExternalResource, strict bool) (reader.Reader, error) {
		return Open(ctx, res, strict)
	})
	dataset.RegisterWriter("bam", func(ctx context.Context, path string) (dataset.RecordWriter, error) {
		return NewWriter(ctx, path)
	})
}

// Reader is an open BAM resource.
type Reader struct {
	ctx     context.Context
	path    string
	indexed bool

	header *sam.Header
	groups []reader.ReadGroup
	refs   []reader.ReferenceInfo

	chemistry string
	readType  string

	// Records and the summary table, loaded on first indexed access.
	recs  []*reader.Record
	table *reader.IndexTable
}

// Open opens the BAM file named by res. A missing companion index is fatal
// in strict mode and degrades to whole-file scans otherwise.
func Open(ctx context.Context, res *resource.ExternalResource, strict bool) (*Reader, error) {
	r := &Reader{ctx: ctx, path: res.ID}
	for _, ix := range res.Indices {
		if resource.FileExt(ix.ID) == "pbi" || resource.FileExt(ix.ID) == "bam.pbi" {
			r.indexed = resource.Exists(ctx, ix.ID)
		}
	}
	if !r.indexed && resource.Exists(ctx, res.ID+".pbi") {
		r.indexed = true
	}
	if !r.indexed {
		if strict {
			return nil, errors.Errorf("bamio: %s has no companion index", res.ID)
		}
		vlog.Errorf("bamio: %s has no companion index, falling back to scans", res.ID)
	}
	in, err := file.Open(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, errors.Wrapf(err, "bamio: open %s", res.ID)
	}
	r.header = br.Header()
	if err := br.Close(); err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, err
	}
	if err := in.Close(ctx); err != nil {
		return nil, err
	}
	for _, ref := range r.header.Refs() {
		r.refs = append(r.refs, reader.ReferenceInfo{
			ID:       int32(ref.ID()),
			Name:     ref.Name(),
			FullName: ref.Name(),
			Length:   int64(ref.Len()),
		})
	}
	r.parseReadGroups()
	return r, nil
}

// parseReadGroups extracts the read groups plus the PacBio DS descriptor
// fields (READTYPE, BINDINGKIT, SEQUENCINGKIT) from the header text. The
// sam API does not expose PU or DS directly.
func (r *Reader) parseReadGroups() {
	text, err := r.header.MarshalText()
	if err != nil {
		vlog.Errorf("bamio: %s: marshal header: %v", r.path, err)
		return
	}
	var binding, sequencing string
	for _, line := range strings.Split(string(text), "\n") {
		if !strings.HasPrefix(line, "@RG") {
			continue
		}
		g := reader.ReadGroup{}
		for _, field := range strings.Split(line, "\t") {
			switch {
			case strings.HasPrefix(field, "ID:"):
				g.ID = field[3:]
			case strings.HasPrefix(field, "PU:"):
				g.MovieName = field[3:]
			case strings.HasPrefix(field, "DS:"):
				for _, kv := range strings.Split(field[3:], ";") {
					eq := strings.IndexByte(kv, '=')
					if eq < 0 {
						continue
					}
					switch kv[:eq] {
					case "READTYPE":
						g.ReadType = kv[eq+1:]
					case "BINDINGKIT":
						binding = kv[eq+1:]
					case "SEQUENCINGKIT":
						sequencing = kv[eq+1:]
					}
				}
			}
		}
		if g.MovieName == "" {
			g.MovieName = g.ID
		}
		r.groups = append(r.groups, g)
	}
	if binding != "" || sequencing != "" {
		r.chemistry = binding + ";" + sequencing
	}
	if len(r.groups) > 0 {
		r.readType = r.groups[0].ReadType
	}
}

// Name implements reader.Reader.
func (r *Reader) Name() string { return r.path }

// load scans the whole file once, converting records and building the
// summary table.
func (r *Reader) load() error {
	if r.table != nil {
		return nil
	}
	it := r.Records()
	// Declare the schema up front so an empty file still carries its
	// applicable columns.
	t := &reader.IndexTable{
		QStart:     []int32{},
		QEnd:       []int32{},
		HoleNumber: []int32{},
		ReadQual:   []float32{},
		Movie:      []string{},
		BcForward:  []int16{},
		BcReverse:  []int16{},
	}
	mapped := len(r.refs) > 0
	if mapped {
		t.RefID = []int32{}
		t.TStart = []int32{}
		t.TEnd = []int32{}
	}
	barcoded := false
	for it.Scan() {
		rec := it.Record()
		r.recs = append(r.recs, rec)
		if mapped {
			id := int32(-1)
			for _, ref := range r.refs {
				if ref.Name == rec.RefName {
					id = ref.ID
					break
				}
			}
			t.RefID = append(t.RefID, id)
			t.TStart = append(t.TStart, rec.TStart)
			t.TEnd = append(t.TEnd, rec.TEnd)
		}
		t.QStart = append(t.QStart, rec.QStart)
		t.QEnd = append(t.QEnd, rec.QEnd)
		t.HoleNumber = append(t.HoleNumber, rec.HoleNumber)
		t.ReadQual = append(t.ReadQual, rec.ReadQual)
		t.Movie = append(t.Movie, rec.Movie)
		t.BcForward = append(t.BcForward, rec.BcForward)
		t.BcReverse = append(t.BcReverse, rec.BcReverse)
		if rec.BcForward > 0 || rec.BcReverse > 0 {
			barcoded = true
		}
	}
	if err := it.Close(); err != nil {
		return err
	}
	if barcoded {
		t.Flags |= reader.FlagBarcode
	}
	r.table = t
	return nil
}

// NumRecords implements reader.Reader.
func (r *Reader) NumRecords() int {
	if err := r.load(); err != nil {
		vlog.Errorf("bamio: %s: %v", r.path, err)
		return 0
	}
	return len(r.recs)
}

// Indexed implements reader.Reader.
func (r *Reader) Indexed() bool { return r.indexed }

// Index implements reader.Reader.
func (r *Reader) Index() *reader.IndexTable {
	if !r.indexed {
		return nil
	}
	if err := r.load(); err != nil {
		vlog.Errorf("bamio: %s: %v", r.path, err)
		return nil
	}
	return r.table
}

// At implements reader.Reader.
func (r *Reader) At(row int) (*reader.Record, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	if row < 0 || row >= len(r.recs) {
		return nil, errors.Errorf("bamio: %s: row %d out of range", r.path, row)
	}
	return r.recs[row], nil
}

// Records implements reader.Reader. Each call reopens the file.
func (r *Reader) Records() reader.Iterator {
	return newIterator(r, "", 0, 0)
}

// RecordsInRange implements reader.Reader.
func (r *Reader) RecordsInRange(refName string, start, end int32) reader.Iterator {
	return newIterator(r, refName, start, end)
}

// References implements reader.Reader.
func (r *Reader) References() []reader.ReferenceInfo { return r.refs }

// ReadGroups implements reader.Reader.
func (r *Reader) ReadGroups() []reader.ReadGroup { return r.groups }

// Mapped implements reader.Reader.
func (r *Reader) Mapped() bool { return len(r.refs) > 0 }

// Empty implements reader.Reader.
func (r *Reader) Empty() bool { return r.NumRecords() == 0 }

// Sorted implements reader.Reader.
func (r *Reader) Sorted() bool { return r.header.SortOrder == sam.Coordinate }

// Chemistry implements reader.Reader.
func (r *Reader) Chemistry() string { return r.chemistry }

// ReadType implements reader.Reader.
func (r *Reader) ReadType() string { return r.readType }

// Close implements reader.Reader.
func (r *Reader) Close() error {
	r.recs = nil
	r.table = nil
	return nil
}

type iterator struct {
	r          *Reader
	refName    string
	start, end int32

	in  file.File
	br  *bam.Reader
	rec *reader.Record
	err error
}

func newIterator(r *Reader, refName string, start, end int32) *iterator {
	it := &iterator{r: r, refName: refName, start: start, end: end}
	it.in, it.err = file.Open(r.ctx, r.path)
	if it.err != nil {
		return it
	}
	it.br, it.err = bam.NewReader(it.in.Reader(r.ctx), 1)
	return it
}

func (it *iterator) Scan() bool {
	if it.err != nil {
		return false
	}
	for {
		rec, err := it.br.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			it.err = err
			return false
		}
		out := convert(rec)
		if it.refName != "" {
			if out.RefName != it.refName || out.TStart >= it.end || out.TEnd <= it.start {
				continue
			}
		}
		it.rec = out
		return true
	}
}

func (it *iterator) Record() *reader.Record { return it.rec }

func (it *iterator) Err() error { return it.err }

func (it *iterator) Close() error {
	if it.br != nil {
		if err := it.br.Close(); err != nil && it.err == nil {
			it.err = err
		}
	}
	if it.in != nil {
		if err := it.in.Close(it.r.ctx); err != nil && it.err == nil {
			it.err = err
		}
	}
	return it.err
}

// convert maps one sam record onto the dataset record model. Movie, hole
// number and query coordinates follow the PacBio read naming convention
// "movie/hole/qstart_qend", with aux tags taking precedence.
func convert(rec *sam.Record) *reader.Record {
	out := &reader.Record{
		Name:   rec.Name,
		MapQ:   rec.MapQ,
		TStart: -1,
		TEnd:   -1,
		Seq:    rec.Seq.Expand(),
	}
	if rec.Ref != nil && rec.Flags&sam.Unmapped == 0 {
		out.RefName = rec.Ref.Name()
		out.TStart = int32(rec.Pos)
		out.TEnd = int32(rec.End())
	}
	parts := strings.Split(rec.Name, "/")
	if len(parts) >= 2 {
		out.Movie = parts[0]
		if hole, err := strconv.Atoi(parts[1]); err == nil {
			out.HoleNumber = int32(hole)
		}
	}
	if len(parts) >= 3 {
		if span := strings.SplitN(parts[2], "_", 2); len(span) == 2 {
			if qs, err := strconv.Atoi(span[0]); err == nil {
				out.QStart = int32(qs)
			}
			if qe, err := strconv.Atoi(span[1]); err == nil {
				out.QEnd = int32(qe)
			}
		}
	}
	for _, aux := range rec.AuxFields {
		switch aux.Tag() {
		case sam.NewTag("rq"):
			if v, ok := aux.Value().(float32); ok {
				out.ReadQual = v
			} else if v, ok := aux.Value().(float64); ok {
				out.ReadQual = float32(v)
			}
		case sam.NewTag("qs"):
			out.QStart = auxInt32(aux.Value())
		case sam.NewTag("qe"):
			out.QEnd = auxInt32(aux.Value())
		case sam.NewTag("zm"):
			out.HoleNumber = auxInt32(aux.Value())
		case sam.NewTag("bc"):
			switch v := aux.Value().(type) {
			case []uint16:
				if len(v) == 2 {
					out.BcForward, out.BcReverse = int16(v[0]), int16(v[1])
				}
			case []int16:
				if len(v) == 2 {
					out.BcForward, out.BcReverse = v[0], v[1]
				}
			}
		}
	}
	return out
}

func auxInt32(v interface{}) int32 {
	switch n := v.(type) {
	case int8:
		return int32(n)
	case uint8:
		return int32(n)
	case int16:
		return int32(n)
	case uint16:
		return int32(n)
	case int32:
		return n
	case uint32:
		return int32(n)
	case int:
		return int32(n)
	}
	return 0
}
