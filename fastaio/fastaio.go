// Package fastaio adapts FASTA files to the dataset reader interface.
// Contigs become records (one per sequence), and the companion .fai index
// supplies the id/length/offset summary table without loading sequence
// data. It registers itself with the dataset opener and writer registries
// at init time.
package fastaio

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/pacbioseq/dataset/dataset"
	"github.com/pacbioseq/dataset/reader"
	"github.com/pacbioseq/dataset/resource"
	"github.com/pkg/errors"
)

func init() {
	open := func(ctx context.Context, res *resource.ExternalResource, strict bool) (reader.Reader, error) {
		return Open(ctx, res, strict)
	}
	dataset.RegisterOpener("fasta", open)
	dataset.RegisterOpener("fa", open)
	write := func(ctx context.Context, path string) (dataset.RecordWriter, error) {
		return NewWriter(ctx, path)
	}
	dataset.RegisterWriter("fasta", write)
	dataset.RegisterWriter("fa", write)
}

// Index files are tab-separated: "<name>\t<length>\t<offset>\t<bases per
// line>\t<bytes per line>", per samtools faidx.
var faiRegExp = regexp.MustCompile(`(\S+)\t(\d+)\t(\d+)\t(\d+)\t(\d+)`)

// emptyContigTable declares the contig column schema, so a sequence-free
// file still carries its columns.
func emptyContigTable() *reader.IndexTable {
	return &reader.IndexTable{ID: []string{}, Length: []int64{}, Offset: []int64{}}
}

// Reader is an open FASTA resource.
type Reader struct {
	ctx     context.Context
	path    string
	indexed bool

	table *reader.IndexTable

	// Sequences, loaded on first record access.
	loaded bool
	recs   []*reader.Record
}

// Open opens the FASTA file named by res. Without a companion .fai index
// the summary table is built by reading the whole file, which is fatal in
// strict mode.
func Open(ctx context.Context, res *resource.ExternalResource, strict bool) (*Reader, error) {
	r := &Reader{ctx: ctx, path: res.ID}
	faiPath := res.ID + ".fai"
	for _, ix := range res.Indices {
		if strings.HasSuffix(ix.ID, ".fai") {
			faiPath = ix.ID
		}
	}
	if resource.Exists(ctx, faiPath) {
		if err := r.loadFai(faiPath); err != nil {
			return nil, err
		}
		r.indexed = true
		return r, nil
	}
	if strict {
		return nil, errors.Errorf("fastaio: %s has no companion index", res.ID)
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) loadFai(path string) (err error) {
	in, err := file.Open(r.ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(r.ctx, in, &err)
	t := emptyContigTable()
	scanner := bufio.NewScanner(in.Reader(r.ctx))
	for scanner.Scan() {
		m := faiRegExp.FindStringSubmatch(scanner.Text())
		if m == nil {
			return errors.Errorf("fastaio: malformed index line %q in %s", scanner.Text(), path)
		}
		length, _ := strconv.ParseInt(m[2], 10, 64)
		offset, _ := strconv.ParseInt(m[3], 10, 64)
		t.ID = append(t.ID, m[1])
		t.Length = append(t.Length, length)
		t.Offset = append(t.Offset, offset)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	r.table = t
	return nil
}

// load reads every sequence into memory and, when no .fai was present,
// derives the summary table from the parse.
func (r *Reader) load() (err error) {
	if r.loaded {
		return nil
	}
	in, err := file.Open(r.ctx, r.path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(r.ctx, in, &err)
	var (
		t       = emptyContigTable()
		scanner = bufio.NewScanner(in.Reader(r.ctx))
		name    string
		comment string
		offset  int64
		start   int64
		seq     []byte
	)
	scanner.Buffer(nil, 1<<26)
	flush := func() {
		if name == "" {
			return
		}
		r.recs = append(r.recs, &reader.Record{Name: name, Comment: comment, Seq: seq})
		t.ID = append(t.ID, name)
		t.Length = append(t.Length, int64(len(seq)))
		t.Offset = append(t.Offset, start)
		seq = nil
	}
	for scanner.Scan() {
		line := scanner.Text()
		offset += int64(len(line)) + 1
		if line == "" {
			continue
		}
		if line[0] == '>' {
			flush()
			fields := strings.SplitN(line[1:], " ", 2)
			name = fields[0]
			comment = ""
			if len(fields) == 2 {
				comment = fields[1]
			}
			start = offset
			if name == "" {
				return errors.Errorf("fastaio: malformed FASTA file %s", r.path)
			}
			continue
		}
		seq = append(seq, line...)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "fastaio: read %s", r.path)
	}
	flush()
	if r.table == nil {
		r.table = t
	}
	r.loaded = true
	return nil
}

// Name implements reader.Reader.
func (r *Reader) Name() string { return r.path }

// NumRecords implements reader.Reader.
func (r *Reader) NumRecords() int {
	if r.table != nil {
		return len(r.table.ID)
	}
	return 0
}

// Indexed implements reader.Reader.
func (r *Reader) Indexed() bool { return r.indexed }

// Index implements reader.Reader.
func (r *Reader) Index() *reader.IndexTable { return r.table }

// At implements reader.Reader.
func (r *Reader) At(row int) (*reader.Record, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	if row < 0 || row >= len(r.recs) {
		return nil, errors.Errorf("fastaio: %s: row %d out of range", r.path, row)
	}
	return r.recs[row], nil
}

// Records implements reader.Reader.
func (r *Reader) Records() reader.Iterator {
	if err := r.load(); err != nil {
		return &contigIterator{err: err}
	}
	return &contigIterator{recs: r.recs}
}

// RecordsInRange implements reader.Reader. Contigs carry no alignments, so
// every range is empty.
func (r *Reader) RecordsInRange(refName string, start, end int32) reader.Iterator {
	return &contigIterator{}
}

// References implements reader.Reader.
func (r *Reader) References() []reader.ReferenceInfo { return nil }

// ReadGroups implements reader.Reader.
func (r *Reader) ReadGroups() []reader.ReadGroup { return nil }

// Mapped implements reader.Reader.
func (r *Reader) Mapped() bool { return false }

// Empty implements reader.Reader.
func (r *Reader) Empty() bool { return r.NumRecords() == 0 }

// Sorted implements reader.Reader.
func (r *Reader) Sorted() bool { return false }

// Chemistry implements reader.Reader.
func (r *Reader) Chemistry() string { return "" }

// ReadType implements reader.Reader.
func (r *Reader) ReadType() string { return "" }

// Close implements reader.Reader.
func (r *Reader) Close() error {
	r.recs = nil
	r.loaded = false
	return nil
}

type contigIterator struct {
	recs []*reader.Record
	pos  int
	rec  *reader.Record
	err  error
}

func (it *contigIterator) Scan() bool {
	if it.err != nil || it.pos >= len(it.recs) {
		return false
	}
	it.rec = it.recs[it.pos]
	it.pos++
	return true
}

func (it *contigIterator) Record() *reader.Record { return it.rec }
func (it *contigIterator) Err() error             { return it.err }
func (it *contigIterator) Close() error           { return it.err }

const lineWidth = 60

// Writer writes records as FASTA.
type Writer struct {
	ctx context.Context
	out file.File
	w   io.Writer
}

// NewWriter creates a Writer for path.
func NewWriter(ctx context.Context, path string) (*Writer, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Writer{ctx: ctx, out: out, w: out.Writer(ctx)}, nil
}

// Write writes one contig record, wrapping sequence lines.
func (w *Writer) Write(rec *reader.Record) error {
	header := ">" + rec.Name
	if rec.Comment != "" {
		header += " " + rec.Comment
	}
	if _, err := io.WriteString(w.w, header+"\n"); err != nil {
		return err
	}
	seq := rec.Seq
	for len(seq) > 0 {
		n := lineWidth
		if n > len(seq) {
			n = len(seq)
		}
		if _, err := w.w.Write(append(seq[:n:n], '\n')); err != nil {
			return err
		}
		seq = seq[n:]
	}
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	return w.out.Close(w.ctx)
}
