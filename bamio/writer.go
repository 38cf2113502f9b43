package bamio

import (
	"context"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/pacbioseq/dataset/reader"
	"github.com/pkg/errors"
)

// Writer writes dataset records to a BAM file. Records are buffered and
// written at Close, once the set of referenced sequences is known; the
// reference lengths are taken from the largest aligned end observed.
type Writer struct {
	ctx  context.Context
	path string
	recs []*reader.Record
}

// NewWriter creates a Writer for path.
func NewWriter(ctx context.Context, path string) (*Writer, error) {
	return &Writer{ctx: ctx, path: path}, nil
}

// Write buffers one record.
func (w *Writer) Write(rec *reader.Record) error {
	w.recs = append(w.recs, rec)
	return nil
}

// Close writes the buffered records and closes the file.
func (w *Writer) Close() error {
	refLens := make(map[string]int)
	var refOrder []string
	for _, rec := range w.recs {
		if rec.RefName == "" {
			continue
		}
		if _, ok := refLens[rec.RefName]; !ok {
			refOrder = append(refOrder, rec.RefName)
		}
		if end := int(rec.TEnd); end > refLens[rec.RefName] {
			refLens[rec.RefName] = end
		}
	}
	refs := make(map[string]*sam.Reference, len(refOrder))
	refList := make([]*sam.Reference, 0, len(refOrder))
	for _, name := range refOrder {
		ref, err := sam.NewReference(name, "", "", refLens[name], nil, nil)
		if err != nil {
			return errors.Wrapf(err, "bamio: reference %s", name)
		}
		refs[name] = ref
		refList = append(refList, ref)
	}
	header, err := sam.NewHeader(nil, refList)
	if err != nil {
		return errors.Wrap(err, "bamio: build header")
	}

	out, err := file.Create(w.ctx, w.path)
	if err != nil {
		return err
	}
	bw, err := bam.NewWriter(out.Writer(w.ctx), header, 1)
	if err != nil {
		out.Close(w.ctx) // nolint: errcheck
		return errors.Wrapf(err, "bamio: create %s", w.path)
	}
	for _, rec := range w.recs {
		var (
			ref   *sam.Reference
			pos   = -1
			cigar []sam.CigarOp
		)
		if rec.RefName != "" && len(rec.Seq) > 0 {
			ref = refs[rec.RefName]
			pos = int(rec.TStart)
			cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, len(rec.Seq))}
		}
		qual := make([]byte, len(rec.Seq))
		for i := range qual {
			qual[i] = 0xff
		}
		sr, err := sam.NewRecord(rec.Name, ref, nil, pos, -1, 0, rec.MapQ, cigar, rec.Seq, qual, nil)
		if err != nil {
			bw.Close()       // nolint: errcheck
			out.Close(w.ctx) // nolint: errcheck
			return errors.Wrapf(err, "bamio: record %s", rec.Name)
		}
		if err := bw.Write(sr); err != nil {
			bw.Close()       // nolint: errcheck
			out.Close(w.ctx) // nolint: errcheck
			return err
		}
	}
	if err := bw.Close(); err != nil {
		out.Close(w.ctx) // nolint: errcheck
		return err
	}
	return out.Close(w.ctx)
}
