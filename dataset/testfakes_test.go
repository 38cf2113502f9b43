package dataset

import (
	"context"
	"fmt"
	"sync"

	"github.com/pacbioseq/dataset/reader"
	"github.com/pacbioseq/dataset/resource"
)

// fakeSpec is the recipe for one fake resource registered by a test. The
// opener builds a fresh reader per open so close bookkeeping stays per
// handle.
type fakeSpec struct {
	recs      []*reader.Record
	opts      reader.FakeOpts
	unindexed bool
}

var (
	fakeMu sync.Mutex
	fakes  = map[string]fakeSpec{}
)

func registerFake(path string, recs []*reader.Record, opts reader.FakeOpts) {
	fakeMu.Lock()
	fakes[path] = fakeSpec{recs: recs, opts: opts}
	fakeMu.Unlock()
}

func registerUnindexedFake(path string, recs []*reader.Record, opts reader.FakeOpts) {
	fakeMu.Lock()
	fakes[path] = fakeSpec{recs: recs, opts: opts, unindexed: true}
	fakeMu.Unlock()
}

// unindexedReader hides the fake's synthesized index, forcing the scan and
// merge code paths.
type unindexedReader struct {
	reader.Reader
}

func (u unindexedReader) Indexed() bool            { return false }
func (u unindexedReader) Index() *reader.IndexTable { return nil }

func openFake(ctx context.Context, res *resource.ExternalResource, strict bool) (reader.Reader, error) {
	fakeMu.Lock()
	spec, ok := fakes[res.ID]
	fakeMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no fake registered for %s", res.ID)
	}
	f := reader.NewFake(res.ID, spec.recs, spec.opts)
	if spec.unindexed {
		return unindexedReader{f}, nil
	}
	return f, nil
}

// captureWriter collects written records and, on Close, registers the
// output path as a fake resource so consolidation outputs can be
// reopened.
type captureWriter struct {
	path   string
	contig bool
	recs   []*reader.Record
}

func (w *captureWriter) Write(rec *reader.Record) error {
	w.recs = append(w.recs, rec)
	return nil
}

func (w *captureWriter) Close() error {
	registerFake(w.path, w.recs, reader.FakeOpts{Contig: w.contig})
	return nil
}

func init() {
	RegisterOpener("bam", openFake)
	RegisterOpener("fasta", openFake)
	RegisterWriter("bam", func(ctx context.Context, path string) (RecordWriter, error) {
		return &captureWriter{path: path}, nil
	})
	RegisterWriter("fasta", func(ctx context.Context, path string) (RecordWriter, error) {
		return &captureWriter{path: path, contig: true}, nil
	})
}

// alignedFakes registers the standard two-resource aligned fixture under
// the given path prefix and returns the resource paths. The two files
// disagree on local reference ids on purpose.
func alignedFakes(prefix string) (pathA, pathB string) {
	pathA = "/fake/" + prefix + "/a.bam"
	pathB = "/fake/" + prefix + "/b.bam"
	registerFake(pathA, []*reader.Record{
		{Name: "m1/1/0_100", Movie: "m1", HoleNumber: 1, ReadQual: 0.9,
			QStart: 0, QEnd: 100, RefName: "chr1", TStart: 0, TEnd: 100},
		{Name: "m1/2/0_100", Movie: "m1", HoleNumber: 2, ReadQual: 0.7,
			QStart: 0, QEnd: 100, RefName: "chr1", TStart: 200, TEnd: 300},
		{Name: "m1/3/0_50", Movie: "m1", HoleNumber: 3, ReadQual: 0.95,
			QStart: 0, QEnd: 50, RefName: "chr2", TStart: 10, TEnd: 60},
	}, reader.FakeOpts{
		Refs: []reader.ReferenceInfo{
			{ID: 0, Name: "chr1", Length: 1000},
			{ID: 1, Name: "chr2", Length: 500},
		},
	})
	registerFake(pathB, []*reader.Record{
		{Name: "m2/10/0_100", Movie: "m2", HoleNumber: 10, ReadQual: 0.85,
			QStart: 0, QEnd: 100, RefName: "chr1", TStart: 50, TEnd: 150},
		{Name: "m2/11/0_100", Movie: "m2", HoleNumber: 11, ReadQual: 0.6,
			QStart: 0, QEnd: 100, RefName: "chr2", TStart: 100, TEnd: 200},
	}, reader.FakeOpts{
		Refs: []reader.ReferenceInfo{
			{ID: 0, Name: "chr2", Length: 500},
			{ID: 1, Name: "chr1", Length: 1000},
		},
	})
	return pathA, pathB
}

func collectNames(it reader.Iterator) ([]string, error) {
	var names []string
	for it.Scan() {
		names = append(names, it.Record().Name)
	}
	return names, it.Close()
}
