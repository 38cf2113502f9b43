package dataset

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/pacbioseq/dataset/chunk"
	"github.com/pacbioseq/dataset/reader"
	"github.com/pacbioseq/dataset/resource"
)

// RecordWriter writes records to one output resource file. Adapters
// register constructors per output extension.
type RecordWriter interface {
	Write(*reader.Record) error
	Close() error
}

// WriterFunc creates a RecordWriter for an output path.
type WriterFunc func(ctx context.Context, path string) (RecordWriter, error)

var (
	writerMu sync.Mutex
	writers  = map[string]WriterFunc{}
)

// RegisterWriter installs fn as the record writer for output files with
// the given extension (per resource.FileExt).
func RegisterWriter(ext string, fn WriterFunc) {
	writerMu.Lock()
	writers[ext] = fn
	writerMu.Unlock()
}

func writerFor(ctx context.Context, path string) (RecordWriter, error) {
	ext := resource.FileExt(path)
	writerMu.Lock()
	fn, ok := writers[ext]
	writerMu.Unlock()
	if !ok {
		return nil, errors.E(errors.NotSupported, "dataset: no writer registered for", path)
	}
	return fn(ctx, path)
}

// windowSuffixes are the algorithm tags chunked consensus tools append to
// windowed contig names.
var windowSuffixes = []string{"|quiver", "|plurality", "|arrow", "|poa"}

// popSuffix strips a trailing algorithm tag, returning the bare name and
// the tag (empty when none).
func popSuffix(name string) (string, string) {
	for _, s := range windowSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSuffix(name, s), s
		}
	}
	return name, ""
}

// parseWindow splits a windowed contig name "base_start_end" into its
// parts. Names without two trailing integer fields are not windows.
func parseWindow(name string) (base string, start, end int64, ok bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return name, 0, 0, false
	}
	start, err1 := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	end, err2 := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err1 != nil || err2 != nil || end < start {
		return name, 0, 0, false
	}
	return strings.Join(parts[:len(parts)-2], "_"), start, end, true
}

// removeWindow inverts the windowed naming convention: "base_0_100|arrow"
// collapses to "base|arrow", anything else is returned unchanged.
func removeWindow(name string) string {
	bare, suffix := popSuffix(name)
	if base, _, _, ok := parseWindow(bare); ok {
		return base + suffix
	}
	return name
}

type contigPiece struct {
	start, end int64
	seq        []byte
}

// ConsolidateContigs collapses window-suffixed contig records into whole
// contigs and writes them to a single new resource at outPath, which
// replaces the dataset's resource list. Windows of one contig must tile
// without overlap; gaps are fatal in strict mode and zero-filled
// otherwise.
func (d *DataSet) ConsolidateContigs(ctx context.Context, outPath string) error {
	if !d.kind.spec().contigish {
		return errors.E(errors.NotSupported,
			"dataset: cannot consolidate "+d.kind.String()+" contigs")
	}
	it, err := d.Records(ctx)
	if err != nil {
		return err
	}
	pieces := make(map[string][]contigPiece)
	var order []string
	for it.Scan() {
		rec := it.Record()
		bare, suffix := popSuffix(rec.Name)
		base, start, end, ok := parseWindow(bare)
		key := base + suffix
		if !ok {
			key = rec.Name
			start, end = 0, int64(len(rec.Seq))
		}
		if _, seen := pieces[key]; !seen {
			order = append(order, key)
		}
		pieces[key] = append(pieces[key], contigPiece{start: start, end: end, seq: rec.Seq})
	}
	if err := it.Close(); err != nil {
		return err
	}

	w, err := writerFor(ctx, outPath)
	if err != nil {
		return err
	}
	var contigs []ContigInfo
	for _, key := range order {
		ps := pieces[key]
		sort.Slice(ps, func(a, b int) bool { return ps[a].start < ps[b].start })
		var seq []byte
		at := ps[0].start
		for _, p := range ps {
			switch {
			case p.start > at:
				if d.strict {
					w.Close() // nolint: errcheck
					return errors.E(errors.Invalid, fmt.Sprintf(
						"dataset: contig %s has a window gap at %d..%d", key, at, p.start))
				}
				log.Printf("dataset: contig %s window gap at %d..%d, zero-filling", key, at, p.start)
				seq = append(seq, make([]byte, p.start-at)...)
			case p.start < at:
				// Overlapping windows keep the earlier call.
				if skip := at - p.start; skip < int64(len(p.seq)) {
					p.seq = p.seq[skip:]
				} else {
					continue
				}
			}
			seq = append(seq, p.seq...)
			at = p.end
		}
		rec := &reader.Record{Name: key, Seq: seq}
		if err := w.Write(rec); err != nil {
			w.Close() // nolint: errcheck
			return err
		}
		contigs = append(contigs, ContigInfo{Name: key, Length: int64(len(seq))})
	}
	if err := w.Close(); err != nil {
		return err
	}
	return d.replaceWithOutput(ctx, []string{outPath}, contigs)
}

// Consolidate rewrites the dataset's resources into numFiles output files
// (fewer files, same records) and replaces the resource list with the
// outputs. outPath names the first output; further files append a
// ".N" chunk tag before the extension. Contig-flavored kinds instead
// collapse window-suffixed contigs (see ConsolidateContigs).
func (d *DataSet) Consolidate(ctx context.Context, outPath string, numFiles int) error {
	if d.kind.spec().contigish {
		return d.ConsolidateContigs(ctx, outPath)
	}
	if numFiles < 1 {
		numFiles = 1
	}
	if numFiles > d.resources.Len() {
		numFiles = d.resources.Len()
	}
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return err
	}
	weights := make([]int64, len(rs))
	for i, r := range rs {
		weights[i] = int64(r.NumRecords())
	}
	paths := make([]string, numFiles)
	for i := range paths {
		paths[i] = outPath
		if i > 0 {
			ext := "." + resource.FileExt(outPath)
			paths[i] = strings.TrimSuffix(outPath, ext) + fmt.Sprintf(".%d", i) + ext
		}
	}
	for ci, group := range chunk.Balance(weights, numFiles) {
		w, err := writerFor(ctx, paths[ci])
		if err != nil {
			return err
		}
		for _, ri := range group {
			it := rs[ri].Records()
			for it.Scan() {
				if err := w.Write(it.Record()); err != nil {
					it.Close() // nolint: errcheck
					w.Close()  // nolint: errcheck
					return err
				}
			}
			if err := it.Close(); err != nil {
				w.Close() // nolint: errcheck
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	return d.replaceWithOutput(ctx, paths, nil)
}

// replaceWithOutput points the dataset at freshly written resource files.
func (d *DataSet) replaceWithOutput(ctx context.Context, paths []string, contigs []ContigInfo) error {
	d.invalidateReaders()
	d.resources.Replace(nil)
	if err := d.AddResources(paths...); err != nil {
		return err
	}
	d.meta.Contigs = contigs
	d.refreshUUID()
	return d.UpdateCounts(ctx)
}
