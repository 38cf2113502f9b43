package dataset

import (
	"bufio"
	"context"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pacbioseq/dataset/dsxml"
	"github.com/pacbioseq/dataset/resource"
)

// isRecordPath reports whether path names a serialized dataset record.
func isRecordPath(path string) bool {
	return strings.HasSuffix(path, ".xml") || strings.HasSuffix(path, ".xml.gz")
}

// Open loads a dataset record from path, resolving the kind from the
// record's root tag.
func Open(ctx context.Context, path string, opts Options) (*DataSet, error) {
	return OpenKind(ctx, Generic, opts, path)
}

// OpenKind builds a dataset of the given kind from a mix of input paths:
// serialized dataset records (merged in order), fofn manifests (expanded),
// and raw resource files (appended as resources). A Generic kind defers to
// the first record's root tag. Relative paths inside records and manifests
// resolve against the containing file's directory.
func OpenKind(ctx context.Context, kind Kind, opts Options, paths ...string) (*DataSet, error) {
	if len(paths) == 0 {
		return New(kind, opts), nil
	}
	var (
		acc       *DataSet
		resources []string
	)
	for _, path := range paths {
		switch {
		case isRecordPath(path):
			doc, err := dsxml.Read(ctx, path)
			if err != nil {
				return nil, err
			}
			d, err := fromDocument(doc, kind, opts)
			if err != nil {
				return nil, err
			}
			if err := d.resolveRelativePaths(filepath.Dir(path)); err != nil {
				return nil, err
			}
			d.fileNames = []string{path}
			if acc == nil {
				acc = d
				if kind == Generic {
					kind = d.kind
				}
				continue
			}
			merged, err := acc.Merge(d)
			if err != nil {
				return nil, err
			}
			if merged == nil {
				return nil, errors.E(errors.Invalid, "dataset: incompatible records", path)
			}
			acc = merged
		case strings.HasSuffix(path, ".fofn"):
			entries, err := readFofn(ctx, path)
			if err != nil {
				return nil, err
			}
			sub, err := OpenKind(ctx, kind, opts, entries...)
			if err != nil {
				return nil, err
			}
			if acc == nil {
				acc = sub
				if kind == Generic {
					kind = sub.kind
				}
			} else {
				merged, err := acc.Merge(sub)
				if err != nil {
					return nil, err
				}
				if merged == nil {
					return nil, errors.E(errors.Invalid, "dataset: incompatible records", path)
				}
				acc = merged
			}
		default:
			resources = append(resources, path)
		}
	}
	if acc == nil {
		if kind == Generic {
			var err error
			if kind, err = kindForResources(resources); err != nil {
				return nil, err
			}
		}
		acc = New(kind, opts)
	}
	if len(resources) > 0 {
		if err := acc.AddResources(resources...); err != nil {
			return nil, err
		}
	}
	acc.fileNames = append([]string(nil), paths...)
	if !opts.SkipCounts {
		if err := acc.UpdateCounts(ctx); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// OpenDataFile builds a dataset directly from raw resource files, divining
// the kind from the file contents: BAM resources become a SubreadSet or,
// when the records are aligned, an AlignmentSet; FASTA resources become a
// ContigSet.
func OpenDataFile(ctx context.Context, opts Options, paths ...string) (*DataSet, error) {
	kind, err := kindForResources(paths)
	if err != nil {
		return nil, err
	}
	d, err := OpenKind(ctx, kind, opts, paths...)
	if err != nil {
		return nil, err
	}
	if kind == Subread {
		mapped, err := d.IsMapped(ctx)
		if err != nil {
			if d.strict {
				return nil, err
			}
			log.Printf("dataset: cannot poll alignment state: %v", err)
		} else if mapped {
			return d.CopyAs(Alignment)
		}
	}
	return d, nil
}

func kindForResources(paths []string) (Kind, error) {
	if len(paths) == 0 {
		return Generic, nil
	}
	kind := Generic
	for _, p := range paths {
		var k Kind
		switch resource.FileExt(p) {
		case "bam":
			k = Subread
		case "fasta", "fa":
			k = Contig
		case "xml", "gz", "fofn":
			continue
		default:
			return Generic, errors.E(errors.NotSupported, "dataset: unrecognized resource file", p)
		}
		if kind == Generic {
			kind = k
		} else if kind != k {
			return Generic, errors.E(errors.Invalid, "dataset: mixed resource file types")
		}
	}
	return kind, nil
}

// readFofn reads a file-of-file-names manifest: one path per line, blank
// lines and #-comments skipped, relative entries resolved against the
// manifest's directory.
func readFofn(ctx context.Context, path string) (entries []string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	dir := filepath.Dir(path)
	scanner := bufio.NewScanner(in.Reader(ctx))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) && !strings.Contains(line, "://") {
			line = filepath.Join(dir, line)
		}
		entries = append(entries, line)
	}
	return entries, scanner.Err()
}

// resolveRelativePaths rewrites relative resource paths against dir, so a
// record loaded from disk refers to its neighbors regardless of the
// process working directory.
func (d *DataSet) resolveRelativePaths(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return d.rewritePaths(func(p string) (string, error) {
		if filepath.IsAbs(p) {
			return p, nil
		}
		return filepath.Join(dir, p), nil
	})
}

// rewritePaths applies fn to every local resource path in the dataset's
// resource tree and all subdatasets, re-deriving metatype and timestamped
// name for any resource whose file kind changed.
func (d *DataSet) rewritePaths(fn func(string) (string, error)) error {
	d.invalidateReaders()
	changed, err := d.resources.RewritePaths(fn)
	if err != nil {
		return err
	}
	for _, r := range changed {
		if mt := indexMetaTypes[resource.FileExt(r.ID)]; mt != "" && r.MetaType != "" &&
			strings.HasPrefix(r.MetaType, "PacBio.Index.") && r.MetaType != mt {
			r.MetaType = mt
			r.TimeStampedName = resource.TimeStampedName(mt)
		}
	}
	for _, sub := range d.subsets {
		if err := sub.rewritePaths(fn); err != nil {
			return err
		}
	}
	return nil
}

// MakePathsAbsolute rewrites every relative file: or schemeless resource
// path to an absolute path, resolved against start (the process working
// directory when start is empty).
func (d *DataSet) MakePathsAbsolute(start string) error {
	err := d.rewritePaths(func(p string) (string, error) {
		return resource.AbsPath(p, start)
	})
	if err == nil {
		d.refreshUUID()
	}
	return err
}

// MakePathsRelative rewrites every local resource path relative to start.
func (d *DataSet) MakePathsRelative(start string) error {
	err := d.rewritePaths(func(p string) (string, error) {
		return resource.RelPath(p, start)
	})
	if err == nil {
		d.refreshUUID()
	}
	return err
}

// ToFofn returns the dataset's top-level resource paths. With uri set,
// paths are returned exactly as stored; otherwise file: URIs are stripped
// to plain paths.
func (d *DataSet) ToFofn(uri bool) []string {
	out := make([]string, 0, d.resources.Len())
	for _, r := range d.resources.Items() {
		id := r.ID
		if !uri {
			id = strings.TrimPrefix(id, "file://")
			id = strings.TrimPrefix(id, "file:")
		}
		out = append(out, id)
	}
	return out
}

// WriteFofn writes the dataset's resource paths as a fofn manifest.
func (d *DataSet) WriteFofn(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	for _, p := range d.ToFofn(false) {
		if _, err := w.Write([]byte(p + "\n")); err != nil {
			return err
		}
	}
	return nil
}
