// Package resource models the external file references carried by a
// dataset: an ordered, identifier-deduplicated collection of resources, each
// with optional companion index files, an optional reference association,
// and nested sub-resources. Nothing here touches the referenced files; path
// strings are rewritten and metatypes inferred, but I/O belongs to the
// reader adapters.
package resource

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/file"
)

// ExternalResource is one external file reference. Indices holds companion
// index files and Resources nested sub-resources (e.g. a scraps file
// attached to a reads file); both share this type since index files may
// carry sub-indices of their own.
type ExternalResource struct {
	ID              string // ResourceId: a path or file:/schemeless URI
	MetaType        string
	TimeStampedName string
	Reference       string // associated reference resource, if any

	Indices   []*ExternalResource
	Resources []*ExternalResource
}

// New creates a resource for the given path.
func New(path string) *ExternalResource {
	return &ExternalResource{ID: path}
}

// AddIndices attaches companion index files. Metatype inference is deferred
// to the owning dataset, which knows the kind-specific extension mapping.
func (r *ExternalResource) AddIndices(paths []string) {
	for _, p := range paths {
		r.Indices = append(r.Indices, &ExternalResource{ID: p})
	}
}

// Copy deep-copies the resource tree.
func (r *ExternalResource) Copy() *ExternalResource {
	out := &ExternalResource{
		ID:              r.ID,
		MetaType:        r.MetaType,
		TimeStampedName: r.TimeStampedName,
		Reference:       r.Reference,
	}
	for _, idx := range r.Indices {
		out.Indices = append(out.Indices, idx.Copy())
	}
	for _, sub := range r.Resources {
		out.Resources = append(out.Resources, sub.Copy())
	}
	return out
}

// ExternalResources is an ordered collection of resources, deduplicated by
// resource identifier.
type ExternalResources struct {
	items []*ExternalResource
}

// Len returns the number of resources.
func (rs *ExternalResources) Len() int { return len(rs.items) }

// Items returns the resources in order. Callers must treat the slice as
// read-only; mutations go through Add/Replace so caches can be invalidated
// by the owning dataset.
func (rs *ExternalResources) Items() []*ExternalResource { return rs.items }

// At returns the i'th resource.
func (rs *ExternalResources) At(i int) *ExternalResource { return rs.items[i] }

// IDs returns the resource identifiers in order.
func (rs *ExternalResources) IDs() []string {
	out := make([]string, len(rs.items))
	for i, r := range rs.items {
		out[i] = r.ID
	}
	return out
}

// Add appends resources, silently skipping any whose ID duplicates an
// existing one (first wins). It returns the resources actually added.
func (rs *ExternalResources) Add(resources ...*ExternalResource) []*ExternalResource {
	seen := make(map[string]bool, len(rs.items))
	for _, r := range rs.items {
		seen[r.ID] = true
	}
	var added []*ExternalResource
	for _, r := range resources {
		if seen[r.ID] {
			continue
		}
		rs.items = append(rs.items, r)
		seen[r.ID] = true
		added = append(added, r)
	}
	return added
}

// AddPaths wraps raw paths as resources and adds them.
func (rs *ExternalResources) AddPaths(paths ...string) []*ExternalResource {
	resources := make([]*ExternalResource, len(paths))
	for i, p := range paths {
		resources[i] = New(p)
	}
	return rs.Add(resources...)
}

// Merge unions other into rs with ID-based dedup.
func (rs *ExternalResources) Merge(other *ExternalResources) {
	for _, r := range other.items {
		rs.Add(r.Copy())
	}
}

// Replace swaps the whole resource list.
func (rs *ExternalResources) Replace(items []*ExternalResource) {
	rs.items = items
}

// Copy deep-copies the collection.
func (rs *ExternalResources) Copy() *ExternalResources {
	out := &ExternalResources{items: make([]*ExternalResource, len(rs.items))}
	for i, r := range rs.items {
		out.items[i] = r.Copy()
	}
	return out
}

// Walk visits every resource in the tree: top-level entries, their indices,
// and nested sub-resources, depth first.
func (rs *ExternalResources) Walk(fn func(*ExternalResource)) {
	stack := make([]*ExternalResource, len(rs.items))
	copy(stack, rs.items)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.ID == "" {
			continue
		}
		fn(r)
		stack = append(stack, r.Indices...)
		stack = append(stack, r.Resources...)
	}
}

// localPath splits a resource identifier into its local filesystem path, if
// it has one. Only file: and schemeless URIs are path-rewritable.
func localPath(id string) (string, bool) {
	u, err := url.Parse(id)
	if err != nil {
		return id, true // not a URI at all: treat as a bare path
	}
	if u.Scheme == "" || u.Scheme == "file" {
		if u.Path != "" {
			return u.Path, true
		}
		return u.Opaque, true
	}
	return "", false
}

// RewritePaths applies fn to the local path of every resource in the tree
// whose identifier is a file: or schemeless URI, storing the result as a
// bare path. It returns the resources whose identifier changed, so the
// owning dataset can re-derive metatypes and timestamped names.
func (rs *ExternalResources) RewritePaths(fn func(string) (string, error)) ([]*ExternalResource, error) {
	var changed []*ExternalResource
	var firstErr error
	rs.Walk(func(r *ExternalResource) {
		if firstErr != nil {
			return
		}
		p, ok := localPath(r.ID)
		if !ok {
			return
		}
		np, err := fn(p)
		if err != nil {
			firstErr = err
			return
		}
		if np != r.ID {
			r.ID = np
			changed = append(changed, r)
		}
	})
	return changed, firstErr
}

// AbsPath resolves a possibly relative path against start.
func AbsPath(path, start string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(start, path))
}

// RelPath makes path relative to start.
func RelPath(path, start string) (string, error) {
	if start == "" {
		start = "."
	}
	return filepath.Rel(start, path)
}

// FileExt returns the extension token of a filename used for metatype and
// dataset-kind dispatch. Compound extensions used by companion indices
// (e.g. "contig.index", "bax.h5") are kept whole.
func FileExt(fname string) string {
	base := filepath.Base(fname)
	remainder := strings.TrimSuffix(base, filepath.Ext(base))
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	switch ext {
	case "h5", "index":
		if prev := strings.TrimPrefix(filepath.Ext(remainder), "."); prev != "" {
			switch {
			case ext == "h5":
				return prev + "." + ext
			case prev == "contig":
				return prev + "." + ext
			}
		}
	}
	return ext
}

// TimeStampedName derives the timestamped display name for a metatype, e.g.
// "pacbio_dataset_alignmentset-160112_231410923".
func TimeStampedName(metaType string) string {
	mt := strings.ToLower(strings.Join(strings.Split(metaType, "."), "_"))
	stamp := time.Now().UTC().Format("060102_150405.000")
	stamp = strings.Replace(stamp, ".", "", 1)
	return mt + "-" + stamp
}

// Exists reports whether the path currently resolves. The check goes
// through the base file registry, so registered schemes (s3:// and
// friends) are checked the same way as local paths.
func Exists(ctx context.Context, path string) bool {
	_, err := file.Stat(ctx, path)
	return err == nil
}
