// Package dataset implements the DataSet aggregate: a typed, mergeable,
// splittable, lazily indexed metadata record wrapping external sequencing
// resource files. A DataSet owns an ordered resource collection, an
// OR-of-AND filter set, child subdatasets (one level deep), and caches a
// materialized per-record index built from the resources' companion
// indices. Identity is an MD5-derived UniqueId over the canonical content
// serialization; content equality deliberately excludes the id itself.
//
// DataSets are not safe for concurrent use. Every mutation of resources or
// filters invalidates the index and reference caches synchronously.
package dataset

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/pacbioseq/dataset/dsxml"
	"github.com/pacbioseq/dataset/filters"
	"github.com/pacbioseq/dataset/reader"
	"github.com/pacbioseq/dataset/resource"
)

// FormatVersion is the dataset record format version stamped on new
// datasets. Merging a record declaring a higher version into one declaring
// a lower version is rejected.
const FormatVersion = "4.0.1"

// ContigInfo is one per-contig descriptive record of contig-flavored
// dataset metadata.
type ContigInfo struct {
	Name        string
	Description string
	Length      int64
	Digest      string
}

// Metadata is the content metadata of a dataset. Counts of -1 mean
// "unknown" (see UpdateCounts).
type Metadata struct {
	NumRecords  int64
	TotalLength int64
	Organism    string
	Ploidy      string
	Contigs     []ContigInfo
}

// DataSet is the root aggregate.
type DataSet struct {
	kind   Kind
	strict bool

	// Object metadata.
	uuid            string
	name            string
	tags            string
	timeStampedName string
	version         string
	createdAt       string

	meta      Metadata
	resources *resource.ExternalResources
	filters   filters.Filters
	subsets   []*DataSet

	// filtersDisabled suspends filtering without discarding the groups.
	filtersDisabled bool

	// fileNames records the input paths this dataset was constructed from.
	fileNames []string

	// Lazy caches, nil until first use. Any mutation of resources, filters
	// or subsets must go through invalidate().
	readers  []reader.Reader
	index    *Index
	refCache *refTable
}

// Options configure construction.
type Options struct {
	// Strict makes degraded code paths fatal: missing companion indices,
	// count failures and resource property mismatches become errors instead
	// of warnings.
	Strict bool

	// SkipCounts leaves NumRecords/TotalLength at the unknown sentinel
	// instead of computing them at construction time.
	SkipCounts bool
}

// New creates an empty dataset of the given kind.
func New(kind Kind, opts Options) *DataSet {
	d := &DataSet{
		kind:      kind,
		strict:    opts.Strict,
		version:   FormatVersion,
		resources: &resource.ExternalResources{},
		createdAt: time.Now().UTC().Format(time.RFC3339),
	}
	d.timeStampedName = resource.TimeStampedName(kind.MetaType())
	d.name = d.timeStampedName
	var seed [16]byte
	_, _ = rand.Read(seed[:])
	d.uuid = dsxml.RandomUUID(d.toDocument(), seed[:])
	return d
}

// Kind returns the dataset's kind.
func (d *DataSet) Kind() Kind { return d.kind }

// Strict reports whether degraded code paths are fatal.
func (d *DataSet) Strict() bool { return d.strict }

// UUID returns the current UniqueId.
func (d *DataSet) UUID() string { return d.uuid }

// Name returns the dataset name.
func (d *DataSet) Name() string { return d.name }

// SetName sets the dataset name.
func (d *DataSet) SetName(name string) { d.name = name }

// Tags returns the dataset tags.
func (d *DataSet) Tags() string { return d.tags }

// SetTags sets the dataset tags.
func (d *DataSet) SetTags(tags string) { d.tags = tags }

// Version returns the declared record format version.
func (d *DataSet) Version() string { return d.version }

// Metadata returns the content metadata.
func (d *DataSet) Metadata() Metadata { return d.meta }

// NumRecords returns the recorded record count, -1 if unknown.
func (d *DataSet) NumRecords() int64 { return d.meta.NumRecords }

// TotalLength returns the recorded total read length, -1 if unknown.
func (d *DataSet) TotalLength() int64 { return d.meta.TotalLength }

// Resources returns the external resource collection. Callers mutating it
// directly must call Invalidate afterwards; prefer the DataSet mutators.
func (d *DataSet) Resources() *resource.ExternalResources { return d.resources }

// NumExternalResources returns the number of top-level resources.
func (d *DataSet) NumExternalResources() int { return d.resources.Len() }

// Filters returns a pointer to the filter set. Callers mutating it directly
// must call Invalidate afterwards.
func (d *DataSet) Filters() *filters.Filters { return &d.filters }

// SubDatasets returns the child subdatasets.
func (d *DataSet) SubDatasets() []*DataSet { return d.subsets }

// FileNames returns the input paths this dataset was constructed from.
func (d *DataSet) FileNames() []string { return d.fileNames }

// Invalidate drops every lazy cache: the materialized index, its row map,
// and the unified reference table. It is called by every mutator of
// filters, resources, or subdatasets, before the mutation becomes
// observable.
func (d *DataSet) Invalidate() {
	d.index = nil
	d.refCache = nil
}

// invalidate also closes open readers, for mutations that change the
// resource list itself.
func (d *DataSet) invalidateReaders() {
	d.Invalidate()
	for _, r := range d.readers {
		if err := r.Close(); err != nil {
			log.Error.Printf("dataset: close %s: %v", r.Name(), err)
		}
	}
	d.readers = nil
}

// AddResources appends resource entries for the given paths, skipping any
// whose id duplicates an existing resource, and stamps each new entry's
// metatype from its extension. Unrecognized extensions are an error.
func (d *DataSet) AddResources(paths ...string) error {
	spec := d.kind.spec()
	rs := make([]*resource.ExternalResource, 0, len(paths))
	for _, p := range paths {
		ext := resource.FileExt(p)
		mt, ok := spec.fileTypes[ext]
		if !ok {
			return errors.E(errors.NotSupported, fmt.Sprintf(
				"dataset: %s does not accept resource %q (extension %q)", d.kind, p, ext))
		}
		r := resource.New(p)
		r.MetaType = mt
		r.TimeStampedName = resource.TimeStampedName(mt)
		rs = append(rs, r)
	}
	d.invalidateReaders()
	d.resources.Add(rs...)
	d.refreshUUID()
	return nil
}

// AddIndices attaches companion index files to the resource at the given
// position, inferring each index's metatype from its extension.
func (d *DataSet) AddIndices(resourceIdx int, paths []string) error {
	if resourceIdx < 0 || resourceIdx >= d.resources.Len() {
		return errors.E(errors.Invalid, "dataset: no such resource", resourceIdx)
	}
	res := d.resources.At(resourceIdx)
	d.invalidateReaders()
	res.AddIndices(paths)
	for _, ix := range res.Indices {
		if ix.MetaType == "" {
			ix.MetaType = indexMetaTypes[resource.FileExt(ix.ID)]
		}
	}
	d.refreshUUID()
	return nil
}

// AddFilterGroup appends one OR filter group.
func (d *DataSet) AddFilterGroup(g filters.Filter) {
	d.Invalidate()
	d.filters.AddGroup(g)
	d.refreshUUID()
}

// AddRequirement extends every filter group with parallel parameter
// requirements (see filters.Filters.AddRequirement).
func (d *DataSet) AddRequirement(reqs map[string][]filters.Req) error {
	d.Invalidate()
	if err := d.filters.AddRequirement(reqs); err != nil {
		return err
	}
	d.refreshUUID()
	return nil
}

// DisableFilters suspends filtering: iteration and the index behave as if
// no groups were present, but the groups remain and EnableFilters restores
// them.
func (d *DataSet) DisableFilters() {
	d.Invalidate()
	d.filtersDisabled = true
}

// EnableFilters reverses DisableFilters.
func (d *DataSet) EnableFilters() {
	d.Invalidate()
	d.filtersDisabled = false
}

// FiltersDisabled reports whether filtering is suspended.
func (d *DataSet) FiltersDisabled() bool { return d.filtersDisabled }

// effectiveFilters returns the filter set honored by iteration and
// indexing: empty when disabled.
func (d *DataSet) effectiveFilters() filters.Filters {
	if d.filtersDisabled {
		return filters.Filters{}
	}
	return d.filters
}

// refreshUUID recomputes the UniqueId from the canonical content
// serialization chained with the previous id. Called after every material
// mutation of resources, filters, or subdatasets.
func (d *DataSet) refreshUUID() string {
	d.uuid = dsxml.NewUUID(d.toDocument())
	return d.uuid
}

// Equal reports content equality: equal canonical core serializations,
// UniqueId excluded. A dataset and its copy are Equal even though their
// ids differ.
func (d *DataSet) Equal(other *DataSet) bool {
	if d == nil || other == nil {
		return d == other
	}
	return dsxml.ContentDigest(d.toDocument()) == dsxml.ContentDigest(other.toDocument())
}

// Copy deep-copies the dataset (resources, filters, metadata, subdatasets)
// and assigns the copy a fresh UniqueId. Open reader handles are not
// shared; the copy reopens resources on first use.
func (d *DataSet) Copy() *DataSet {
	out, err := d.CopyAs(d.kind)
	if err != nil {
		// CastableTo(self) always holds.
		log.Panicf("dataset: self copy failed: %v", err)
	}
	return out
}

// CopyAs deep-copies the dataset as the given kind. Strict datasets may
// only cast within their declared castable set; the cast is validated
// before any other work.
func (d *DataSet) CopyAs(kind Kind) (*DataSet, error) {
	if d.strict && !d.kind.CastableTo(kind) {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf(
			"dataset: cannot cast %s to %s", d.kind, kind))
	}
	out := &DataSet{
		kind:            kind,
		strict:          d.strict,
		uuid:            d.uuid,
		name:            d.name,
		tags:            d.tags,
		timeStampedName: resource.TimeStampedName(kind.MetaType()),
		version:         d.version,
		createdAt:       d.createdAt,
		meta:            d.meta,
		resources:       d.resources.Copy(),
		filters:         d.filters.Copy(),
		filtersDisabled: d.filtersDisabled,
		fileNames:       append([]string(nil), d.fileNames...),
	}
	out.meta.Contigs = append([]ContigInfo(nil), d.meta.Contigs...)
	for _, sub := range d.subsets {
		out.subsets = append(out.subsets, sub.Copy())
	}
	out.refreshUUID()
	return out, nil
}

// Close releases every open reader handle. The dataset remains usable;
// subsequent iteration reopens resources.
func (d *DataSet) Close() error {
	e := errors.Once{}
	for _, r := range d.readers {
		e.Set(r.Close())
	}
	d.readers = nil
	d.Invalidate()
	return e.Err()
}

// resourceReaders opens (once) and returns one reader per top-level
// resource, in resource order.
func (d *DataSet) resourceReaders(ctx context.Context) ([]reader.Reader, error) {
	if d.readers != nil {
		return d.readers, nil
	}
	rs := make([]reader.Reader, 0, d.resources.Len())
	for _, res := range d.resources.Items() {
		open, err := openerFor(res.ID)
		if err != nil {
			closeAll(rs)
			return nil, err
		}
		r, err := open(ctx, res, d.strict)
		if err != nil {
			closeAll(rs)
			return nil, errors.E(err, "dataset: open resource", res.ID)
		}
		rs = append(rs, r)
	}
	d.readers = rs
	return rs, nil
}

func closeAll(rs []reader.Reader) {
	for _, r := range rs {
		if err := r.Close(); err != nil {
			log.Error.Printf("dataset: close %s: %v", r.Name(), err)
		}
	}
}

// ResourceMismatchError reports per-resource polled properties disagreeing
// across the resources of one dataset.
type ResourceMismatchError struct {
	Property string
	Values   []string
}

func (e *ResourceMismatchError) Error() string {
	return fmt.Sprintf("dataset: resources disagree on %s: %v", e.Property, e.Values)
}

// pollProperty collects prop across all resources and requires agreement.
func (d *DataSet) pollProperty(ctx context.Context, prop string, get func(reader.Reader) string) (string, error) {
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return "", err
	}
	if len(rs) == 0 {
		return "", nil
	}
	vals := make([]string, len(rs))
	for i, r := range rs {
		vals[i] = get(r)
	}
	for _, v := range vals[1:] {
		if v != vals[0] {
			err := &ResourceMismatchError{Property: prop, Values: vals}
			if d.strict {
				return "", err
			}
			log.Printf("dataset: %v (continuing, non-strict)", err)
			return vals[0], nil
		}
	}
	return vals[0], nil
}

// IsMapped reports whether the dataset's resources hold aligned records.
// The resources must agree.
func (d *DataSet) IsMapped(ctx context.Context) (bool, error) {
	v, err := d.pollProperty(ctx, "mapped", func(r reader.Reader) string {
		return fmt.Sprint(r.Mapped())
	})
	return v == "true", err
}

// IsEmpty reports whether every resource is empty. The resources must
// agree.
func (d *DataSet) IsEmpty(ctx context.Context) (bool, error) {
	v, err := d.pollProperty(ctx, "empty", func(r reader.Reader) string {
		return fmt.Sprint(r.Empty())
	})
	return v == "true", err
}

// Chemistry returns the sequencing chemistry shared by all resources.
func (d *DataSet) Chemistry(ctx context.Context) (string, error) {
	return d.pollProperty(ctx, "chemistry", reader.Reader.Chemistry)
}

// ReadType returns the read type shared by all resources.
func (d *DataSet) ReadType(ctx context.Context) (string, error) {
	return d.pollProperty(ctx, "read type", reader.Reader.ReadType)
}
