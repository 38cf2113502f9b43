package dataset

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/dsxml"
	"github.com/pacbioseq/dataset/filters"
	"github.com/pacbioseq/dataset/resource"
)

// toDocument converts the dataset to its serializable document form. The
// conversion is deterministic: element order follows resource, filter, and
// subdataset order.
func (d *DataSet) toDocument() *dsxml.Document {
	doc := &dsxml.Document{
		UniqueID:        d.uuid,
		MetaType:        d.kind.MetaType(),
		Name:            d.name,
		Tags:            d.tags,
		TimeStampedName: d.timeStampedName,
		Version:         d.version,
		CreatedAt:       d.createdAt,
	}
	doc.SetRootTag(d.kind.RootTag())
	for _, res := range d.resources.Items() {
		doc.Resources.Items = append(doc.Resources.Items, resourceToDoc(res))
	}
	if !d.filters.Empty() {
		fl := &dsxml.FilterList{}
		for _, g := range d.filters.Groups() {
			f := &dsxml.Filter{}
			for _, p := range g {
				f.Properties = append(f.Properties, &dsxml.Property{
					Name:     p.Name,
					Operator: string(p.Op),
					Value:    p.Value,
				})
			}
			fl.Items = append(fl.Items, f)
		}
		doc.Filters = fl
	}
	if len(d.subsets) > 0 {
		sl := &dsxml.SubSetList{}
		for _, sub := range d.subsets {
			sl.Items = append(sl.Items, sub.toDocument())
		}
		doc.SubSets = sl
	}
	md := &dsxml.Metadata{
		NumRecords:  d.meta.NumRecords,
		TotalLength: d.meta.TotalLength,
		Organism:    d.meta.Organism,
		Ploidy:      d.meta.Ploidy,
	}
	if len(d.meta.Contigs) > 0 {
		md.Contigs = &dsxml.ContigList{}
		for _, c := range d.meta.Contigs {
			md.Contigs.Items = append(md.Contigs.Items, &dsxml.Contig{
				Name:        c.Name,
				Description: c.Description,
				Length:      c.Length,
				Digest:      c.Digest,
			})
		}
	}
	doc.Metadata = md
	return doc
}

func resourceToDoc(r *resource.ExternalResource) *dsxml.Resource {
	out := &dsxml.Resource{
		ResourceID:      r.ID,
		MetaType:        r.MetaType,
		TimeStampedName: r.TimeStampedName,
		Reference:       r.Reference,
	}
	if len(r.Indices) > 0 {
		out.Indices = &dsxml.ResourceIndices{}
		for _, ix := range r.Indices {
			out.Indices.Items = append(out.Indices.Items, resourceToDoc(ix))
		}
	}
	if len(r.Resources) > 0 {
		out.Resources = &dsxml.ResourceList{}
		for _, sub := range r.Resources {
			out.Resources.Items = append(out.Resources.Items, resourceToDoc(sub))
		}
	}
	return out
}

// fromDocument populates a fresh dataset from a parsed document. The kind
// is taken from the root tag; when the caller already committed to a kind
// (typed open), a mismatching document is a construction error.
func fromDocument(doc *dsxml.Document, want Kind, opts Options) (*DataSet, error) {
	kind, err := KindForRootTag(doc.RootTag())
	if err != nil {
		return nil, err
	}
	if want != Generic && kind != want && kind != Generic {
		return nil, errors.E(errors.Invalid, "dataset: record is a "+kind.String()+
			", not a "+want.String())
	}
	if want != Generic {
		kind = want
	}
	d := &DataSet{
		kind:            kind,
		strict:          opts.Strict,
		uuid:            doc.UniqueID,
		name:            doc.Name,
		tags:            doc.Tags,
		timeStampedName: doc.TimeStampedName,
		version:         doc.Version,
		createdAt:       doc.CreatedAt,
		resources:       &resource.ExternalResources{},
		meta:            Metadata{NumRecords: -1, TotalLength: -1},
	}
	if d.version == "" {
		d.version = FormatVersion
	}
	for _, r := range doc.Resources.Items {
		d.resources.Add(resourceFromDoc(r))
	}
	if doc.Filters != nil {
		for _, f := range doc.Filters.Items {
			var g filters.Filter
			for _, p := range f.Properties {
				op, err := filters.ParseOp(p.Operator)
				if err != nil {
					return nil, err
				}
				g = append(g, filters.Param{Name: p.Name, Op: op, Value: p.Value})
			}
			d.filters.AddGroup(g)
		}
	}
	if doc.SubSets != nil {
		for _, sd := range doc.SubSets.Items {
			sub, err := fromDocument(sd, Generic, opts)
			if err != nil {
				return nil, err
			}
			d.subsets = append(d.subsets, sub)
		}
	}
	if doc.Metadata != nil {
		d.meta.NumRecords = doc.Metadata.NumRecords
		d.meta.TotalLength = doc.Metadata.TotalLength
		d.meta.Organism = doc.Metadata.Organism
		d.meta.Ploidy = doc.Metadata.Ploidy
		if doc.Metadata.Contigs != nil {
			for _, c := range doc.Metadata.Contigs.Items {
				d.meta.Contigs = append(d.meta.Contigs, ContigInfo{
					Name:        c.Name,
					Description: c.Description,
					Length:      c.Length,
					Digest:      c.Digest,
				})
			}
		}
	}
	if d.uuid == "" {
		d.refreshUUID()
	}
	return d, nil
}

func resourceFromDoc(r *dsxml.Resource) *resource.ExternalResource {
	out := &resource.ExternalResource{
		ID:              r.ResourceID,
		MetaType:        r.MetaType,
		TimeStampedName: r.TimeStampedName,
		Reference:       r.Reference,
	}
	if r.Indices != nil {
		for _, ix := range r.Indices.Items {
			out.Indices = append(out.Indices, resourceFromDoc(ix))
		}
	}
	if r.Resources != nil {
		for _, sub := range r.Resources.Items {
			out.Resources = append(out.Resources, resourceFromDoc(sub))
		}
	}
	return out
}

// Write serializes the dataset to path (gzip when path ends in ".gz").
func (d *DataSet) Write(ctx context.Context, path string) error {
	return dsxml.Write(ctx, path, d.toDocument())
}

// Marshal returns the serialized record.
func (d *DataSet) Marshal() ([]byte, error) {
	return dsxml.Marshal(d.toDocument())
}
