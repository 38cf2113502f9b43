package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Merge combines d and other into a new dataset, leaving both inputs
// unchanged. The two must be the same kind, or either Generic. Filters are
// unioned, resources are unioned with id dedup, and the inputs are recorded
// as subdatasets (one level deep: a merged-in dataset that already carries
// subdatasets contributes its children directly).
//
// A merge into a dataset that already has resources requires compatible
// filter sets; on incompatibility Merge logs a warning and returns
// (nil, nil). Callers must check for the nil result. Kind mismatch and
// version regression return errors.
func (d *DataSet) Merge(other *DataSet) (*DataSet, error) {
	if other == nil {
		return d.Copy(), nil
	}
	if d.kind != other.kind && d.kind != Generic && other.kind != Generic {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf(
			"dataset: cannot merge %s with %s", d.kind, other.kind))
	}
	if compareVersions(other.version, d.version) < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"dataset: cannot merge version %s record into version %s", other.version, d.version))
	}
	firstIn := d.resources.Len() == 0
	if !firstIn && other.resources.Len() > 0 && !d.filters.TestCompatibility(other.filters) {
		log.Printf("dataset: merge aborted, incompatible filters: %s vs %s",
			d.filters.String(), other.filters.String())
		return nil, nil
	}

	kind := d.kind
	if kind == Generic {
		kind = other.kind
	}
	out := &DataSet{
		kind:            kind,
		strict:          d.strict || other.strict,
		uuid:            d.uuid,
		name:            other.name,
		tags:            other.tags,
		timeStampedName: other.timeStampedName,
		version:         other.version,
		createdAt:       d.createdAt,
		resources:       d.resources.Copy(),
		filters:         d.filters.Copy(),
		fileNames:       append(append([]string(nil), d.fileNames...), other.fileNames...),
	}
	out.filters.Merge(other.filters)
	out.resources.Merge(other.resources)

	if firstIn {
		out.meta = other.meta
		out.meta.Contigs = append([]ContigInfo(nil), other.meta.Contigs...)
		for _, sub := range other.subsets {
			out.subsets = append(out.subsets, sub.Copy())
		}
	} else {
		out.meta = mergeMetadata(d.meta, other.meta)
		if len(d.subsets) > 0 {
			for _, sub := range d.subsets {
				out.subsets = append(out.subsets, sub.Copy())
			}
		} else {
			self := d.Copy()
			self.subsets = nil
			out.subsets = append(out.subsets, self)
		}
		if len(other.subsets) > 0 {
			for _, sub := range other.subsets {
				out.subsets = append(out.subsets, sub.Copy())
			}
		} else {
			os := other.Copy()
			os.subsets = nil
			out.subsets = append(out.subsets, os)
		}
	}
	out.refreshUUID()
	return out, nil
}

// MergeAll folds Merge over a list of datasets. Any aborted merge is
// promoted to an error.
func MergeAll(sets ...*DataSet) (*DataSet, error) {
	if len(sets) == 0 {
		return nil, errors.E(errors.Invalid, "dataset: nothing to merge")
	}
	acc := sets[0]
	for _, d := range sets[1:] {
		merged, err := acc.Merge(d)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			return nil, errors.E(errors.Invalid, "dataset: merge aborted, incompatible filters")
		}
		acc = merged
	}
	return acc, nil
}

func mergeMetadata(a, b Metadata) Metadata {
	out := Metadata{NumRecords: -1, TotalLength: -1}
	if a.NumRecords >= 0 && b.NumRecords >= 0 {
		out.NumRecords = a.NumRecords + b.NumRecords
	}
	if a.TotalLength >= 0 && b.TotalLength >= 0 {
		out.TotalLength = a.TotalLength + b.TotalLength
	}
	out.Organism = a.Organism
	if out.Organism == "" {
		out.Organism = b.Organism
	}
	out.Ploidy = a.Ploidy
	if out.Ploidy == "" {
		out.Ploidy = b.Ploidy
	}
	out.Contigs = append(append([]ContigInfo(nil), a.Contigs...), b.Contigs...)
	return out
}

// compareVersions compares dotted numeric versions, returning <0, 0, >0.
// Non-numeric or missing segments compare as zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}
