package dataset

import (
	"context"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/chunk"
	"github.com/pacbioseq/dataset/reader"
)

// refTable is the unified reference-info table of a dataset: the merged
// reference tables of every resource, re-keyed with sequential ids in
// first-appearance order. Numeric reference ids are file-local and not
// comparable across resources; names are canonical and must agree on
// length.
type refTable struct {
	infos []reader.ReferenceInfo

	// localNames maps, per resource, the resource-local reference id to
	// the canonical name.
	localNames []map[int32]string

	byName map[string]int
}

func (d *DataSet) refs(ctx context.Context) (*refTable, error) {
	if d.refCache != nil {
		return d.refCache, nil
	}
	if !d.kind.Mapped() {
		return nil, errors.E(errors.NotSupported,
			"dataset: "+d.kind.String()+" has no reference table")
	}
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return nil, err
	}
	rt := &refTable{byName: make(map[string]int)}
	for _, r := range rs {
		local := make(map[int32]string)
		for _, ref := range r.References() {
			local[ref.ID] = ref.Name
			if at, ok := rt.byName[ref.Name]; ok {
				if rt.infos[at].Length != ref.Length {
					return nil, &ResourceMismatchError{
						Property: "reference " + ref.Name + " length",
						Values: []string{
							strconv.FormatInt(rt.infos[at].Length, 10),
							strconv.FormatInt(ref.Length, 10),
						},
					}
				}
				continue
			}
			rt.byName[ref.Name] = len(rt.infos)
			rt.infos = append(rt.infos, reader.ReferenceInfo{
				ID:       int32(len(rt.infos)),
				Name:     ref.Name,
				FullName: ref.FullName,
				Length:   ref.Length,
			})
		}
		rt.localNames = append(rt.localNames, local)
	}
	d.refCache = rt
	return rt, nil
}

// References returns the unified reference-info table across all
// resources, restricted to references passing the rname filter tests.
func (d *DataSet) References(ctx context.Context) ([]reader.ReferenceInfo, error) {
	rt, err := d.refs(ctx)
	if err != nil {
		return nil, err
	}
	fs := d.effectiveFilters()
	out := make([]reader.ReferenceInfo, 0, len(rt.infos))
	for _, info := range rt.infos {
		if fs.TestParam("rname", info.Name) {
			out = append(out, info)
		}
	}
	return out, nil
}

// RefNames returns the filtered reference names in table order.
func (d *DataSet) RefNames(ctx context.Context) ([]string, error) {
	infos, err := d.References(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names, nil
}

// RefLengths returns reference lengths keyed by name.
func (d *DataSet) RefLengths(ctx context.Context) (map[string]int64, error) {
	infos, err := d.References(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(infos))
	for _, info := range infos {
		out[info.Name] = info.Length
	}
	return out, nil
}

// RefLength returns the length of the named reference.
func (d *DataSet) RefLength(ctx context.Context, name string) (int64, error) {
	rt, err := d.refs(ctx)
	if err != nil {
		return 0, err
	}
	at, ok := rt.byName[name]
	if !ok {
		return 0, errors.E(errors.NotExist, "dataset: unknown reference", name)
	}
	return rt.infos[at].Length, nil
}

// RefIDs returns the unified numeric reference ids keyed by name.
func (d *DataSet) RefIDs(ctx context.Context) (map[string]int32, error) {
	infos, err := d.References(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int32, len(infos))
	for _, info := range infos {
		out[info.Name] = info.ID
	}
	return out, nil
}

// RefWindows returns the reference windows selected by the current
// filters. Each filter group naming an rname contributes one window; the
// group's tstart bound is the window end and its tend bound the window
// start, matching the overlap predicate (tstart < end AND tend > start)
// that window filters are written with. With no window-shaped groups every
// filtered reference yields one whole-length window.
func (d *DataSet) RefWindows(ctx context.Context) ([]chunk.Window, error) {
	lengths, err := d.RefLengths(ctx)
	if err != nil {
		return nil, err
	}
	fs := d.effectiveFilters()
	var windows []chunk.Window
	for _, g := range fs.Groups() {
		var (
			name       string
			start, end int64 = 0, -1
		)
		for _, p := range g {
			switch p.Name {
			case "rname":
				name = p.Value
			case "tstart", "tStart":
				if v, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
					end = v
				}
			case "tend", "tEnd":
				if v, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
					start = v
				}
			}
		}
		if name == "" {
			continue
		}
		length, ok := lengths[name]
		if !ok {
			continue
		}
		if end < 0 || end > length {
			end = length
		}
		windows = append(windows, chunk.Window{Name: name, Start: start, End: end})
	}
	if len(windows) > 0 {
		return windows, nil
	}
	names, err := d.RefNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		windows = append(windows, chunk.Window{Name: name, Start: 0, End: lengths[name]})
	}
	return windows, nil
}

// MappedReadRows returns, per reference name, the materialized-index rows
// of the records aligned to it.
func (d *DataSet) MappedReadRows(ctx context.Context) (map[string][]int, error) {
	rt, err := d.refs(ctx)
	if err != nil {
		return nil, err
	}
	ix, err := d.Index(ctx)
	if err != nil {
		return nil, err
	}
	if ix.Table.RefID == nil {
		return nil, errors.E(errors.NotSupported, "dataset: index has no reference column")
	}
	out := make(map[string][]int)
	for i, ref := range ix.Rows {
		name, ok := rt.localNames[ref.Resource][ix.Table.RefID[i]]
		if !ok {
			continue
		}
		out[name] = append(out[name], i)
	}
	return out, nil
}

// CountRecords returns the number of index records per reference name.
func (d *DataSet) CountRecords(ctx context.Context) (map[string]int64, error) {
	rows, err := d.MappedReadRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for name, rr := range rows {
		out[name] = int64(len(rr))
	}
	return out, nil
}
