package dataset

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/pacbioseq/dataset/reader"
)

// RowRef resolves one row of the materialized index back to its origin:
// the resource (by position) and the row within that resource's own index.
type RowRef struct {
	Resource int
	Row      int
}

// Index is the lazily materialized per-record index of a dataset: the
// filtered, stacked companion-index rows of every resource, in resource
// order, paired with the provenance map used for random access.
type Index struct {
	Table *reader.IndexTable
	Rows  []RowRef
}

// Len returns the number of passing records.
func (ix *Index) Len() int { return len(ix.Rows) }

// Index materializes (once) and returns the dataset's record index.
// Filters are applied per resource against that resource's own companion
// index, translating reference names through the resource-local name map
// since numeric reference ids are not comparable across files. In strict
// mode an unindexed resource is an error; otherwise a degraded table is
// synthesized by scanning the resource.
func (d *DataSet) Index(ctx context.Context) (*Index, error) {
	if d.index != nil {
		return d.index, nil
	}
	rs, err := d.resourceReaders(ctx)
	if err != nil {
		return nil, err
	}
	fs := d.effectiveFilters()
	var (
		tables []*reader.IndexTable
		rows   []RowRef
	)
	for ri, r := range rs {
		table := r.Index()
		if !r.Indexed() || table == nil {
			if d.strict {
				return nil, errors.E(errors.NotExist,
					"dataset: resource has no companion index", r.Name())
			}
			log.Printf("dataset: %s has no companion index, scanning (slow)", r.Name())
			table, err = synthesizeTable(r)
			if err != nil {
				return nil, err
			}
		}
		nameMap := make(map[string]int32)
		for _, ref := range r.References() {
			nameMap[ref.Name] = ref.ID
		}
		mask, err := fs.FilterIndexTable(table, nameMap)
		if err != nil {
			return nil, err
		}
		kept := make([]int, 0, len(mask))
		for row, ok := range mask {
			if ok {
				kept = append(kept, row)
				rows = append(rows, RowRef{Resource: ri, Row: row})
			}
		}
		tables = append(tables, table.Select(kept))
	}
	d.index = &Index{Table: reader.Stack(tables...), Rows: rows}
	return d.index, nil
}

// Len returns the number of records passing the current filters.
func (d *DataSet) Len(ctx context.Context) (int, error) {
	ix, err := d.Index(ctx)
	if err != nil {
		return 0, err
	}
	return ix.Len(), nil
}

// At returns record i of the materialized index. Negative indices wrap
// from the end.
func (d *DataSet) At(ctx context.Context, i int) (*reader.Record, error) {
	ix, err := d.Index(ctx)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i += ix.Len()
	}
	if i < 0 || i >= ix.Len() {
		return nil, errors.E(errors.Invalid, "dataset: index out of range", i)
	}
	ref := ix.Rows[i]
	return d.readers[ref.Resource].At(ref.Row)
}

// ByID returns the first record whose index id column matches id. Only
// contig-style resources carry an id column.
func (d *DataSet) ByID(ctx context.Context, id string) (*reader.Record, error) {
	ix, err := d.Index(ctx)
	if err != nil {
		return nil, err
	}
	if ix.Table.ID == nil {
		return nil, errors.E(errors.NotSupported, "dataset: index has no id column")
	}
	for i, v := range ix.Table.ID {
		if v == id {
			ref := ix.Rows[i]
			return d.readers[ref.Resource].At(ref.Row)
		}
	}
	return nil, errors.E(errors.NotExist, "dataset: no record with id", id)
}

// synthesizeTable builds an index table by scanning every record of an
// unindexed resource. The degraded path for non-strict datasets.
func synthesizeTable(r reader.Reader) (*reader.IndexTable, error) {
	t := &reader.IndexTable{
		QStart:     []int32{},
		QEnd:       []int32{},
		HoleNumber: []int32{},
		ReadQual:   []float32{},
		Movie:      []string{},
		BcForward:  []int16{},
		BcReverse:  []int16{},
	}
	nameMap := make(map[string]int32)
	for _, ref := range r.References() {
		nameMap[ref.Name] = ref.ID
	}
	mapped := r.Mapped()
	if mapped {
		t.RefID = []int32{}
		t.TStart = []int32{}
		t.TEnd = []int32{}
	}
	barcoded := false
	it := r.Records()
	for it.Scan() {
		rec := it.Record()
		if mapped {
			id, ok := nameMap[rec.RefName]
			if !ok {
				id = -1
			}
			t.RefID = append(t.RefID, id)
			t.TStart = append(t.TStart, rec.TStart)
			t.TEnd = append(t.TEnd, rec.TEnd)
		}
		t.QStart = append(t.QStart, rec.QStart)
		t.QEnd = append(t.QEnd, rec.QEnd)
		t.HoleNumber = append(t.HoleNumber, rec.HoleNumber)
		t.ReadQual = append(t.ReadQual, rec.ReadQual)
		t.Movie = append(t.Movie, rec.Movie)
		t.BcForward = append(t.BcForward, rec.BcForward)
		t.BcReverse = append(t.BcReverse, rec.BcReverse)
		if rec.BcForward >= 0 && (rec.BcForward != 0 || rec.BcReverse != 0) {
			barcoded = true
		}
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	if barcoded {
		t.Flags |= reader.FlagBarcode
	}
	return t, nil
}
