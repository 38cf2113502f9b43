package filters

import (
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/reader"
)

// indexAccessor reads the attribute named by a filter parameter out of one
// index-table row as a comparable string.
type indexAccessor func(t *reader.IndexTable, row int) (string, bool)

// indexColumn resolves a filter parameter name to a column accessor.
// Reference names are resolved through nameMap, the resource-local
// name-to-id mapping: numeric reference ids are not stable across resource
// files, only names are canonical.
func indexColumn(name string, nameMap map[string]int32) (indexAccessor, error) {
	switch name {
	case "rname":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.RefID == nil {
				return "", false
			}
			return strconv.Itoa(int(t.RefID[row])), true
		}, nil
	case "tstart", "tStart":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.TStart == nil {
				return "", false
			}
			return strconv.Itoa(int(t.TStart[row])), true
		}, nil
	case "tend", "tEnd":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.TEnd == nil {
				return "", false
			}
			return strconv.Itoa(int(t.TEnd[row])), true
		}, nil
	case "qstart", "qStart":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.QStart == nil {
				return "", false
			}
			return strconv.Itoa(int(t.QStart[row])), true
		}, nil
	case "qend", "qEnd":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.QEnd == nil {
				return "", false
			}
			return strconv.Itoa(int(t.QEnd[row])), true
		}, nil
	case "zm", "zmw":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.HoleNumber == nil {
				return "", false
			}
			return strconv.Itoa(int(t.HoleNumber[row])), true
		}, nil
	case "movie":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.Movie == nil {
				return "", false
			}
			return t.Movie[row], true
		}, nil
	case "rq":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.ReadQual == nil {
				return "", false
			}
			return strconv.FormatFloat(float64(t.ReadQual[row]), 'f', -1, 32), true
		}, nil
	case "length":
		return func(t *reader.IndexTable, row int) (string, bool) {
			switch {
			case t.QStart != nil && t.QEnd != nil:
				return strconv.Itoa(int(t.QEnd[row] - t.QStart[row])), true
			case t.Length != nil:
				return strconv.FormatInt(t.Length[row], 10), true
			}
			return "", false
		}, nil
	case "bc":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.BcForward == nil || t.BcReverse == nil {
				return "", false
			}
			return BarcodePair(t.BcForward[row], t.BcReverse[row]), true
		}, nil
	case "id":
		return func(t *reader.IndexTable, row int) (string, bool) {
			if t.ID == nil {
				return "", false
			}
			return t.ID[row], true
		}, nil
	}
	return nil, errors.E("filters: no index column for parameter", name)
}

// FilterIndexTable evaluates the filter set against every row of an index
// table and returns the pass mask. nameMap translates reference names to the
// table's local numeric reference ids; for contig tables, where the id
// column is itself canonical, pass an identity map or nil.
func (fs Filters) FilterIndexTable(t *reader.IndexTable, nameMap map[string]int32) ([]bool, error) {
	n := t.Len()
	mask := make([]bool, n)
	if len(fs.groups) == 0 {
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}
	type compiled struct {
		get   indexAccessor
		op    Op
		value string
	}
	groups := make([][]compiled, 0, len(fs.groups))
	for _, g := range fs.groups {
		cg := make([]compiled, 0, len(g))
		for _, p := range g {
			get, err := indexColumn(p.Name, nameMap)
			if err != nil {
				return nil, err
			}
			value := p.Value
			if p.Name == "rname" {
				// Translate the name under test into the local id space.
				id, ok := nameMap[p.Value]
				if !ok {
					// Unknown name never matches; an impossible id keeps
					// the comparison semantics intact.
					id = -2
				}
				value = strconv.Itoa(int(id))
			}
			cg = append(cg, compiled{get, p.Op, value})
		}
		groups = append(groups, cg)
	}
	for row := 0; row < n; row++ {
		for _, cg := range groups {
			pass := true
			for _, c := range cg {
				got, ok := c.get(t, row)
				if !ok || !compare(c.op, got, c.value) {
					pass = false
					break
				}
			}
			if pass {
				mask[row] = true
				break
			}
		}
	}
	return mask, nil
}
