package reader

// Flag bits for IndexTable.Flags, matching the companion-index header
// bitmask of the underlying format.
const (
	// FlagBarcode signals that the barcode columns are populated.
	FlagBarcode uint32 = 0x2
)

// IndexTable is a columnar per-record summary table, one row per record in
// resource order. Columns that do not apply to a resource type are nil.
// Alignment resources populate RefID/TStart/TEnd, read resources populate
// QStart/QEnd/HoleNumber/ReadQual and the barcode columns when FlagBarcode is
// set, and contig resources populate ID/Length/Offset.
type IndexTable struct {
	// Flags is the index-level feature bitmask of the resource.
	Flags uint32

	RefID        []int32
	TStart, TEnd []int32

	QStart, QEnd []int32
	HoleNumber   []int32
	ReadQual     []float32
	Movie        []string

	BcForward, BcReverse []int16

	ID     []string
	Length []int64
	Offset []int64
}

// Len returns the number of rows.
func (t *IndexTable) Len() int {
	switch {
	case t.RefID != nil:
		return len(t.RefID)
	case t.QStart != nil:
		return len(t.QStart)
	case t.ID != nil:
		return len(t.ID)
	}
	return 0
}

// Barcoded reports whether the barcode columns are populated.
func (t *IndexTable) Barcoded() bool { return t.Flags&FlagBarcode != 0 }

func selectInt32(col []int32, rows []int) []int32 {
	if col == nil {
		return nil
	}
	out := make([]int32, len(rows))
	for i, r := range rows {
		out[i] = col[r]
	}
	return out
}

func selectInt16(col []int16, rows []int) []int16 {
	if col == nil {
		return nil
	}
	out := make([]int16, len(rows))
	for i, r := range rows {
		out[i] = col[r]
	}
	return out
}

func selectInt64(col []int64, rows []int) []int64 {
	if col == nil {
		return nil
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = col[r]
	}
	return out
}

func selectFloat32(col []float32, rows []int) []float32 {
	if col == nil {
		return nil
	}
	out := make([]float32, len(rows))
	for i, r := range rows {
		out[i] = col[r]
	}
	return out
}

func selectString(col []string, rows []int) []string {
	if col == nil {
		return nil
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = col[r]
	}
	return out
}

// Select returns a new table containing the given rows, in order.
func (t *IndexTable) Select(rows []int) *IndexTable {
	return &IndexTable{
		Flags:      t.Flags,
		RefID:      selectInt32(t.RefID, rows),
		TStart:     selectInt32(t.TStart, rows),
		TEnd:       selectInt32(t.TEnd, rows),
		QStart:     selectInt32(t.QStart, rows),
		QEnd:       selectInt32(t.QEnd, rows),
		HoleNumber: selectInt32(t.HoleNumber, rows),
		ReadQual:   selectFloat32(t.ReadQual, rows),
		Movie:      selectString(t.Movie, rows),
		BcForward:  selectInt16(t.BcForward, rows),
		BcReverse:  selectInt16(t.BcReverse, rows),
		ID:         selectString(t.ID, rows),
		Length:     selectInt64(t.Length, rows),
		Offset:     selectInt64(t.Offset, rows),
	}
}

// SelectMask returns a new table containing the rows for which mask is true.
func (t *IndexTable) SelectMask(mask []bool) *IndexTable {
	rows := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			rows = append(rows, i)
		}
	}
	return t.Select(rows)
}

func stackInt32(cols ...[]int32) []int32 {
	var out []int32
	for _, c := range cols {
		if c == nil {
			return nil
		}
		out = append(out, c...)
	}
	return out
}

func stackInt16(cols ...[]int16) []int16 {
	var out []int16
	for _, c := range cols {
		if c == nil {
			return nil
		}
		out = append(out, c...)
	}
	return out
}

func stackInt64(cols ...[]int64) []int64 {
	var out []int64
	for _, c := range cols {
		if c == nil {
			return nil
		}
		out = append(out, c...)
	}
	return out
}

func stackFloat32(cols ...[]float32) []float32 {
	var out []float32
	for _, c := range cols {
		if c == nil {
			return nil
		}
		out = append(out, c...)
	}
	return out
}

func stackString(cols ...[]string) []string {
	var out []string
	for _, c := range cols {
		if c == nil {
			return nil
		}
		out = append(out, c...)
	}
	return out
}

// Stack concatenates tables row-wise. A column survives only if every
// row-bearing input carries it; the combined Flags keep only the bits common
// to those inputs, so the stack is barcoded only if every row-bearing input
// is. Zero-row tables contribute nothing and veto nothing, since an empty
// resource leaves its columns unallocated.
func Stack(tables ...*IndexTable) *IndexTable {
	nonEmpty := tables[:0:0]
	for _, t := range tables {
		if t.Len() > 0 {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		if len(tables) > 0 {
			// Keep the first input's column schema, zero rows.
			return tables[0].Select(nil)
		}
		return &IndexTable{}
	}
	tables = nonEmpty
	out := &IndexTable{Flags: tables[0].Flags}
	refID := make([][]int32, len(tables))
	tStart := make([][]int32, len(tables))
	tEnd := make([][]int32, len(tables))
	qStart := make([][]int32, len(tables))
	qEnd := make([][]int32, len(tables))
	hole := make([][]int32, len(tables))
	qual := make([][]float32, len(tables))
	movie := make([][]string, len(tables))
	bcF := make([][]int16, len(tables))
	bcR := make([][]int16, len(tables))
	id := make([][]string, len(tables))
	length := make([][]int64, len(tables))
	offset := make([][]int64, len(tables))
	for i, t := range tables {
		out.Flags &= t.Flags
		refID[i], tStart[i], tEnd[i] = t.RefID, t.TStart, t.TEnd
		qStart[i], qEnd[i], hole[i] = t.QStart, t.QEnd, t.HoleNumber
		qual[i], movie[i] = t.ReadQual, t.Movie
		bcF[i], bcR[i] = t.BcForward, t.BcReverse
		id[i], length[i], offset[i] = t.ID, t.Length, t.Offset
	}
	out.RefID = stackInt32(refID...)
	out.TStart = stackInt32(tStart...)
	out.TEnd = stackInt32(tEnd...)
	out.QStart = stackInt32(qStart...)
	out.QEnd = stackInt32(qEnd...)
	out.HoleNumber = stackInt32(hole...)
	out.ReadQual = stackFloat32(qual...)
	out.Movie = stackString(movie...)
	out.BcForward = stackInt16(bcF...)
	out.BcReverse = stackInt16(bcR...)
	out.ID = stackString(id...)
	out.Length = stackInt64(length...)
	out.Offset = stackInt64(offset...)
	return out
}
