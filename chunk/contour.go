package chunk

// Contour builds a per-base read-coverage depth profile over a reference of
// the given length from record start/end coordinates: a difference array of
// start and end deltas, prefix-summed. The profile has length+1 entries so
// an end delta at the final base still lands inside the array.
func Contour(starts, ends []int32, length int64) []int64 {
	cov := make([]int64, length+1)
	for _, s := range starts {
		if int64(s) >= 0 && int64(s) <= length {
			cov[s]++
		}
	}
	for _, e := range ends {
		if int64(e) >= 0 && int64(e) <= length {
			cov[e]--
		}
	}
	var cur int64
	for i, delta := range cov {
		cur += delta
		cov[i] = cur
	}
	return cov
}

// SplitContour walks a coverage profile and returns splits breakpoints, the
// first always 0, such that the coverage mass between consecutive
// breakpoints is roughly equal. Chunk boundaries therefore fall at positions
// of comparable read coverage rather than reference-length parity.
func SplitContour(contour []int64, splits int) []int64 {
	var total int64
	for _, c := range contour {
		total += c
	}
	splitSize := total / int64(splits)
	breaks := []int64{0}
	for i := 1; i < splits; i++ {
		pos := breaks[len(breaks)-1]
		var size int64
		for size < splitSize && pos < int64(len(contour)-1) {
			pos++
			size += contour[pos]
		}
		breaks = append(breaks, pos)
	}
	return breaks
}
