// Package chunk implements the load-balancing primitives behind every
// dataset splitting mode: a longest-processing-time round-robin bin packer,
// a segment splitter for oversized atoms, and coverage-contour computation
// for record-balanced contig splitting.
package chunk

import (
	"sort"
)

// Balance distributes the weighted atoms into n bins and returns, per bin,
// the indices of the atoms assigned to it. Atoms are considered in
// descending weight order and each goes to the currently lightest bin, so no
// bin ends up more than one atom's weight worse than an even share. A
// zero-weight atom counts as weight 1 so it still loads its bin.
func Balance(weights []int64, n int) [][]int {
	if n < 1 {
		n = 1
	}
	if n > len(weights) {
		n = len(weights)
	}
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return weights[order[i]] > weights[order[j]]
	})
	bins := make([][]int, n)
	loads := make([]int64, n)
	for _, ai := range order {
		lightest := 0
		for b := 1; b < n; b++ {
			if loads[b] < loads[lightest] {
				lightest = b
			}
		}
		bins[lightest] = append(bins[lightest], ai)
		w := weights[ai]
		if w == 0 {
			w = 1
		}
		loads[lightest] += w
	}
	return bins
}

// Segmented is an atom that may be subdivided into equal-length segments:
// one named unit (a contig) of the given size, currently split into
// Segments pieces.
type Segmented struct {
	Name     string
	Size     int64
	Segments int
}

// GrowSegments raises the total segment count across atoms to target by
// repeatedly adding a segment to whichever atom currently has the worst
// size-per-segment ratio. Atoms are mutated in place.
func GrowSegments(atoms []Segmented, target int) {
	total := 0
	for _, a := range atoms {
		total += a.Segments
	}
	for ; total < target; total++ {
		worst := 0
		for i := 1; i < len(atoms); i++ {
			if ratio(atoms[i]) > ratio(atoms[worst]) {
				worst = i
			}
		}
		atoms[worst].Segments++
	}
}

func ratio(a Segmented) float64 {
	return float64(a.Size) / float64(a.Segments)
}

// Window is a half-open reference window [Start, End) on the named
// reference, optionally annotated with the number of records it covers.
type Window struct {
	Name       string
	Start, End int64
	Records    int64
}

// Span returns the window length.
func (w Window) Span() int64 { return w.End - w.Start }

// SegmentWindows expands segmented atoms back into windows: each atom's
// span [0, size) is cut into Segments equal pieces, with the final piece
// absorbing the remainder.
func SegmentWindows(atoms []Segmented, sizes map[string]int64) []Window {
	var out []Window
	for _, a := range atoms {
		total := sizes[a.Name]
		seg := total / int64(a.Segments)
		for i := 0; i < a.Segments; i++ {
			w := Window{Name: a.Name, Start: seg * int64(i), End: seg * int64(i+1)}
			if i == a.Segments-1 {
				w.End = total
			}
			out = append(out, w)
		}
	}
	return out
}

// BreakWindows cuts every window longer than target into target-length
// pieces, leaving the remainder on the last piece. Used when breaking
// oversized contigs without record balancing.
func BreakWindows(windows []Window, target int64) []Window {
	if target <= 0 {
		return windows
	}
	var out []Window
	for _, w := range windows {
		for w.Span() > target {
			out = append(out, Window{Name: w.Name, Start: w.Start, End: w.Start + target})
			w = Window{Name: w.Name, Start: w.Start + target, End: w.End}
		}
		out = append(out, w)
	}
	return out
}
