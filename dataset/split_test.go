package dataset

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacbioseq/dataset/filters"
	"github.com/pacbioseq/dataset/reader"
)

func chunkLens(ctx context.Context, t *testing.T, chunks []*DataSet) []int {
	t.Helper()
	lens := make([]int, len(chunks))
	for i, c := range chunks {
		n, err := c.Len(ctx)
		require.NoError(t, err)
		lens[i] = n
	}
	return lens
}

func sumInts(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func TestSplitModesExclusive(t *testing.T) {
	d := New(Alignment, Options{})
	_, err := d.Split(context.Background(), SplitOptions{ByZMWs: true, ByContigs: true})
	assert.Error(t, err)
}

func TestSplitByResources(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("splitres")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	chunks, err := d.Split(ctx, SplitOptions{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	var paths []string
	for _, c := range chunks {
		require.Equal(t, 1, c.NumExternalResources())
		paths = append(paths, c.ToFofn(false)...)
		assert.NotEqual(t, d.UUID(), c.UUID())
	}
	sort.Strings(paths)
	assert.Equal(t, []string{pathA, pathB}, paths)
	assert.Equal(t, 5, sumInts(chunkLens(ctx, t, chunks)))

	// A chunk count of one degenerates to a plain copy.
	chunks, err = d.Split(ctx, SplitOptions{Chunks: 1})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Equal(d))
}

func TestSplitMaxChunks(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("splitmax")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))
	chunks, err := d.Split(ctx, SplitOptions{MaxChunks: 1})
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestSplitBySubDatasetsRequiresChildren(t *testing.T) {
	d := New(Alignment, Options{})
	_, err := d.Split(context.Background(), SplitOptions{BySubDatasets: true})
	assert.Error(t, err)
}

func TestSplitByZMWs(t *testing.T) {
	ctx := context.Background()
	path := "/fake/splitzmw/a.bam"
	registerFake(path, []*reader.Record{
		{Name: "m1/1/0_10", Movie: "m1", HoleNumber: 1, QStart: 0, QEnd: 10},
		{Name: "m1/1/10_20", Movie: "m1", HoleNumber: 1, QStart: 10, QEnd: 20},
		{Name: "m1/2/0_10", Movie: "m1", HoleNumber: 2, QStart: 0, QEnd: 10},
		{Name: "m1/3/0_10", Movie: "m1", HoleNumber: 3, QStart: 0, QEnd: 10},
		{Name: "m1/3/10_20", Movie: "m1", HoleNumber: 3, QStart: 10, QEnd: 20},
		{Name: "m1/4/0_10", Movie: "m1", HoleNumber: 4, QStart: 0, QEnd: 10},
	}, reader.FakeOpts{})
	d := New(Subread, Options{})
	require.NoError(t, d.AddResources(path))

	chunks, err := d.Split(ctx, SplitOptions{ByZMWs: true, TargetSize: 2})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	lens := chunkLens(ctx, t, chunks)
	assert.Equal(t, 6, sumInts(lens))

	// No hole number is split across chunks: both records of hole 3 land
	// together.
	total := 0
	for _, c := range chunks {
		it, err := c.Records(ctx)
		require.NoError(t, err)
		names, err := collectNames(it)
		require.NoError(t, err)
		seen := 0
		for _, n := range names {
			if n == "m1/3/0_10" || n == "m1/3/10_20" {
				seen++
			}
		}
		assert.Contains(t, []int{0, 2}, seen)
		total += seen
	}
	assert.Equal(t, 2, total)

	// Filter groups expose recoverable hole ranges.
	for _, c := range chunks {
		ranges := c.ZMWRanges()
		require.NotEmpty(t, ranges)
		for _, r := range ranges {
			assert.Equal(t, "m1", r.Movie)
			assert.True(t, r.First <= r.Last)
		}
	}

	// An explicit chunk count rebalances the windows.
	chunks, err = d.Split(ctx, SplitOptions{ByZMWs: true, TargetSize: 2, Chunks: 2})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 6, sumInts(chunkLens(ctx, t, chunks)))
}

func TestZMWRangesStrictBounds(t *testing.T) {
	d := New(Subread, Options{})
	d.AddFilterGroup(filters.Filter{
		{Name: "movie", Op: filters.OpEq, Value: "m1"},
		{Name: "zm", Op: filters.OpGt, Value: "10"},
		{Name: "zm", Op: filters.OpLt, Value: "20"},
	})
	ranges := d.ZMWRanges()
	require.Len(t, ranges, 1)
	// Strict bounds recover as the inclusive hole range they admit.
	assert.Equal(t, int32(11), ranges[0].First)
	assert.Equal(t, int32(19), ranges[0].Last)
}

func TestSplitByBarcodes(t *testing.T) {
	ctx := context.Background()
	path := "/fake/splitbc/a.bam"
	registerFake(path, []*reader.Record{
		{Name: "m1/1/0_10", Movie: "m1", HoleNumber: 1, QStart: 0, QEnd: 10, BcForward: 0, BcReverse: 0},
		{Name: "m1/2/0_10", Movie: "m1", HoleNumber: 2, QStart: 0, QEnd: 10, BcForward: 0, BcReverse: 0},
		{Name: "m1/3/0_10", Movie: "m1", HoleNumber: 3, QStart: 0, QEnd: 10, BcForward: 1, BcReverse: 1},
		{Name: "m1/4/0_10", Movie: "m1", HoleNumber: 4, QStart: 0, QEnd: 10, BcForward: 2, BcReverse: 2},
	}, reader.FakeOpts{Flags: reader.FlagBarcode})
	d := New(Subread, Options{})
	require.NoError(t, d.AddResources(path))

	chunks, err := d.Split(ctx, SplitOptions{ByBarcodes: true})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	lens := chunkLens(ctx, t, chunks)
	assert.Equal(t, 4, sumInts(lens))

	var pairs []string
	for _, c := range chunks {
		bcs := c.Barcodes()
		require.Len(t, bcs, 1)
		pairs = append(pairs, bcs[0])
	}
	sort.Strings(pairs)
	assert.Equal(t, []string{"[0, 0]", "[1, 1]", "[2, 2]"}, pairs)
}

func TestSplitBarcodesRequiresColumns(t *testing.T) {
	ctx := context.Background()
	pathA, _ := alignedFakes("splitbcmissing")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA))
	_, err := d.Split(ctx, SplitOptions{ByBarcodes: true})
	assert.Error(t, err)
}

func TestSplitByContigs(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("splitcontig")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	chunks, err := d.Split(ctx, SplitOptions{ByContigs: true})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	byRef := map[string]int{}
	for _, c := range chunks {
		names, err := c.RefNames(ctx)
		require.NoError(t, err)
		require.Len(t, names, 1)
		n, err := c.Len(ctx)
		require.NoError(t, err)
		byRef[names[0]] = n
	}
	assert.Equal(t, map[string]int{"chr1": 3, "chr2": 2}, byRef)
}

func TestSplitContigsRejectsUnmapped(t *testing.T) {
	d := New(Subread, Options{})
	_, err := d.Split(context.Background(), SplitOptions{ByContigs: true})
	assert.Error(t, err)
}

func TestSplitContigsSubdivides(t *testing.T) {
	ctx := context.Background()
	path := "/fake/splitsub/a.bam"
	registerFake(path, []*reader.Record{
		{Name: "m1/1/0_100", Movie: "m1", HoleNumber: 1, QStart: 0, QEnd: 100,
			RefName: "chr1", TStart: 0, TEnd: 100},
		{Name: "m1/2/0_100", Movie: "m1", HoleNumber: 2, QStart: 0, QEnd: 100,
			RefName: "chr1", TStart: 300, TEnd: 400},
		{Name: "m1/3/0_100", Movie: "m1", HoleNumber: 3, QStart: 0, QEnd: 100,
			RefName: "chr1", TStart: 600, TEnd: 700},
		{Name: "m1/4/0_100", Movie: "m1", HoleNumber: 4, QStart: 0, QEnd: 100,
			RefName: "chr1", TStart: 800, TEnd: 900},
	}, reader.FakeOpts{
		Refs: []reader.ReferenceInfo{{ID: 0, Name: "chr1", Length: 1000}},
	})
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(path))

	// More chunks than contigs: the single contig is cut into equal-length
	// windows.
	chunks, err := d.Split(ctx, SplitOptions{ByContigs: true, Chunks: 2})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	lens := chunkLens(ctx, t, chunks)
	sort.Ints(lens)
	assert.Equal(t, []int{2, 2}, lens)
}

func TestSplitContigsByRecords(t *testing.T) {
	ctx := context.Background()
	path := "/fake/splitmass/a.bam"
	registerFake(path, []*reader.Record{
		{Name: "m1/1/0_10", Movie: "m1", HoleNumber: 1, QStart: 0, QEnd: 10,
			RefName: "chr1", TStart: 0, TEnd: 10},
		{Name: "m1/2/0_10", Movie: "m1", HoleNumber: 2, QStart: 0, QEnd: 10,
			RefName: "chr1", TStart: 10, TEnd: 20},
		{Name: "m1/3/0_10", Movie: "m1", HoleNumber: 3, QStart: 0, QEnd: 10,
			RefName: "chr1", TStart: 20, TEnd: 30},
		{Name: "m1/4/0_10", Movie: "m1", HoleNumber: 4, QStart: 0, QEnd: 10,
			RefName: "chr1", TStart: 900, TEnd: 910},
	}, reader.FakeOpts{
		Refs: []reader.ReferenceInfo{{ID: 0, Name: "chr1", Length: 1000}},
	})
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(path))

	// Coverage-contour cutting puts the break where the read mass is, not
	// at the reference midpoint.
	chunks, err := d.Split(ctx, SplitOptions{ByContigs: true, ByRecords: true, Chunks: 2})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	lens := chunkLens(ctx, t, chunks)
	sort.Ints(lens)
	assert.Equal(t, []int{2, 2}, lens)
}
