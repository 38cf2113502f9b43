package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacbioseq/dataset/filters"
	"github.com/pacbioseq/dataset/reader"
)

func TestMergeUnionsResources(t *testing.T) {
	pathA, pathB := alignedFakes("mergeunion")
	a := New(Alignment, Options{})
	require.NoError(t, a.AddResources(pathA))
	b := New(Alignment, Options{})
	require.NoError(t, b.AddResources(pathA, pathB))

	merged, err := a.Merge(b)
	require.NoError(t, err)
	require.NotNil(t, merged)
	// The shared resource is deduplicated by id.
	assert.Equal(t, []string{pathA, pathB}, merged.ToFofn(false))
	// Both inputs are recorded as subdatasets.
	assert.Len(t, merged.SubDatasets(), 2)
	// The inputs are untouched.
	assert.Equal(t, 1, a.NumExternalResources())
	assert.Empty(t, a.SubDatasets())
}

func TestMergeSumsCountsAndSplitRecovers(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("mergecounts")
	a := New(Alignment, Options{})
	require.NoError(t, a.AddResources(pathA))
	require.NoError(t, a.UpdateCounts(ctx))
	require.Equal(t, int64(3), a.NumRecords())
	b := New(Alignment, Options{})
	require.NoError(t, b.AddResources(pathB))
	require.NoError(t, b.UpdateCounts(ctx))
	require.Equal(t, int64(2), b.NumRecords())

	merged, err := a.Merge(b)
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, int64(5), merged.NumRecords())
	assert.Equal(t, int64(450), merged.TotalLength())

	// Splitting by subdatasets recovers the original pieces.
	chunks, err := merged.Split(ctx, SplitOptions{BySubDatasets: true})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[0].Equal(a))
	assert.True(t, chunks[1].Equal(b))
	assert.Equal(t, int64(3), chunks[0].NumRecords())
	assert.Equal(t, int64(2), chunks[1].NumRecords())
}

func TestMergeSelfDedups(t *testing.T) {
	pathA, _ := alignedFakes("mergeself")
	a := New(Alignment, Options{})
	require.NoError(t, a.AddResources(pathA))

	merged, err := a.Merge(a.Copy())
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, a.NumExternalResources(), merged.NumExternalResources())
}

func TestMergeIntoEmpty(t *testing.T) {
	pathA, _ := alignedFakes("mergeempty")
	empty := New(Alignment, Options{})
	other := New(Alignment, Options{})
	require.NoError(t, other.AddResources(pathA))
	other.AddFilterGroup(filters.Filter{{Name: "rq", Op: filters.OpGt, Value: "0.8"}})

	merged, err := empty.Merge(other)
	require.NoError(t, err)
	require.NotNil(t, merged)
	// First merge into an empty set adopts the other wholesale, without
	// a subdataset layer.
	assert.Equal(t, 1, merged.NumExternalResources())
	assert.Equal(t, 1, merged.Filters().Len())
	assert.Empty(t, merged.SubDatasets())
}

func TestMergeFlattensSubDatasets(t *testing.T) {
	pathA, pathB := alignedFakes("mergeflat")
	pathC := "/fake/mergeflat/c.bam"
	registerFake(pathC, nil, reader.FakeOpts{})

	a := New(Alignment, Options{SkipCounts: true})
	require.NoError(t, a.AddResources(pathA))
	b := New(Alignment, Options{SkipCounts: true})
	require.NoError(t, b.AddResources(pathB))
	c := New(Alignment, Options{SkipCounts: true})
	require.NoError(t, c.AddResources(pathC))

	ab, err := a.Merge(b)
	require.NoError(t, err)
	abc, err := ab.Merge(c)
	require.NoError(t, err)
	// One level deep: ab's children are adopted directly, not nested.
	require.Len(t, abc.SubDatasets(), 3)
	for _, sub := range abc.SubDatasets() {
		assert.Empty(t, sub.SubDatasets())
	}
}

func TestMergeKindMismatch(t *testing.T) {
	a := New(Subread, Options{})
	b := New(Alignment, Options{})
	_, err := a.Merge(b)
	assert.Error(t, err)

	// Generic merges with anything and takes the concrete kind.
	g := New(Generic, Options{})
	merged, err := g.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, Alignment, merged.Kind())
}

func TestMergeVersionRegression(t *testing.T) {
	a := New(Subread, Options{})
	a.version = "5.0.0"
	b := New(Subread, Options{})
	_, err := a.Merge(b)
	assert.Error(t, err)

	// The other direction upgrades.
	merged, err := b.Merge(a)
	require.NoError(t, err)
	assert.Equal(t, "5.0.0", merged.Version())
}

func TestMergeIncompatibleFilters(t *testing.T) {
	pathA, pathB := alignedFakes("mergefilters")
	a := New(Alignment, Options{})
	require.NoError(t, a.AddResources(pathA))
	a.AddFilterGroup(filters.Filter{{Name: "rq", Op: filters.OpGt, Value: "0.8"}})
	b := New(Alignment, Options{})
	require.NoError(t, b.AddResources(pathB))

	merged, err := a.Merge(b)
	assert.NoError(t, err)
	assert.Nil(t, merged)

	// Matching filters merge fine.
	b.AddFilterGroup(filters.Filter{{Name: "rq", Op: filters.OpGt, Value: "0.8"}})
	merged, err = a.Merge(b)
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, 1, merged.Filters().Len())
}

func TestMergeNil(t *testing.T) {
	pathA, _ := alignedFakes("mergenil")
	a := New(Alignment, Options{})
	require.NoError(t, a.AddResources(pathA))
	merged, err := a.Merge(nil)
	require.NoError(t, err)
	assert.True(t, merged.Equal(a))
	assert.NotEqual(t, a.UUID(), merged.UUID())
}

func TestMergeAll(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("mergeall")
	a := New(Alignment, Options{})
	require.NoError(t, a.AddResources(pathA))
	b := New(Alignment, Options{})
	require.NoError(t, b.AddResources(pathB))

	merged, err := MergeAll(a, b)
	require.NoError(t, err)
	require.NoError(t, merged.UpdateCounts(ctx))
	assert.Equal(t, int64(5), merged.NumRecords())

	_, err = MergeAll()
	assert.Error(t, err)
}
