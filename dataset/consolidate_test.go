package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacbioseq/dataset/reader"
)

func TestWindowNaming(t *testing.T) {
	base, start, end, ok := parseWindow("ctg1_100_200")
	require.True(t, ok)
	assert.Equal(t, "ctg1", base)
	assert.Equal(t, int64(100), start)
	assert.Equal(t, int64(200), end)

	// Underscores in the base survive.
	base, start, end, ok = parseWindow("scaffold_7_0_50")
	require.True(t, ok)
	assert.Equal(t, "scaffold_7", base)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(50), end)

	_, _, _, ok = parseWindow("plain")
	assert.False(t, ok)

	assert.Equal(t, "ctg1|arrow", removeWindow("ctg1_0_100|arrow"))
	assert.Equal(t, "ctg1", removeWindow("ctg1_0_100"))
	assert.Equal(t, "plain", removeWindow("plain"))
}

func TestConsolidateContigs(t *testing.T) {
	ctx := context.Background()
	in := "/fake/conscontig/in.fasta"
	registerFake(in, []*reader.Record{
		{Name: "ctg1_4_8|arrow", Seq: []byte("CCCC")},
		{Name: "ctg1_0_4|arrow", Seq: []byte("AAAA")},
		{Name: "ctg2", Seq: []byte("GGGG")},
	}, reader.FakeOpts{Contig: true})
	d := New(Contig, Options{})
	require.NoError(t, d.AddResources(in))

	out := "/fake/conscontig/out.fasta"
	require.NoError(t, d.ConsolidateContigs(ctx, out))

	// The dataset now points at the single consolidated resource.
	assert.Equal(t, []string{out}, d.ToFofn(false))
	assert.Equal(t, int64(2), d.NumRecords())
	assert.Equal(t, int64(12), d.TotalLength())
	require.Len(t, d.Metadata().Contigs, 2)
	assert.Equal(t, ContigInfo{Name: "ctg1|arrow", Length: 8}, d.Metadata().Contigs[0])
	assert.Equal(t, ContigInfo{Name: "ctg2", Length: 4}, d.Metadata().Contigs[1])

	// Windows are stitched in coordinate order.
	rec, err := d.ByID(ctx, "ctg1|arrow")
	require.NoError(t, err)
	assert.Equal(t, "AAAACCCC", string(rec.Seq))
}

func TestConsolidateContigsGap(t *testing.T) {
	ctx := context.Background()
	in := "/fake/consgap/in.fasta"
	registerFake(in, []*reader.Record{
		{Name: "ctg1_0_4", Seq: []byte("AAAA")},
		{Name: "ctg1_8_12", Seq: []byte("CCCC")},
	}, reader.FakeOpts{Contig: true})

	// Strict mode refuses the gap.
	strict := New(Contig, Options{Strict: true})
	require.NoError(t, strict.AddResources(in))
	assert.Error(t, strict.ConsolidateContigs(ctx, "/fake/consgap/strict.fasta"))

	// Non-strict zero-fills it.
	loose := New(Contig, Options{})
	require.NoError(t, loose.AddResources(in))
	out := "/fake/consgap/out.fasta"
	require.NoError(t, loose.ConsolidateContigs(ctx, out))
	rec, err := loose.ByID(ctx, "ctg1")
	require.NoError(t, err)
	require.Len(t, rec.Seq, 12)
	assert.Equal(t, byte(0), rec.Seq[5])
	assert.Equal(t, byte('C'), rec.Seq[8])
}

func TestConsolidateContigsOverlap(t *testing.T) {
	ctx := context.Background()
	in := "/fake/consoverlap/in.fasta"
	registerFake(in, []*reader.Record{
		{Name: "ctg1_0_6", Seq: []byte("AAAAAA")},
		{Name: "ctg1_4_10", Seq: []byte("CCCCCC")},
	}, reader.FakeOpts{Contig: true})
	d := New(Contig, Options{})
	require.NoError(t, d.AddResources(in))

	out := "/fake/consoverlap/out.fasta"
	require.NoError(t, d.ConsolidateContigs(ctx, out))
	// The earlier call wins on the overlapped span.
	rec, err := d.ByID(ctx, "ctg1")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAACCCC", string(rec.Seq))
}

func TestConsolidateResources(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("consres")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	out := "/fake/consres/out.bam"
	require.NoError(t, d.Consolidate(ctx, out, 1))
	assert.Equal(t, []string{out}, d.ToFofn(false))
	assert.Equal(t, int64(5), d.NumRecords())
}

func TestConsolidateIntoTwoFiles(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("constwo")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	out := "/fake/constwo/out.bam"
	require.NoError(t, d.Consolidate(ctx, out, 2))
	paths := d.ToFofn(false)
	require.Len(t, paths, 2)
	assert.Contains(t, paths, "/fake/constwo/out.bam")
	assert.Contains(t, paths, "/fake/constwo/out.1.bam")
	assert.Equal(t, int64(5), d.NumRecords())
}

func TestReadsInSubDatasets(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("subreads")
	a := New(Alignment, Options{})
	a.SetName("part-a")
	require.NoError(t, a.AddResources(pathA))
	b := New(Alignment, Options{})
	b.SetName("part-b")
	require.NoError(t, b.AddResources(pathB))
	merged, err := a.Merge(b)
	require.NoError(t, err)

	it, err := merged.ReadsInSubDatasets(ctx, "part-b")
	require.NoError(t, err)
	names, err := collectNames(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2/10/0_100", "m2/11/0_100"}, names)

	_, err = merged.ReadsInSubDatasets(ctx, "nope")
	assert.Error(t, err)
	_, err = a.ReadsInSubDatasets(ctx)
	assert.Error(t, err)
}
