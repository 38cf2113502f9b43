package dataset

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacbioseq/dataset/dsxml"
	"github.com/pacbioseq/dataset/filters"
	"github.com/pacbioseq/dataset/reader"
)

var uuidRE = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestNewDataSet(t *testing.T) {
	d := New(Subread, Options{})
	assert.Equal(t, Subread, d.Kind())
	assert.Regexp(t, uuidRE, d.UUID())
	assert.Equal(t, FormatVersion, d.Version())
	assert.Equal(t, 0, d.NumExternalResources())
}

func TestAddResources(t *testing.T) {
	d := New(Subread, Options{})
	before := d.UUID()
	require.NoError(t, d.AddResources("/fake/add/one.bam", "/fake/add/two.bam"))
	assert.Equal(t, 2, d.NumExternalResources())
	assert.Equal(t, "PacBio.SubreadFile.SubreadBamFile", d.Resources().At(0).MetaType)
	assert.NotEqual(t, before, d.UUID())

	// Duplicate ids are skipped, unrecognized extensions rejected.
	require.NoError(t, d.AddResources("/fake/add/one.bam"))
	assert.Equal(t, 2, d.NumExternalResources())
	assert.Error(t, d.AddResources("/fake/add/ref.fasta"))
}

func TestAddIndices(t *testing.T) {
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources("/fake/addix/a.bam"))
	require.NoError(t, d.AddIndices(0, []string{"/fake/addix/a.bam.pbi", "/fake/addix/a.bam.bai"}))
	res := d.Resources().At(0)
	require.Len(t, res.Indices, 2)
	assert.Equal(t, "PacBio.Index.PacBioIndex", res.Indices[0].MetaType)
	assert.Equal(t, "PacBio.Index.BamIndex", res.Indices[1].MetaType)
	assert.Error(t, d.AddIndices(5, []string{"/nope.pbi"}))
}

func TestCopyEqualButFreshID(t *testing.T) {
	d := New(Subread, Options{})
	require.NoError(t, d.AddResources("/fake/copy/a.bam"))
	c := d.Copy()
	assert.True(t, d.Equal(c))
	assert.NotEqual(t, d.UUID(), c.UUID())

	// Diverging content breaks equality.
	c.AddFilterGroup(filters.Filter{{Name: "rq", Op: filters.OpGt, Value: "0.8"}})
	assert.False(t, d.Equal(c))
}

func TestCopyAsCast(t *testing.T) {
	d := New(Subread, Options{Strict: true})
	a, err := d.CopyAs(Alignment)
	require.NoError(t, err)
	assert.Equal(t, Alignment, a.Kind())

	// Strict datasets only cast within the declared set.
	_, err = d.CopyAs(Barcode)
	assert.Error(t, err)

	// Non-strict casts are unchecked.
	loose := New(Subread, Options{})
	b, err := loose.CopyAs(Barcode)
	require.NoError(t, err)
	assert.Equal(t, Barcode, b.Kind())
}

func TestIndexAndCounts(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("index")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	ix, err := d.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, ix.Len())
	// Provenance rows point back at (resource, row).
	assert.Equal(t, RowRef{Resource: 0, Row: 0}, ix.Rows[0])
	assert.Equal(t, RowRef{Resource: 1, Row: 1}, ix.Rows[4])

	require.NoError(t, d.UpdateCounts(ctx))
	assert.Equal(t, int64(5), d.NumRecords())
	assert.Equal(t, int64(450), d.TotalLength())
}

func TestIndexHonorsFilters(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("ixfilter")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))
	d.AddFilterGroup(filters.Filter{{Name: "rq", Op: filters.OpGt, Value: "0.8"}})

	n, err := d.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Suspending filters exposes every record; re-enabling restores.
	d.DisableFilters()
	n, err = d.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	d.EnableFilters()
	n, err = d.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAt(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("at")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	rec, err := d.At(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "m1/1/0_100", rec.Name)

	// Negative indices wrap from the end.
	rec, err = d.At(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, "m2/11/0_100", rec.Name)

	_, err = d.At(ctx, 5)
	assert.Error(t, err)
}

func TestStrictUnindexedResource(t *testing.T) {
	ctx := context.Background()
	path := "/fake/strictix/a.bam"
	registerUnindexedFake(path, []*reader.Record{
		{Name: "m1/1/0_10", Movie: "m1", HoleNumber: 1, QStart: 0, QEnd: 10},
	}, reader.FakeOpts{})

	strict := New(Subread, Options{Strict: true})
	require.NoError(t, strict.AddResources(path))
	_, err := strict.Index(ctx)
	assert.Error(t, err)

	// Non-strict degrades to a full scan.
	loose := New(Subread, Options{})
	require.NoError(t, loose.AddResources(path))
	n, err := loose.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordsIteration(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("records")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))
	d.AddFilterGroup(filters.Filter{{Name: "rq", Op: filters.OpGt, Value: "0.8"}})

	it, err := d.Records(ctx)
	require.NoError(t, err)
	names, err := collectNames(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1/1/0_100", "m1/3/0_50", "m2/10/0_100"}, names)
}

func TestPolledProperties(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("poll")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	mapped, err := d.IsMapped(ctx)
	require.NoError(t, err)
	assert.True(t, mapped)
	empty, err := d.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestReferences(t *testing.T) {
	ctx := context.Background()
	pathA, pathB := alignedFakes("refs")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))

	// Unified in first-appearance order even though the files disagree on
	// local numeric ids.
	names, err := d.RefNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr2"}, names)
	length, err := d.RefLength(ctx, "chr2")
	require.NoError(t, err)
	assert.Equal(t, int64(500), length)

	// rname filters restrict the table.
	d.AddFilterGroup(filters.Filter{{Name: "rname", Op: filters.OpEq, Value: "chr2"}})
	names, err = d.RefNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chr2"}, names)
}

func TestContigByID(t *testing.T) {
	ctx := context.Background()
	path := "/fake/contigbyid/x.fasta"
	registerFake(path, []*reader.Record{
		{Name: "ctg1", Seq: []byte("ACGTACGT")},
		{Name: "ctg2", Seq: []byte("GGGG")},
	}, reader.FakeOpts{Contig: true})
	d := New(Contig, Options{})
	require.NoError(t, d.AddResources(path))

	rec, err := d.ByID(ctx, "ctg2")
	require.NoError(t, err)
	assert.Equal(t, "GGGG", string(rec.Seq))
	_, err = d.ByID(ctx, "nope")
	assert.Error(t, err)

	require.NoError(t, d.UpdateCounts(ctx))
	assert.Equal(t, int64(2), d.NumRecords())
	assert.Equal(t, int64(12), d.TotalLength())
}

func TestToFofn(t *testing.T) {
	d := New(Subread, Options{})
	require.NoError(t, d.AddResources("file:///fake/fofn/a.bam", "/fake/fofn/b.bam"))
	assert.Equal(t, []string{"/fake/fofn/a.bam", "/fake/fofn/b.bam"}, d.ToFofn(false))
	assert.Equal(t, []string{"file:///fake/fofn/a.bam", "/fake/fofn/b.bam"}, d.ToFofn(true))
}

func TestWriteOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "dataset")
	defer cleanup()

	pathA, pathB := alignedFakes("roundtrip")
	d := New(Alignment, Options{})
	d.SetName("roundtrip-set")
	d.SetTags("test")
	require.NoError(t, d.AddResources(pathA, pathB))
	d.AddFilterGroup(filters.Filter{{Name: "rq", Op: filters.OpGt, Value: "0.8"}})
	require.NoError(t, d.UpdateCounts(ctx))

	out := filepath.Join(dir, "set.xml")
	require.NoError(t, d.Write(ctx, out))

	got, err := Open(ctx, out, Options{})
	require.NoError(t, err)
	assert.Equal(t, Alignment, got.Kind())
	assert.Equal(t, "roundtrip-set", got.Name())
	assert.Equal(t, d.UUID(), got.UUID())
	assert.Equal(t, int64(3), got.NumRecords())
	assert.True(t, d.Equal(got))
}

func TestEmptyResourceKeepsIndex(t *testing.T) {
	ctx := context.Background()
	pathA, _ := alignedFakes("emptyres")
	pathE := "/fake/emptyres/empty.bam"
	registerFake(pathE, nil, reader.FakeOpts{
		Refs: []reader.ReferenceInfo{{ID: 0, Name: "chr1", Length: 1000}},
	})

	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathE))
	ix, err := d.Index(ctx)
	require.NoError(t, err)
	// The empty resource contributes no rows and drops no columns.
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, ix.Len(), ix.Table.Len())
	assert.NotNil(t, ix.Table.RefID)

	require.NoError(t, d.UpdateCounts(ctx))
	assert.Equal(t, int64(3), d.NumRecords())
	assert.Equal(t, int64(250), d.TotalLength())
}

func TestWriteOpenKeepsSubDatasets(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "dataset")
	defer cleanup()

	pathA, pathB := alignedFakes("subroundtrip")
	a := New(Alignment, Options{})
	a.SetName("part-a")
	require.NoError(t, a.AddResources(pathA))
	b := New(Alignment, Options{})
	b.SetName("part-b")
	require.NoError(t, b.AddResources(pathB))
	merged, err := a.Merge(b)
	require.NoError(t, err)
	require.Len(t, merged.SubDatasets(), 2)

	out := filepath.Join(dir, "merged.xml")
	require.NoError(t, merged.Write(ctx, out))
	got, err := Open(ctx, out, Options{SkipCounts: true})
	require.NoError(t, err)

	require.Len(t, got.SubDatasets(), 2)
	assert.Equal(t, "part-a", got.SubDatasets()[0].Name())
	assert.Equal(t, "part-b", got.SubDatasets()[1].Name())
	assert.True(t, merged.Equal(got))
	assert.Equal(t, merged.UUID(), got.UUID())

	// Subdataset splitting still works on the reopened record.
	chunks, err := got.Split(ctx, SplitOptions{BySubDatasets: true, SkipCounts: true})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{pathA}, chunks[0].ToFofn(false))
	assert.Equal(t, []string{pathB}, chunks[1].ToFofn(false))
}

func TestOpenKindMismatch(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "dataset")
	defer cleanup()

	pathA, _ := alignedFakes("kindmismatch")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA))
	out := filepath.Join(dir, "set.xml")
	require.NoError(t, d.Write(ctx, out))

	_, err := OpenKind(ctx, Barcode, Options{}, out)
	assert.Error(t, err)
}

func TestOpenDataFileDivinesKind(t *testing.T) {
	ctx := context.Background()
	pathA, _ := alignedFakes("divine")
	d, err := OpenDataFile(ctx, Options{}, pathA)
	require.NoError(t, err)
	// BAM resources holding aligned records promote to an AlignmentSet.
	assert.Equal(t, Alignment, d.Kind())

	unaligned := "/fake/divine/u.bam"
	registerFake(unaligned, []*reader.Record{
		{Name: "m3/1/0_10", Movie: "m3", HoleNumber: 1, QStart: 0, QEnd: 10},
	}, reader.FakeOpts{})
	d, err = OpenDataFile(ctx, Options{}, unaligned)
	require.NoError(t, err)
	assert.Equal(t, Subread, d.Kind())
}

func TestOpenFofn(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "dataset")
	defer cleanup()

	pathA, pathB := alignedFakes("openfofn")
	d := New(Alignment, Options{})
	require.NoError(t, d.AddResources(pathA, pathB))
	fofn := filepath.Join(dir, "inputs.fofn")
	require.NoError(t, d.WriteFofn(ctx, fofn))

	got, err := OpenKind(ctx, Alignment, Options{}, fofn)
	require.NoError(t, err)
	assert.Equal(t, []string{pathA, pathB}, got.ToFofn(false))
	assert.Equal(t, int64(5), got.NumRecords())
}

func TestKindTable(t *testing.T) {
	k, err := KindForRootTag("SubreadSet")
	require.NoError(t, err)
	assert.Equal(t, Subread, k)
	_, err = KindForRootTag("BogusSet")
	assert.Error(t, err)

	k, err = KindForMetaType("PacBio.DataSet.ReferenceSet")
	require.NoError(t, err)
	assert.Equal(t, Reference, k)

	assert.True(t, Subread.CastableTo(Alignment))
	assert.True(t, Subread.CastableTo(Generic))
	assert.False(t, Subread.CastableTo(Barcode))
	assert.True(t, Alignment.Mapped())
	assert.False(t, Subread.Mapped())
}

func TestContentCoreIgnoresTimestamps(t *testing.T) {
	d := New(Subread, Options{})
	require.NoError(t, d.AddResources("/fake/core/a.bam"))
	doc := d.toDocument()
	other := d.toDocument()
	other.UniqueID = "ffffffff-ffff-ffff-ffff-ffffffffffff"
	other.CreatedAt = "2000-01-01T00:00:00Z"
	assert.Equal(t, dsxml.ContentDigest(doc), dsxml.ContentDigest(other))
}
