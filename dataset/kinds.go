package dataset

import (
	"context"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/reader"
	"github.com/pacbioseq/dataset/resource"
)

// Kind identifies a concrete dataset type. Behavior differences between
// kinds are data-driven through the kindSpec table rather than subtyping.
type Kind int

const (
	// Generic is the untyped base kind. It accepts any recognized resource
	// file and casts to every other kind.
	Generic Kind = iota
	// Subread holds unaligned subread BAM resources.
	Subread
	// Alignment holds aligned BAM resources.
	Alignment
	// ConsensusRead holds CCS read BAM resources.
	ConsensusRead
	// ConsensusAlignment holds aligned CCS BAM resources.
	ConsensusAlignment
	// Contig holds contig FASTA resources.
	Contig
	// Reference holds reference FASTA resources.
	Reference
	// Barcode holds barcode FASTA resources.
	Barcode

	numKinds
)

// kindSpec is the capability descriptor of one dataset kind.
type kindSpec struct {
	name     string
	rootTag  string
	metaType string

	// fileTypes maps a resource file extension (per resource.FileExt) to the
	// metatype stamped on resources of that extension. Extensions absent
	// from the map are rejected at construction time.
	fileTypes map[string]string

	// castable lists the kinds a strict dataset of this kind may be copied
	// as. Generic and the kind itself are always included.
	castable []Kind

	// mapped kinds are alignment capable: they carry reference-info tables
	// and support contig/reference-window splitting.
	mapped bool

	// contigish kinds index by contig id rather than by read coordinates.
	contigish bool
}

var kindSpecs = [numKinds]kindSpec{
	Generic: {
		name:     "DataSet",
		rootTag:  "DataSet",
		metaType: "PacBio.DataSet.DataSet",
		fileTypes: map[string]string{
			"bam":   "PacBio.DataSet.BamFile",
			"fasta": "PacBio.ContigFile.ContigFastaFile",
			"fa":    "PacBio.ContigFile.ContigFastaFile",
		},
		castable: []Kind{Subread, Alignment, ConsensusRead, ConsensusAlignment, Contig, Reference, Barcode},
	},
	Subread: {
		name:     "SubreadSet",
		rootTag:  "SubreadSet",
		metaType: "PacBio.DataSet.SubreadSet",
		fileTypes: map[string]string{
			"bam": "PacBio.SubreadFile.SubreadBamFile",
		},
		castable: []Kind{Alignment},
	},
	Alignment: {
		name:     "AlignmentSet",
		rootTag:  "AlignmentSet",
		metaType: "PacBio.DataSet.AlignmentSet",
		fileTypes: map[string]string{
			"bam": "PacBio.AlignmentFile.AlignmentBamFile",
		},
		castable: []Kind{Subread, ConsensusAlignment},
		mapped:   true,
	},
	ConsensusRead: {
		name:     "ConsensusReadSet",
		rootTag:  "ConsensusReadSet",
		metaType: "PacBio.DataSet.ConsensusReadSet",
		fileTypes: map[string]string{
			"bam": "PacBio.ConsensusReadFile.ConsensusReadBamFile",
		},
		castable: []Kind{ConsensusAlignment},
	},
	ConsensusAlignment: {
		name:     "ConsensusAlignmentSet",
		rootTag:  "ConsensusAlignmentSet",
		metaType: "PacBio.DataSet.ConsensusAlignmentSet",
		fileTypes: map[string]string{
			"bam": "PacBio.AlignmentFile.ConsensusAlignmentBamFile",
		},
		castable: []Kind{Alignment, ConsensusRead},
		mapped:   true,
	},
	Contig: {
		name:     "ContigSet",
		rootTag:  "ContigSet",
		metaType: "PacBio.DataSet.ContigSet",
		fileTypes: map[string]string{
			"fasta": "PacBio.ContigFile.ContigFastaFile",
			"fa":    "PacBio.ContigFile.ContigFastaFile",
		},
		castable:  []Kind{Reference},
		contigish: true,
	},
	Reference: {
		name:     "ReferenceSet",
		rootTag:  "ReferenceSet",
		metaType: "PacBio.DataSet.ReferenceSet",
		fileTypes: map[string]string{
			"fasta": "PacBio.ReferenceFile.ReferenceFastaFile",
			"fa":    "PacBio.ReferenceFile.ReferenceFastaFile",
		},
		castable:  []Kind{Contig},
		contigish: true,
	},
	Barcode: {
		name:     "BarcodeSet",
		rootTag:  "BarcodeSet",
		metaType: "PacBio.DataSet.BarcodeSet",
		fileTypes: map[string]string{
			"fasta": "PacBio.BarcodeFile.BarcodeFastaFile",
			"fa":    "PacBio.BarcodeFile.BarcodeFastaFile",
		},
		castable:  []Kind{Contig},
		contigish: true,
	},
}

func (k Kind) spec() *kindSpec { return &kindSpecs[k] }

func (k Kind) String() string { return k.spec().name }

// RootTag returns the XML root element name for this kind.
func (k Kind) RootTag() string { return k.spec().rootTag }

// MetaType returns the dataset metatype for this kind.
func (k Kind) MetaType() string { return k.spec().metaType }

// Mapped reports whether this kind is alignment capable.
func (k Kind) Mapped() bool { return k.spec().mapped }

// CastableTo reports whether a strict dataset of kind k may be copied as
// kind to. Generic datasets cast to anything and anything casts to Generic.
func (k Kind) CastableTo(to Kind) bool {
	if to == k || to == Generic {
		return true
	}
	for _, c := range k.spec().castable {
		if c == to {
			return true
		}
	}
	return false
}

// KindForRootTag resolves an XML root element name to a kind.
func KindForRootTag(tag string) (Kind, error) {
	for k := Generic; k < numKinds; k++ {
		if k.spec().rootTag == tag {
			return k, nil
		}
	}
	return Generic, errors.E(errors.NotSupported, "dataset: unrecognized root tag", tag)
}

// KindForMetaType resolves a dataset metatype string to a kind.
func KindForMetaType(metaType string) (Kind, error) {
	for k := Generic; k < numKinds; k++ {
		if k.spec().metaType == metaType {
			return k, nil
		}
	}
	return Generic, errors.E(errors.NotSupported, "dataset: unrecognized metatype", metaType)
}

// indexMetaTypes maps companion-index file extensions to index metatypes.
// Shared by all kinds.
var indexMetaTypes = map[string]string{
	"bai":          "PacBio.Index.BamIndex",
	"pbi":          "PacBio.Index.PacBioIndex",
	"bam.bai":      "PacBio.Index.BamIndex",
	"bam.pbi":      "PacBio.Index.PacBioIndex",
	"fai":          "PacBio.Index.SamIndex",
	"fasta.fai":    "PacBio.Index.SamIndex",
	"fa.fai":       "PacBio.Index.SamIndex",
	"contig.index": "PacBio.Index.Indexer",
	"index":        "PacBio.Index.Indexer",
}

// Opener opens a reader on one external resource. Adapters (bamio, fastaio)
// register themselves per file extension at init time.
type Opener func(ctx context.Context, res *resource.ExternalResource, strict bool) (reader.Reader, error)

var (
	openerMu sync.Mutex
	openers  = map[string]Opener{}
)

// RegisterOpener installs fn as the opener for resources with the given
// file extension (per resource.FileExt). Later registrations win.
func RegisterOpener(ext string, fn Opener) {
	openerMu.Lock()
	openers[ext] = fn
	openerMu.Unlock()
}

func openerFor(path string) (Opener, error) {
	ext := resource.FileExt(path)
	openerMu.Lock()
	fn, ok := openers[ext]
	openerMu.Unlock()
	if !ok {
		return nil, errors.E(errors.NotSupported, "dataset: no reader registered for", path)
	}
	return fn, nil
}
