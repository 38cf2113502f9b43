// Package reader defines the narrow interface through which datasets consume
// external resource files. A Reader wraps one open resource (a BAM file, a
// FASTA file, ...) and exposes record iteration, range queries, random row
// access, and the per-record summary index used for filtered access without
// full file scans. Concrete implementations live in the bamio and fastaio
// packages; Fake provides an in-memory implementation for tests.
package reader

// ReferenceInfo describes one reference sequence known to an
// alignment-capable resource.
type ReferenceInfo struct {
	ID       int32
	Name     string
	FullName string
	Length   int64
}

// ReadGroup describes one read group in a resource. Resources split by
// sequencing unit (ZMW) ranges must have exactly one read group per file.
type ReadGroup struct {
	ID        string
	MovieName string
	ReadType  string
}

// Record is one sequencing record. Fields that do not apply to a given
// resource type are left at their zero values; TStart/TEnd are -1 for
// unmapped records.
type Record struct {
	Name       string
	Movie      string
	HoleNumber int32
	ReadQual   float32

	// Query coordinates (subread excision window).
	QStart, QEnd int32

	// Alignment coordinates on the reference, if mapped.
	RefName      string
	TStart, TEnd int32
	MapQ         uint8

	BcForward, BcReverse int16

	Seq     []byte
	Comment string
}

// Mapped reports whether the record carries an alignment.
func (r *Record) Mapped() bool { return r.RefName != "" }

// Length is the query length of the record, falling back to the aligned
// reference span and then the raw sequence length.
func (r *Record) Length() int64 {
	if r.QEnd > r.QStart {
		return int64(r.QEnd - r.QStart)
	}
	if r.TEnd > r.TStart {
		return int64(r.TEnd - r.TStart)
	}
	return int64(len(r.Seq))
}

// Iterator iterates over records. Thread compatible.
type Iterator interface {
	// Scan advances to the next record, reporting false at the end of the
	// sequence or on error.
	Scan() bool

	// Record returns the current record. Only valid after Scan returns true.
	Record() *Record

	// Err returns the error encountered during iteration, or nil. An io.EOF
	// is translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// Reader is an open handle on one external resource.
type Reader interface {
	// Name returns the resource identifier this reader was opened on.
	Name() string

	// NumRecords returns the number of records in the resource.
	NumRecords() int

	// Indexed reports whether a companion per-record index is available.
	Indexed() bool

	// Index returns the per-record summary table, or nil if !Indexed().
	Index() *IndexTable

	// At returns the record at the given row of the index table.
	At(row int) (*Record, error)

	// Records iterates over every record in resource order. Each call
	// restarts from the beginning of the resource.
	Records() Iterator

	// RecordsInRange iterates, in ascending TStart order for sorted
	// resources, over records overlapping [start, end) on the named
	// reference.
	RecordsInRange(refName string, start, end int32) Iterator

	// References returns the reference-info table, or nil if this resource
	// is not alignment capable.
	References() []ReferenceInfo

	// ReadGroups returns the read groups described by the resource header.
	ReadGroups() []ReadGroup

	// Polled properties. Datasets require these to agree across all of
	// their resources (see ResourceMismatchError in the dataset package).
	Mapped() bool
	Empty() bool
	Sorted() bool
	Chemistry() string
	ReadType() string

	// Close releases the underlying file handles.
	Close() error
}
