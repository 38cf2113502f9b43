// Package dsxml is the serialization collaborator for datasets: an XML
// document model for the dataset record format, a parser, and the canonical
// "core" serialization hashed into UniqueId values. The document model is
// deliberately flat and schema-light; validation against the official
// schema is out of scope.
package dsxml

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
)

// Namespace is the xmlns emitted on dataset root elements.
const Namespace = "http://pacificbiosciences.com/PacBioDatasets.xsd"

// Document is one dataset record. SubSets nest one level per the flattening
// invariant of the in-memory model, but the document model itself places no
// depth limit.
type Document struct {
	XMLName         xml.Name
	UniqueID        string `xml:"UniqueId,attr,omitempty"`
	MetaType        string `xml:"MetaType,attr,omitempty"`
	Name            string `xml:"Name,attr,omitempty"`
	Tags            string `xml:"Tags,attr,omitempty"`
	TimeStampedName string `xml:"TimeStampedName,attr,omitempty"`
	Version         string `xml:"Version,attr,omitempty"`
	CreatedAt       string `xml:"CreatedAt,attr,omitempty"`

	Resources ResourceList `xml:"ExternalResources"`
	Filters   *FilterList  `xml:"Filters"`
	SubSets   *SubSetList  `xml:"DataSets"`
	Metadata  *Metadata    `xml:"DataSetMetadata"`
}

// RootTag returns the root element name, e.g. "AlignmentSet".
func (d *Document) RootTag() string { return d.XMLName.Local }

// SetRootTag names the root element and stamps the namespace.
func (d *Document) SetRootTag(tag string) {
	d.XMLName = xml.Name{Space: Namespace, Local: tag}
}

// ResourceList is the ExternalResources element.
type ResourceList struct {
	Items []*Resource `xml:"ExternalResource"`
}

// Resource is one ExternalResource element. Indices live under a FileIndices
// wrapper, nested resources under an ExternalResources wrapper.
type Resource struct {
	ResourceID      string `xml:"ResourceId,attr"`
	MetaType        string `xml:"MetaType,attr,omitempty"`
	TimeStampedName string `xml:"TimeStampedName,attr,omitempty"`
	Reference       string `xml:"Reference,attr,omitempty"`

	Indices   *ResourceIndices `xml:"FileIndices"`
	Resources *ResourceList    `xml:"ExternalResources"`
}

// ResourceIndices is the FileIndices element.
type ResourceIndices struct {
	Items []*Resource `xml:"FileIndex"`
}

// FilterList is the Filters element: one Filter per OR group.
type FilterList struct {
	Items []*Filter `xml:"Filter"`
}

// Filter is one AND group of property tests.
type Filter struct {
	Properties []*Property `xml:"Properties>Property"`
}

// Property is one (name, operator, value) parameter test.
type Property struct {
	Name     string `xml:"Name,attr"`
	Operator string `xml:"Operator,attr"`
	Value    string `xml:"Value,attr"`
}

// SubSetList is the DataSets element holding subdataset records. Each child
// element is named by its own kind's root tag, so items match any element
// and keep the parsed name in XMLName.
type SubSetList struct {
	Items []*Document `xml:",any"`
}

// Metadata is the DataSetMetadata element. Counts use -1 as the "unknown"
// sentinel.
type Metadata struct {
	NumRecords  int64  `xml:"NumRecords"`
	TotalLength int64  `xml:"TotalLength"`
	Organism    string `xml:"Organism,omitempty"`
	Ploidy      string `xml:"Ploidy,omitempty"`

	Contigs *ContigList `xml:"Contigs"`
}

// ContigList is the Contigs element of contig dataset metadata.
type ContigList struct {
	Items []*Contig `xml:"Contig"`
}

// Contig is one per-contig descriptive record.
type Contig struct {
	Name        string `xml:"Name,attr"`
	Description string `xml:"Description,attr,omitempty"`
	Length      int64  `xml:"Length,attr"`
	Digest      string `xml:"Digest,attr,omitempty"`
}

// Marshal serializes the document, indented.
func Marshal(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "\t")
	if err := enc.Encode(d); err != nil {
		return nil, errors.E(err, "dsxml: marshal")
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Unmarshal parses a dataset record.
func Unmarshal(data []byte) (*Document, error) {
	d := &Document{}
	if err := xml.Unmarshal(data, d); err != nil {
		return nil, errors.E(err, "dsxml: unmarshal")
	}
	if d.RootTag() == "" {
		return nil, errors.E("dsxml: missing root element")
	}
	return d, nil
}

// RootTagOf decodes only far enough to find the root element name, so
// callers can dispatch on dataset kind without a full parse.
func RootTagOf(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", errors.E("dsxml: no root element")
		}
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// IsDataSet reports whether data looks like a dataset record: an XML
// document whose root tag ends in "Set".
func IsDataSet(data []byte) bool {
	tag, err := RootTagOf(data)
	return err == nil && strings.HasSuffix(tag, "Set")
}
