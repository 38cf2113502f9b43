package dsxml

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
)

// CoreBytes returns the canonical serialization of the document's identity:
// type, name, tags, resources, filters, counts, and subdataset cores.
// UniqueId and generated timestamps are excluded, so two documents compare
// equal exactly when their content matches. The output is deterministic for
// a given document and is what dataset identity hashes are computed over.
func CoreBytes(d *Document) []byte {
	var buf bytes.Buffer
	writeCore(&buf, d)
	return buf.Bytes()
}

// ContentDigest returns the MD5 of the document's core bytes as lowercase
// hex. Documents with equal digests are content-equal.
func ContentDigest(d *Document) string {
	sum := md5.Sum(CoreBytes(d))
	return hex.EncodeToString(sum[:])
}

// NewUUID derives a fresh UniqueId for the document by hashing the previous
// UniqueId together with the core bytes, formatted in the canonical 8-4-4-4-12
// grouping. Chaining the previous id keeps copies of identical content from
// colliding.
func NewUUID(d *Document) string {
	h := md5.New()
	h.Write([]byte(d.UniqueID))
	h.Write(CoreBytes(d))
	return FormatUUID(h.Sum(nil))
}

// RandomUUID is NewUUID seeded with extra entropy, for brand-new documents
// with no prior id.
func RandomUUID(d *Document, seed []byte) string {
	h := md5.New()
	h.Write(seed)
	h.Write(CoreBytes(d))
	return FormatUUID(h.Sum(nil))
}

// FormatUUID renders a 16-byte digest in 8-4-4-4-12 form.
func FormatUUID(sum []byte) string {
	s := hex.EncodeToString(sum[:16])
	return fmt.Sprintf("%s-%s-%s-%s-%s", s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
}

func writeCore(buf *bytes.Buffer, d *Document) {
	buf.WriteByte('<')
	buf.WriteString(d.RootTag())
	attr(buf, "MetaType", d.MetaType)
	attr(buf, "Name", d.Name)
	attr(buf, "Tags", d.Tags)
	attr(buf, "Version", d.Version)
	buf.WriteByte('>')
	for _, r := range d.Resources.Items {
		writeResourceCore(buf, r, "ExternalResource")
	}
	if d.Filters != nil {
		for _, f := range d.Filters.Items {
			buf.WriteString("<Filter>")
			for _, p := range f.Properties {
				buf.WriteString("<Property")
				attr(buf, "Name", p.Name)
				attr(buf, "Operator", p.Operator)
				attr(buf, "Value", p.Value)
				buf.WriteString("/>")
			}
			buf.WriteString("</Filter>")
		}
	}
	if d.Metadata != nil {
		buf.WriteString("<Metadata NumRecords=\"")
		buf.WriteString(strconv.FormatInt(d.Metadata.NumRecords, 10))
		buf.WriteString("\" TotalLength=\"")
		buf.WriteString(strconv.FormatInt(d.Metadata.TotalLength, 10))
		buf.WriteString("\"/>")
	}
	if d.SubSets != nil {
		for _, sub := range d.SubSets.Items {
			writeCore(buf, sub)
		}
	}
	buf.WriteString("</")
	buf.WriteString(d.RootTag())
	buf.WriteByte('>')
}

func writeResourceCore(buf *bytes.Buffer, r *Resource, tag string) {
	buf.WriteByte('<')
	buf.WriteString(tag)
	attr(buf, "ResourceId", r.ResourceID)
	attr(buf, "MetaType", r.MetaType)
	attr(buf, "Reference", r.Reference)
	buf.WriteByte('>')
	if r.Indices != nil {
		for _, ix := range r.Indices.Items {
			writeResourceCore(buf, ix, "FileIndex")
		}
	}
	if r.Resources != nil {
		for _, sub := range r.Resources.Items {
			writeResourceCore(buf, sub, "ExternalResource")
		}
	}
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteByte('>')
}

func attr(buf *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(name)
	buf.WriteString(`="`)
	buf.WriteString(value)
	buf.WriteByte('"')
}
