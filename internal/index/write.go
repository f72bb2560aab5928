package index

import (
	"io"
	"strings"
)

// Serialize renders d as canonical Index text. Continuation lines are written
// as repeated keys. A blank line is inserted before a header whenever the
// preceding block did not already end with one.
func (d *Dir) Serialize() string {
	var b strings.Builder

	writePairs(&b, d.Metadata)
	lastBlank := writeDescription(&b, d.Description)

	for _, f := range d.Files {
		if !lastBlank {
			b.WriteByte('\n')
		}
		b.WriteString("# ")
		b.WriteString(f.Filename)
		b.WriteByte('\n')
		writePairs(&b, f.Metadata)
		lastBlank = writeDescription(&b, f.Description)
	}
	return b.String()
}

// WriteTo writes the serialized text to w.
func (d *Dir) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, d.Serialize())
	return int64(n), err
}

func writePairs(b *strings.Builder, md Metadata) {
	for _, p := range md {
		b.WriteString(p.Key)
		b.WriteString(": ")
		b.WriteString(p.Value)
		b.WriteByte('\n')
	}
}

// writeDescription writes desc (or a lone newline when absent) and reports
// whether the output now ends in a blank line.
func writeDescription(b *strings.Builder, desc string) bool {
	if desc == "" {
		b.WriteByte('\n')
		return true
	}
	b.WriteString(desc)
	return desc == "\n" || strings.HasSuffix(desc, "\n\n")
}
