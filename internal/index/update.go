package index

import (
	"strings"
	"unicode"
)

// Update replaces the description and metadata of one block. filename "."
// addresses the directory itself. Otherwise the first entry with that name is
// replaced, or a new entry is appended at the end. The block is replaced
// wholesale: fields missing from md are dropped.
func (d *Dir) Update(filename, desc string, md Metadata) {
	desc = NormalizeDescription(desc)
	md = append(Metadata(nil), md...)

	if filename == DirSentinel {
		d.Description = desc
		d.Metadata = md
		return
	}

	if f := d.Lookup(filename); f != nil {
		f.Description = desc
		f.Metadata = md
		return
	}
	d.Files = append(d.Files, &Entry{
		Filename:    filename,
		Metadata:    md,
		Description: desc,
	})
}

// NormalizeDescription puts user-supplied text in stored form: "" when there
// is no text, otherwise one leading newline, the text, and a blank line.
func NormalizeDescription(desc string) string {
	desc = strings.TrimRightFunc(desc, unicode.IsSpace)
	if desc == "" {
		return ""
	}
	desc = strings.TrimLeft(desc, "\n")
	return "\n" + desc + "\n\n"
}

// HeaderLine returns the 1-based number and text of the first line of desc
// that would parse as a "# filename" header, or 0 if there is none. Such a
// line cannot be stored in a description: it would start a new entry.
func HeaderLine(desc string) (int, string) {
	for i, line := range strings.Split(desc, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if Classify(line, false).Kind == FilenameHeader {
			return i + 1, line
		}
	}
	return 0, ""
}

// EscapeHeaders turns every header-like line of desc into a "##" line, which
// parses as description text.
func EscapeHeaders(desc string) string {
	lines := strings.Split(desc, "\n")
	for i, line := range lines {
		if Classify(strings.TrimSuffix(line, "\r"), false).Kind == FilenameHeader {
			lines[i] = "#" + line
		}
	}
	return strings.Join(lines, "\n")
}
