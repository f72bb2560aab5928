package index

import (
	"regexp"
	"strings"
)

// LineKind is the grammatical role of one physical line.
type LineKind int

const (
	Description LineKind = iota
	Blank
	FilenameHeader
	MetadataStart
	MetadataContinuation
)

func (k LineKind) String() string {
	switch k {
	case Blank:
		return "blank"
	case FilenameHeader:
		return "filename"
	case MetadataStart:
		return "metadata"
	case MetadataContinuation:
		return "continuation"
	default:
		return "description"
	}
}

// Line is a classified line. Text is the line as read; Key and Value are set
// according to Kind.
type Line struct {
	Kind  LineKind
	Text  string
	Key   string // MetadataStart
	Value string // FilenameHeader (the filename), MetadataStart, MetadataContinuation
}

var patterns = struct {
	filename     *regexp.Regexp
	metaStart    *regexp.Regexp
	continuation *regexp.Regexp
}{
	filename:     regexp.MustCompile(`^#([^#].*)$`),
	metaStart:    regexp.MustCompile(`^ {0,3}([A-Za-z0-9_-]+):(.*)$`),
	continuation: regexp.MustCompile(`^(?: {4}|\t)(.*)$`),
}

// Classify assigns a kind to line. keyOpen says whether a metadata key is open
// in the current scope; without one, an indented line is plain description.
func Classify(line string, keyOpen bool) Line {
	l := Line{Kind: Description, Text: line}

	if strings.TrimSpace(line) == "" {
		l.Kind = Blank
		return l
	}
	if m := patterns.filename.FindStringSubmatch(line); m != nil {
		l.Kind = FilenameHeader
		l.Value = strings.TrimSpace(m[1])
		return l
	}
	if keyOpen {
		if m := patterns.continuation.FindStringSubmatch(line); m != nil {
			l.Kind = MetadataContinuation
			l.Value = strings.TrimSpace(m[1])
			return l
		}
	}
	if m := patterns.metaStart.FindStringSubmatch(line); m != nil {
		l.Kind = MetadataStart
		l.Key = m[1]
		l.Value = strings.TrimSpace(m[2])
		return l
	}
	return l
}
