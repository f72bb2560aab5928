package index

import (
	"fmt"
	"strings"
)

// ValidationError reports a line of a metadata block that is neither blank,
// a "key: value" line, nor a continuation of the key above it.
type ValidationError struct {
	Line   string
	LineNo int // 1-based
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid metadata line %d: %q", e.LineNo, e.Line)
}

// ValidateMetadataBlock parses a freestanding metadata fragment, such as the
// metadata field of an edit form. Blank lines are skipped but end a run of
// continuations. Any other line that is not metadata is an error.
func ValidateMetadataBlock(text string) (Metadata, error) {
	var md Metadata
	meta := metaOpen
	openKey := ""

	for i, raw := range splitLines(text) {
		l := Classify(raw, meta == metaOpenKey)
		switch l.Kind {
		case Blank:
			meta = metaOpen
			openKey = ""
		case MetadataStart:
			md = append(md, Pair{Key: l.Key, Value: l.Value})
			meta = metaOpenKey
			openKey = l.Key
		case MetadataContinuation:
			md = append(md, Pair{Key: openKey, Value: l.Value})
		default:
			return nil, &ValidationError{Line: raw, LineNo: i + 1}
		}
	}
	return md, nil
}

// FormatMetadata renders pairs as "key: value" lines, the inverse of
// ValidateMetadataBlock for canonical input. It is used to prefill edit forms.
func FormatMetadata(md Metadata) string {
	var b strings.Builder
	writePairs(&b, md)
	return b.String()
}
