package archive

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"

	"github.com/ifarchive/indexadmin/internal/index"
)

// ImportNote saves a markdown note as the entry for filename. Frontmatter
// keys become metadata pairs in sorted key order, list values becoming one
// pair per item. The note body becomes the description, with "# Heading"
// lines demoted to "## Heading" so they stay part of it.
func (a *Archive) ImportNote(dirname, filename, notePath string) (*SaveResult, error) {
	f, err := os.Open(notePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fm map[string]interface{}
	body, err := frontmatter.Parse(f, &fm)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter %s: %w", notePath, err)
	}
	md := noteMetadata(fm)
	desc := index.EscapeHeaders(string(body))
	return a.SaveEntry(dirname, filename, desc, index.FormatMetadata(md))
}

func noteMetadata(fm map[string]interface{}) index.Metadata {
	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var md index.Metadata
	for _, k := range keys {
		switch v := fm[k].(type) {
		case []interface{}:
			for _, item := range v {
				md = append(md, index.Pair{Key: k, Value: scalar(item)})
			}
		default:
			md = append(md, index.Pair{Key: k, Value: scalar(v)})
		}
	}
	return md
}

// scalar flattens a YAML value onto one metadata line.
func scalar(v interface{}) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	return strings.Join(strings.Fields(s), " ")
}
