// Package index reads, edits, and writes archive Index files.
//
// An Index file sits next to the files of one archive directory. It opens with
// an optional directory-level metadata block and description, followed by one
// block per documented file:
//
//	title: Games by year
//
//	The directory description.
//
//	# game.zip
//	ifid: ABC123
//	tuid: xyz
//
//	Some game.
//
// Metadata lines are "key: value". A line indented by four spaces or a tab
// continues the previous key and produces another pair under that key.
package index

// DirSentinel is the filename that addresses the directory's own block.
const DirSentinel = "."

// Pair is one metadata line. Keys may repeat within a block.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is an ordered list of pairs. Order and duplicates are significant,
// so it is never converted to a map.
type Metadata []Pair

// Get returns the first value for key.
func (m Metadata) Get(key string) (string, bool) {
	for _, p := range m {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Values returns every value for key in order.
func (m Metadata) Values(key string) []string {
	var vals []string
	for _, p := range m {
		if p.Key == key {
			vals = append(vals, p.Value)
		}
	}
	return vals
}

// Entry documents one file, directory, or symlink in the directory.
// It does not assert that the path exists.
type Entry struct {
	Filename    string   `json:"filename"`
	Metadata    Metadata `json:"metadata"`
	Description string   `json:"description,omitempty"` // "" when absent
}

// Dir is one parsed Index file.
type Dir struct {
	Dirname     string   `json:"dirname"`
	IndexPath   string   `json:"indexpath"`
	Metadata    Metadata `json:"metadata"`
	Description string   `json:"description,omitempty"` // "" when absent
	Files       []*Entry `json:"files"`
}

// New returns an empty Dir, used when a directory has no Index file yet.
func New(dirname, indexPath string) *Dir {
	return &Dir{Dirname: dirname, IndexPath: indexPath}
}

// Lookup returns the first entry named filename, or nil.
func (d *Dir) Lookup(filename string) *Entry {
	for _, f := range d.Files {
		if f.Filename == filename {
			return f
		}
	}
	return nil
}

// HasData reports whether writing d would produce anything worth keeping.
func (d *Dir) HasData() bool {
	return len(d.Metadata) > 0 || d.Description != "" || len(d.Files) > 0
}
