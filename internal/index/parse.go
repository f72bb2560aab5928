package index

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// metaState tracks the metadata block of the current scope.
type metaState int

const (
	metaClosed  metaState = iota // block finished; lines are description
	metaOpen                     // block open, no key yet
	metaOpenKey                  // block open, continuations extend openKey
)

// parseState is the reducer state for one parse.
type parseState struct {
	dir     *Dir
	cur     *Entry // nil while the directory's own block is the scope
	meta    metaState
	openKey string
	lines   []string // description buffer for the current scope
}

// Parse reads and parses the Index file at path. The only error is failure to
// read the file, returned unchanged so callers can test for fs.ErrNotExist.
// Dirname is left for the caller to fill in.
func Parse(path string) (*Dir, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d := ParseText(string(data))
	if abs, err := filepath.Abs(path); err == nil {
		d.IndexPath = abs
	} else {
		d.IndexPath = path
	}
	return d, nil
}

// ParseReader parses Index text from r.
func ParseReader(r io.Reader) (*Dir, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseText(string(data)), nil
}

// ParseText parses Index text. It never fails: lines that fit no structured
// form become description text.
func ParseText(text string) *Dir {
	s := &parseState{dir: &Dir{}, meta: metaOpen}
	for _, line := range splitLines(text) {
		s.parseLine(line)
	}
	s.finish()
	return s.dir
}

func (s *parseState) parseLine(raw string) {
	l := Classify(raw, s.meta == metaOpenKey)

	if l.Kind == FilenameHeader {
		s.finish()
		s.cur = &Entry{Filename: l.Value}
		s.dir.Files = append(s.dir.Files, s.cur)
		s.meta = metaOpen
		s.openKey = ""
		return
	}

	if s.meta != metaClosed {
		switch l.Kind {
		case MetadataStart:
			s.addPair(l.Key, l.Value)
			s.meta = metaOpenKey
			s.openKey = l.Key
			return
		case MetadataContinuation:
			s.addPair(s.openKey, l.Value)
			return
		}
		s.meta = metaClosed
		s.openKey = ""
		if l.Kind == Blank {
			return
		}
	}

	s.appendDesc(raw)
}

func (s *parseState) addPair(key, value string) {
	p := Pair{Key: key, Value: value}
	if s.cur != nil {
		s.cur.Metadata = append(s.cur.Metadata, p)
	} else {
		s.dir.Metadata = append(s.dir.Metadata, p)
	}
}

// appendDesc adds a line to the description buffer. Blank lines ahead of the
// first text are dropped; the first text line is preceded by exactly one
// synthesized blank line.
func (s *parseState) appendDesc(raw string) {
	if len(s.lines) == 0 {
		if strings.TrimSpace(raw) == "" {
			return
		}
		s.lines = append(s.lines, "")
	}
	s.lines = append(s.lines, raw)
}

// finish stores the buffered description on the current scope.
func (s *parseState) finish() {
	desc := joinDescription(s.lines)
	if s.cur != nil {
		s.cur.Description = desc
	} else {
		s.dir.Description = desc
	}
	s.lines = nil
}

// joinDescription turns buffered lines into description text. A run of
// trailing blank lines collapses to one.
func joinDescription(lines []string) string {
	n := len(lines)
	for n > 0 && strings.TrimSpace(lines[n-1]) == "" {
		n--
	}
	if n == 0 {
		return ""
	}
	trailing := n < len(lines)
	var b strings.Builder
	for _, ln := range lines[:n] {
		b.WriteString(ln)
		b.WriteByte('\n')
	}
	if trailing {
		b.WriteByte('\n')
	}
	return b.String()
}

// splitLines splits text into lines without their terminators.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, ln := range lines {
		lines[i] = strings.TrimSuffix(ln, "\r")
	}
	return lines
}
