// Package archive applies Index edits to the archive tree. Every write
// copies the previous Index text to the trash directory first, and an Index
// left with no data is deleted rather than written empty.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/ifarchive/indexadmin/internal/config"
	"github.com/ifarchive/indexadmin/internal/index"
)

var (
	// ErrBadDirname is returned for directory names that are absolute or
	// escape the archive root.
	ErrBadDirname = errors.New("bad directory name")
	// ErrBadFilename is returned for entry names that cannot be written as a
	// file header.
	ErrBadFilename = errors.New("bad filename")
	// ErrBadDescription is returned for descriptions with a line that would
	// parse as a "# filename" header and split the entry.
	ErrBadDescription = errors.New("bad description")
)

// Archive is one archive tree plus its trash directory.
type Archive struct {
	Root      string
	TrashDir  string
	IndexName string
	SkipDirs  map[string]bool
	L         hclog.Logger

	mu sync.Mutex
}

// New returns an Archive for cfg.
func New(cfg *config.Config) *Archive {
	return &Archive{
		Root:      cfg.Archive.Root,
		TrashDir:  cfg.Trash.Dir,
		IndexName: cfg.Archive.IndexName,
		SkipDirs:  cfg.SkipDirSet(),
		L:         hclog.L().Named("archive"),
	}
}

// Logger returns the archive logger, defaulting to the global hclog logger.
func (a *Archive) Logger() hclog.Logger {
	if a.L == nil {
		a.L = hclog.L()
	}
	return a.L
}

func (a *Archive) indexName() string {
	if a.IndexName == "" {
		return config.DefaultIndexName
	}
	return a.IndexName
}

// CleanDirname returns dirname in canonical slash form. The archive root
// is ".".
func (a *Archive) CleanDirname(dirname string) (string, error) {
	if strings.ContainsAny(dirname, "\x00\\") || path.IsAbs(dirname) {
		return "", fmt.Errorf("%w: %q", ErrBadDirname, dirname)
	}
	clean := path.Clean(dirname)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrBadDirname, dirname)
	}
	if clean != "." {
		for _, part := range strings.Split(clean, "/") {
			if a.SkipDirs[part] {
				return "", fmt.Errorf("%w: %q is excluded", ErrBadDirname, dirname)
			}
		}
	}
	return clean, nil
}

// IndexPath returns the absolute path of the Index file for dirname.
func (a *Archive) IndexPath(dirname string) (string, error) {
	clean, err := a.CleanDirname(dirname)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(a.Root)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(absRoot, filepath.FromSlash(clean))
	// The resolved path must be under the archive root
	if dir != absRoot && !strings.HasPrefix(dir, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrBadDirname, dirname)
	}
	return filepath.Join(dir, a.indexName()), nil
}

// Load parses the Index file for dirname. A directory without one yields
// an empty Dir.
func (a *Archive) Load(dirname string) (*index.Dir, error) {
	clean, err := a.CleanDirname(dirname)
	if err != nil {
		return nil, err
	}
	p, err := a.IndexPath(clean)
	if err != nil {
		return nil, err
	}
	d, err := index.Parse(p)
	if errors.Is(err, fs.ErrNotExist) {
		return index.New(clean, p), nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	d.Dirname = clean
	return d, nil
}

// Rewrite stores d on disk. The previous Index text, if any, is copied to
// the trash directory and its name returned. A Dir with no data deletes the
// Index file instead of writing it.
func (a *Archive) Rewrite(d *index.Dir) (string, error) {
	p := d.IndexPath
	if p == "" {
		var err error
		if p, err = a.IndexPath(d.Dirname); err != nil {
			return "", err
		}
	}

	var backup string
	old, err := os.ReadFile(p)
	switch {
	case err == nil:
		backup, err = a.saveToTrash(d.Dirname, old)
		if err != nil {
			return "", err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read %s: %w", p, err)
	}

	if !d.HasData() {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return backup, fmt.Errorf("remove %s: %w", p, err)
		}
		a.Logger().Info("removed empty index", "dir", d.Dirname, "backup", backup)
		return backup, nil
	}

	if err := writeAtomic(p, d); err != nil {
		return backup, err
	}
	a.Logger().Info("rewrote index", "dir", d.Dirname, "entries", len(d.Files), "backup", backup)
	return backup, nil
}

func (a *Archive) saveToTrash(dirname string, text []byte) (string, error) {
	if err := os.MkdirAll(a.TrashDir, 0o755); err != nil {
		return "", fmt.Errorf("create trash dir: %w", err)
	}
	name := a.indexName()
	if dirname != "" && dirname != "." {
		name += "-" + strings.ReplaceAll(dirname, "/", "-")
	}
	name = FindUnusedFilename(name, a.TrashDir)
	if err := os.WriteFile(filepath.Join(a.TrashDir, name), text, 0o644); err != nil {
		return "", fmt.Errorf("write trash copy: %w", err)
	}
	return name, nil
}

// writeAtomic writes through a temp file in the same directory so readers
// never see a half-written Index.
func writeAtomic(p string, d *index.Dir) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := d.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", p, err)
	}
	return nil
}

// SaveResult describes one completed SaveEntry.
type SaveResult struct {
	Dirname  string     `json:"dirname"`
	Filename string     `json:"filename"`
	Backup   string     `json:"backup,omitempty"`
	Deleted  bool       `json:"deleted"`
	Dir      *index.Dir `json:"-"`
}

// SaveEntry replaces the metadata and description of filename in dirname's
// Index. metadataText and desc are checked before anything is read or
// written, so a *index.ValidationError or ErrBadDescription leaves the
// archive untouched. Saves are serialized.
func (a *Archive) SaveEntry(dirname, filename, desc, metadataText string) (*SaveResult, error) {
	md, err := index.ValidateMetadataBlock(metadataText)
	if err != nil {
		return nil, err
	}
	if filename != index.DirSentinel && BadFilename(filename) {
		return nil, fmt.Errorf("%w: %q", ErrBadFilename, filename)
	}
	if n, line := index.HeaderLine(desc); n > 0 {
		return nil, fmt.Errorf("%w: line %d %q would start a new entry", ErrBadDescription, n, line)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.Load(dirname)
	if err != nil {
		return nil, err
	}
	d.Update(filename, desc, md)
	backup, err := a.Rewrite(d)
	if err != nil {
		return nil, err
	}
	return &SaveResult{
		Dirname:  d.Dirname,
		Filename: filename,
		Backup:   backup,
		Deleted:  !d.HasData(),
		Dir:      d,
	}, nil
}

// BadFilename reports whether name cannot be written as a file header.
// The "." directory sentinel is rejected here; SaveEntry allows it separately.
func BadFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return true
	}
	if strings.ContainsAny(name, "/\x00\n\r") {
		return true
	}
	if strings.TrimSpace(name) != name {
		return true
	}
	return strings.HasPrefix(name, "#")
}

var numSuffix = regexp.MustCompile(`\.([0-9]+)$`)

// FindUnusedFilename returns name if it is free in dir, otherwise name with
// the first free ".N" suffix. An existing numeric suffix on name is counted
// up from rather than stacked.
func FindUnusedFilename(name, dir string) string {
	if !exists(filepath.Join(dir, name)) {
		return name
	}
	count := 0
	if m := numSuffix.FindStringSubmatchIndex(name); m != nil && m[0] > 0 {
		count, _ = strconv.Atoi(name[m[2]:m[3]])
		name = name[:m[0]]
	}
	for {
		count++
		candidate := name + "." + strconv.Itoa(count)
		if !exists(filepath.Join(dir, candidate)) {
			return candidate
		}
	}
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// WalkIndexes returns the dirnames under the root that hold an Index file,
// in lexical order.
func (a *Archive) WalkIndexes() ([]string, error) {
	root, err := filepath.Abs(a.Root)
	if err != nil {
		return nil, err
	}
	name := a.indexName()
	var dirs []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			a.Logger().Warn("skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if d.IsDir() {
			if p != root && a.SkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == name && d.Type().IsRegular() {
			dirs = append(dirs, relDirname(root, filepath.Dir(p)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return dirs, nil
}

func relDirname(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return dir
	}
	return filepath.ToSlash(rel)
}
