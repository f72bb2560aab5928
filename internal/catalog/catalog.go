// Package catalog keeps the SQLite catalog in step with the Index files on
// disk.
package catalog

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/ifarchive/indexadmin/internal/archive"
	"github.com/ifarchive/indexadmin/internal/index"
	"github.com/ifarchive/indexadmin/internal/store"
)

// Version is set by cmd/indexadmin to record which build performed the catalog.
var Version string

// Stats holds catalog run statistics.
type Stats struct {
	TotalDirs        int    `json:"total_dirs"`
	NewlyCataloged   int    `json:"newly_cataloged"`
	SkippedUnchanged int    `json:"skipped_unchanged"`
	Removed          int    `json:"removed"`
	Errors           int    `json:"errors"`
	DirsInCatalog    int    `json:"total_dirs_in_catalog"`
	EntriesInCatalog int    `json:"total_entries_in_catalog"`
	Timestamp        string `json:"timestamp"`
}

// ProgressFunc is called as each directory is processed.
type ProgressFunc func(current, total int, dirname string)

type parseResult struct {
	dir      *index.Dir
	hash     string
	modified float64
	dirname  string
	err      error
}

// Reindex walks the archive and catalogs every Index file whose content
// changed since the last run. force recatalogs everything. Directories that
// no longer hold an Index file are dropped.
func Reindex(db *store.DB, arch *archive.Archive, force bool) (*Stats, error) {
	return ReindexWithProgress(db, arch, force, nil)
}

// ReindexWithProgress is like Reindex but accepts an optional progress callback.
func ReindexWithProgress(db *store.DB, arch *archive.Archive, force bool, progress ProgressFunc) (*Stats, error) {
	L := arch.Logger()

	dirnames, err := arch.WalkIndexes()
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		TotalDirs: len(dirnames),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	existing, err := db.GetContentHashes()
	if err != nil {
		return nil, fmt.Errorf("read content hashes: %w", err)
	}

	seen := make(map[string]bool, len(dirnames))
	for _, d := range dirnames {
		seen[d] = true
	}
	for d := range existing {
		if seen[d] {
			continue
		}
		if err := db.DeleteDir(d); err != nil {
			L.Error("drop vanished dir", "dir", d, "error", err)
			stats.Errors++
			continue
		}
		L.Debug("dropped vanished dir", "dir", d)
		stats.Removed++
	}

	// Read, hash, and parse with a small worker pool.
	const numWorkers = 4
	workCh := make(chan string, len(dirnames))
	resultCh := make(chan parseResult, len(dirnames))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dirname := range workCh {
				resultCh <- readDir(arch, dirname)
			}
		}()
	}
	for _, d := range dirnames {
		workCh <- d
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	processed := 0
	for res := range resultCh {
		processed++
		if progress != nil {
			progress(processed, stats.TotalDirs, res.dirname)
		}
		if res.err != nil {
			L.Error("read index", "dir", res.dirname, "error", res.err)
			stats.Errors++
			continue
		}
		if !force && existing[res.dirname] == res.hash {
			stats.SkippedUnchanged++
			continue
		}
		if err := db.ReplaceDir(res.dir, res.hash, res.modified); err != nil {
			L.Error("store index", "dir", res.dirname, "error", err)
			stats.Errors++
			continue
		}
		L.Debug("cataloged", "dir", res.dirname, "entries", len(res.dir.Files))
		stats.NewlyCataloged++
	}

	stats.DirsInCatalog, _ = db.DirCount()
	stats.EntriesInCatalog, _ = db.EntryCount()

	_ = db.SetMeta("last_catalog_time", time.Now().UTC().Format(time.RFC3339))
	if Version != "" {
		_ = db.SetMeta("indexadmin_version", Version)
	}
	L.Info("catalog complete", "dirs", stats.TotalDirs, "updated", stats.NewlyCataloged,
		"unchanged", stats.SkippedUnchanged, "removed", stats.Removed, "errors", stats.Errors)
	return stats, nil
}

func readDir(arch *archive.Archive, dirname string) parseResult {
	res := parseResult{dirname: dirname}
	p, err := arch.IndexPath(dirname)
	if err != nil {
		res.err = err
		return res
	}
	content, err := os.ReadFile(p)
	if err != nil {
		res.err = err
		return res
	}
	info, err := os.Stat(p)
	if err != nil {
		res.err = err
		return res
	}
	d := index.ParseText(string(content))
	d.Dirname = dirname
	d.IndexPath = p
	res.dir = d
	res.hash = sha256Hash(content)
	res.modified = float64(info.ModTime().Unix())
	return res
}

// IndexDir recatalogs one directory. A directory whose Index file is gone
// is removed from the catalog.
func IndexDir(db *store.DB, arch *archive.Archive, dirname string) error {
	clean, err := arch.CleanDirname(dirname)
	if err != nil {
		return err
	}
	res := readDir(arch, clean)
	if errors.Is(res.err, fs.ErrNotExist) {
		return db.DeleteDir(clean)
	}
	if res.err != nil {
		return fmt.Errorf("read index %s: %w", clean, res.err)
	}
	return db.ReplaceDir(res.dir, res.hash, res.modified)
}

// GetStats returns live catalog counts and the last catalog time.
func GetStats(db *store.DB) map[string]interface{} {
	result := map[string]interface{}{}
	if n, err := db.DirCount(); err == nil {
		result["total_dirs_in_catalog"] = n
	}
	if n, err := db.EntryCount(); err == nil {
		result["total_entries_in_catalog"] = n
	}
	if t, ok := db.GetMeta("last_catalog_time"); ok {
		result["last_catalog"] = t
	} else {
		result["status"] = "never cataloged"
		result["hint"] = "run 'indexadmin catalog' first"
	}
	return result
}

func sha256Hash(b []byte) string {
	h := sha256.Sum256(b)
	return fmt.Sprintf("%x", h)
}
