package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// TrashFile is one saved copy of a replaced Index file.
type TrashFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListTrash returns the trash contents, oldest first.
func (a *Archive) ListTrash() ([]TrashFile, error) {
	entries, err := os.ReadDir(a.TrashDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trash dir: %w", err)
	}
	var files []TrashFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, TrashFile{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// CleanTrash deletes trash files last modified more than maxAge ago and
// returns their names. A non-positive maxAge keeps everything.
func (a *Archive) CleanTrash(maxAge time.Duration) ([]string, error) {
	if maxAge <= 0 {
		return nil, nil
	}
	files, err := a.ListTrash()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.TrashDir, f.Name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", f.Name, err)
		}
		a.Logger().Debug("deleted from trash", "name", f.Name, "modified", f.ModTime)
		removed = append(removed, f.Name)
	}
	if len(removed) > 0 {
		a.Logger().Info("cleaned trash", "removed", len(removed))
	}
	return removed, nil
}
