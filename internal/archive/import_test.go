package archive

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ifarchive/indexadmin/internal/index"
)

func TestImportNote(t *testing.T) {
	a := testArchive(t)
	note := filepath.Join(t.TempDir(), "note.md")
	writeFile(t, note, `---
tuid: xyz
ifid:
  - ABC
  - DEF
year: 1999
---

A game about a lighthouse.
`)
	writeFile(t, filepath.Join(a.Root, "games", "Index"), "# other.zip\n\nOther.\n")

	res, err := a.ImportNote("games", "lighthouse.zip", note)
	if err != nil {
		t.Fatalf("ImportNote: %v", err)
	}
	e := res.Dir.Lookup("lighthouse.zip")
	if e == nil {
		t.Fatal("entry not created")
	}
	want := index.Metadata{
		{Key: "ifid", Value: "ABC"},
		{Key: "ifid", Value: "DEF"},
		{Key: "tuid", Value: "xyz"},
		{Key: "year", Value: "1999"},
	}
	if len(e.Metadata) != len(want) {
		t.Fatalf("Metadata = %v, want %v", e.Metadata, want)
	}
	for i := range want {
		if e.Metadata[i] != want[i] {
			t.Errorf("pair %d = %v, want %v", i, e.Metadata[i], want[i])
		}
	}
	if e.Description != "\nA game about a lighthouse.\n\n" {
		t.Errorf("Description = %q", e.Description)
	}

	reloaded, err := a.Load("games")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Lookup("other.zip") == nil || reloaded.Lookup("lighthouse.zip") == nil {
		t.Error("expected both entries on disk")
	}
}

func TestImportNote_NoFrontmatter(t *testing.T) {
	a := testArchive(t)
	note := filepath.Join(t.TempDir(), "plain.md")
	writeFile(t, note, "Just a description.\n")

	res, err := a.ImportNote(".", "plain.txt", note)
	if err != nil {
		t.Fatalf("ImportNote: %v", err)
	}
	e := res.Dir.Lookup("plain.txt")
	if e == nil || len(e.Metadata) != 0 || e.Description != "\nJust a description.\n\n" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestImportNote_BadKey(t *testing.T) {
	a := testArchive(t)
	note := filepath.Join(t.TempDir(), "bad.md")
	writeFile(t, note, "---\nbad key: v\n---\nText\n")

	_, err := a.ImportNote(".", "x.zip", note)
	var verr *index.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestImportNote_DemotesHeadings(t *testing.T) {
	a := testArchive(t)
	note := filepath.Join(t.TempDir(), "walk.md")
	writeFile(t, note, "---\nifid: W1\n---\n# Walkthrough\n\nGo north.\n\n## Notes\n# Chapter 2\nGo south.\n")
	writeFile(t, filepath.Join(a.Root, "games", "Index"), "# other.zip\n\nOther.\n")

	if _, err := a.ImportNote("games", "walk.zip", note); err != nil {
		t.Fatalf("ImportNote: %v", err)
	}
	d, err := a.Load("games")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Files) != 2 {
		t.Fatalf("reload has %d entries, want 2", len(d.Files))
	}
	e := d.Lookup("walk.zip")
	want := "\n## Walkthrough\n\nGo north.\n\n## Notes\n## Chapter 2\nGo south.\n\n"
	if e == nil || e.Description != want {
		t.Fatalf("entry = %+v, want description %q", e, want)
	}
}
