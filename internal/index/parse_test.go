package index

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseText_SingleFileBlock(t *testing.T) {
	got := ParseText("# game.zip\nifid: ABC123\n\nSome game.\n")
	want := &Dir{
		Files: []*Entry{
			{
				Filename:    "game.zip",
				Metadata:    Metadata{{Key: "ifid", Value: "ABC123"}},
				Description: "\nSome game.\n",
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseText mismatch (-want +got):\n%s", diff)
	}
}

func TestParseText_EmptyEntryThenTextWithoutBlank(t *testing.T) {
	got := ParseText("# a.zip\n\n# b.zip\ndesc text\n")
	want := &Dir{
		Files: []*Entry{
			{Filename: "a.zip"},
			{Filename: "b.zip", Description: "\ndesc text\n"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseText mismatch (-want +got):\n%s", diff)
	}
}

func TestParseText_DirectoryBlock(t *testing.T) {
	got := ParseText("title: Games\nyear: 1999\n    2000\n\nThe games.\nMore.\n\n# a.zip\nifid: A\n")
	want := &Dir{
		Metadata: Metadata{
			{Key: "title", Value: "Games"},
			{Key: "year", Value: "1999"},
			{Key: "year", Value: "2000"},
		},
		Description: "\nThe games.\nMore.\n\n",
		Files: []*Entry{
			{Filename: "a.zip", Metadata: Metadata{{Key: "ifid", Value: "A"}}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseText mismatch (-want +got):\n%s", diff)
	}
}

func TestParseText_DirectoryDescriptionWithoutMetadata(t *testing.T) {
	got := ParseText("Welcome to the archive.\n\n# a.zip\n")
	if got.Description != "\nWelcome to the archive.\n\n" {
		t.Errorf("Description = %q", got.Description)
	}
	if len(got.Metadata) != 0 {
		t.Errorf("expected no directory metadata, got %v", got.Metadata)
	}
}

func TestParseText_MetadataLikeLinesInDescription(t *testing.T) {
	got := ParseText("# a.zip\n\nNote: this stays text\n    so does this\n")
	f := got.Files[0]
	if len(f.Metadata) != 0 {
		t.Fatalf("expected no metadata, got %v", f.Metadata)
	}
	want := "\nNote: this stays text\n    so does this\n"
	if f.Description != want {
		t.Errorf("Description = %q, want %q", f.Description, want)
	}
}

func TestParseText_ContinuationWithoutKeyIsDescription(t *testing.T) {
	got := ParseText("# a.zip\n    indented first\n")
	f := got.Files[0]
	if len(f.Metadata) != 0 {
		t.Fatalf("expected no metadata, got %v", f.Metadata)
	}
	if f.Description != "\n    indented first\n" {
		t.Errorf("Description = %q", f.Description)
	}
}

func TestParseText_TabContinuation(t *testing.T) {
	got := ParseText("# a.zip\nauthor: One\n\tTwo\n   tag: x\n")
	want := Metadata{
		{Key: "author", Value: "One"},
		{Key: "author", Value: "Two"},
		{Key: "tag", Value: "x"},
	}
	if diff := cmp.Diff(want, got.Files[0].Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseText_BlankRunsNormalized(t *testing.T) {
	got := ParseText("# a.zip\n\n\n\nText\n\n  \n\n# b.zip\n")
	if got.Files[0].Description != "\nText\n\n" {
		t.Errorf("Description = %q, want %q", got.Files[0].Description, "\nText\n\n")
	}
}

func TestParseText_InnerBlankLinesKept(t *testing.T) {
	got := ParseText("# a.zip\n\nPara one.\n\n\nPara two.\n")
	want := "\nPara one.\n\n\nPara two.\n"
	if got.Files[0].Description != want {
		t.Errorf("Description = %q, want %q", got.Files[0].Description, want)
	}
}

func TestParseText_CRLF(t *testing.T) {
	got := ParseText("# a.zip\r\nk: v\r\n\r\nText  \r\n")
	f := got.Files[0]
	if v, _ := f.Metadata.Get("k"); v != "v" {
		t.Errorf("metadata k = %q", v)
	}
	if f.Description != "\nText  \n" {
		t.Errorf("Description = %q", f.Description)
	}
}

func TestParseText_HeaderVariants(t *testing.T) {
	got := ParseText("#tight.zip\n#   spaced.zip   \n## not a header\n")
	if len(got.Files) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Files))
	}
	if got.Files[0].Filename != "tight.zip" || got.Files[1].Filename != "spaced.zip" {
		t.Errorf("filenames = %q, %q", got.Files[0].Filename, got.Files[1].Filename)
	}
	if got.Files[1].Description != "\n## not a header\n" {
		t.Errorf("Description = %q", got.Files[1].Description)
	}
}

func TestParseText_SourceOrderAndDuplicates(t *testing.T) {
	got := ParseText("# zeta\n\n# alpha\n\n# zeta\n\nsecond\n")
	var names []string
	for _, f := range got.Files {
		names = append(names, f.Filename)
	}
	if strings.Join(names, ",") != "zeta,alpha,zeta" {
		t.Fatalf("order = %v", names)
	}
	if got.Lookup("zeta") != got.Files[0] {
		t.Error("Lookup should return the first occurrence")
	}
}

func TestParseText_Empty(t *testing.T) {
	got := ParseText("")
	if got.HasData() {
		t.Fatalf("expected empty dir, got %+v", got)
	}
}

func TestParse_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Index")
	if err := os.WriteFile(path, []byte("# a.zip\n\nA.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	abs, _ := filepath.Abs(path)
	if d.IndexPath != abs {
		t.Errorf("IndexPath = %q, want %q", d.IndexPath, abs)
	}
	if len(d.Files) != 1 || d.Files[0].Description != "\nA.\n" {
		t.Errorf("unexpected parse result: %+v", d.Files)
	}
}

func TestParse_MissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "Index"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestParseReader(t *testing.T) {
	d, err := ParseReader(strings.NewReader("k: v\n"))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if v, ok := d.Metadata.Get("k"); !ok || v != "v" {
		t.Errorf("Get(k) = %q, %v", v, ok)
	}
}

func TestMetadataValues(t *testing.T) {
	md := Metadata{{"a", "1"}, {"b", "2"}, {"a", "3"}}
	if got := md.Values("a"); strings.Join(got, ",") != "1,3" {
		t.Errorf("Values(a) = %v", got)
	}
	if _, ok := md.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}
