package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ifarchive/indexadmin/internal/archive"
	"github.com/ifarchive/indexadmin/internal/cli"
	"github.com/ifarchive/indexadmin/internal/index"
)

func showCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show [dir]",
		Short: "Show the parsed Index of a directory",
		Long: `Parse a directory's Index file and print its metadata and entries.

The directory is relative to the archive root; omit it for the root.

Examples:
  indexadmin show games/zcode
  indexadmin show games/zcode --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(argOr(args, "."), jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runShow(dirname string, jsonOut bool) error {
	_, arch, err := loadArchive()
	if err != nil {
		return err
	}
	d, err := arch.Load(dirname)
	if err != nil {
		return dirError(dirname, err)
	}

	if jsonOut {
		data, _ := json.MarshalIndent(d, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	cli.Header(displayDir(d.Dirname))
	if !d.HasData() {
		fmt.Printf("\n  %sNo Index file.%s\n", cli.Dim, cli.Reset)
		return nil
	}
	if len(d.Metadata) > 0 || d.Description != "" {
		cli.Section("(directory)")
		printEntry(d.Metadata, d.Description)
	}
	for _, f := range d.Files {
		cli.Section(f.Filename)
		printEntry(f.Metadata, f.Description)
	}
	fmt.Println()
	return nil
}

func printEntry(md index.Metadata, desc string) {
	for _, p := range md {
		cli.KeyValue(p.Key+":", p.Value)
	}
	desc = strings.Trim(desc, "\n")
	if desc == "" {
		return
	}
	if len(md) > 0 {
		fmt.Println()
	}
	for _, line := range strings.Split(desc, "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func textCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "text [dir]",
		Short: "Print a directory's Index as it would be written",
		Long: `Parse a directory's Index file and print the canonical text the writer
would produce for it. Prints nothing when the Index has no data.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, arch, err := loadArchive()
			if err != nil {
				return err
			}
			dirname := argOr(args, ".")
			d, err := arch.Load(dirname)
			if err != nil {
				return dirError(dirname, err)
			}
			_, err = d.WriteTo(os.Stdout)
			return err
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a metadata block",
		Long: `Check that a block of text is valid metadata: every non-blank line is
"key: value" or a continuation indented by four spaces or a tab. Reads stdin
when no file (or "-") is given. Prints the parsed pairs as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(argOr(args, "-"))
			if err != nil {
				return err
			}
			return runValidate(text)
		},
	}
}

func runValidate(text string) error {
	md, err := index.ValidateMetadataBlock(text)
	if err != nil {
		return metadataError(err)
	}
	if md == nil {
		md = index.Metadata{}
	}
	data, _ := json.MarshalIndent(md, "", "  ")
	fmt.Println(string(data))
	return nil
}

func setCmd() *cobra.Command {
	var (
		desc     string
		descFile string
		metaFile string
		metas    []string
	)
	cmd := &cobra.Command{
		Use:   "set <dir> <filename>",
		Short: "Replace the metadata and description of an entry",
		Long: `Replace one entry of a directory's Index. The entry's metadata and
description are replaced wholesale; other entries are untouched. A filename
of "." edits the directory's own metadata and description.

The previous Index is copied to the trash first. An Index left with no data
is deleted. A description line starting with a single "#" is refused, since
it would read back as a new entry.

Examples:
  indexadmin set games/zcode curses.z5 --description "A text adventure." --meta ifid=ZCODE-1-2-3
  indexadmin set games/zcode curses.z5 --metadata-file meta.txt --description-file desc.txt
  indexadmin set games/zcode . --description "Z-machine games."`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if descFile != "" {
				text, err := readInput(descFile)
				if err != nil {
					return err
				}
				desc = text
			}
			metaText, err := buildMetadata(metaFile, metas)
			if err != nil {
				return err
			}
			return runSet(args[0], args[1], desc, metaText)
		},
	}
	cmd.Flags().StringVarP(&desc, "description", "d", "", "Description text")
	cmd.Flags().StringVar(&descFile, "description-file", "", "Read the description from a file (- for stdin)")
	cmd.Flags().StringVar(&metaFile, "metadata-file", "", "Read the metadata block from a file (- for stdin)")
	cmd.Flags().StringArrayVarP(&metas, "meta", "m", nil, "Metadata pair as key=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("description", "description-file")
	return cmd
}

// buildMetadata joins a metadata file and key=value flags into one block.
func buildMetadata(metaFile string, metas []string) (string, error) {
	var b strings.Builder
	if metaFile != "" {
		text, err := readInput(metaFile)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		if text != "" && !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
	}
	for _, m := range metas {
		key, value, ok := strings.Cut(m, "=")
		if !ok {
			return "", userError(fmt.Sprintf("--meta %q is not key=value", m),
				"Write metadata pairs like --meta ifid=ZCODE-1-2-3")
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return b.String(), nil
}

func runSet(dirname, filename, desc, metaText string) error {
	cfg, arch, err := loadArchive()
	if err != nil {
		return err
	}
	res, err := arch.SaveEntry(dirname, filename, normalizeNewlines(desc), normalizeNewlines(metaText))
	if err != nil {
		return saveError(dirname, filename, err)
	}
	recordSave(cfg, arch, res, "cli")
	printSaved(res)
	return nil
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir> <filename> <note.md>",
		Short: "Set an entry from a markdown note with YAML frontmatter",
		Long: `Replace an entry using a markdown note. Frontmatter keys become metadata
pairs in sorted key order; a list value becomes one pair per item. The note
body becomes the description; "# Heading" lines are demoted to "## Heading"
so they cannot start a new entry.

Example:
  indexadmin import games/zcode curses.z5 curses.md`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, arch, err := loadArchive()
			if err != nil {
				return err
			}
			res, err := arch.ImportNote(args[0], args[1], args[2])
			if err != nil {
				return saveError(args[0], args[1], err)
			}
			recordSave(cfg, arch, res, "import")
			printSaved(res)
			return nil
		},
	}
}

func printSaved(res *archive.SaveResult) {
	target := displayDir(res.Dirname)
	if res.Filename != index.DirSentinel {
		target = joinEntry(res.Dirname, res.Filename)
	}
	if res.Deleted {
		fmt.Printf("  %s✓%s Saved %s (Index now empty, removed)\n", cli.Green, cli.Reset, target)
	} else {
		fmt.Printf("  %s✓%s Saved %s\n", cli.Green, cli.Reset, target)
	}
	if res.Backup != "" {
		fmt.Printf("    %sPrevious Index kept as %s%s\n", cli.Dim, res.Backup, cli.Reset)
	}
}

// saveError maps SaveEntry failures to user-facing errors.
func saveError(dirname, filename string, err error) error {
	var verr *index.ValidationError
	switch {
	case errors.As(err, &verr):
		return metadataError(err)
	case errors.Is(err, archive.ErrBadFilename):
		return userError(fmt.Sprintf("Bad filename %q", filename),
			`Use a plain file name; "." edits the directory itself`)
	case errors.Is(err, archive.ErrBadDirname):
		return dirError(dirname, err)
	case errors.Is(err, archive.ErrBadDescription):
		return userError(fmt.Sprintf("Description not saved: %v", err),
			`A line starting with a single "#" begins a new entry; write "##" or indent it`)
	}
	return err
}

func metadataError(err error) error {
	var verr *index.ValidationError
	if errors.As(err, &verr) {
		return userError(fmt.Sprintf("Line %d is not valid metadata: %q", verr.LineNo, verr.Line),
			"Metadata lines look like 'key: value'; continuation lines start with four spaces or a tab")
	}
	return err
}

// readInput reads a whole file, or stdin for "-".
func readInput(name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func argOr(args []string, def string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return def
}

func displayDir(dirname string) string {
	if dirname == "" || dirname == "." {
		return "(archive root)"
	}
	return dirname + "/"
}

func joinEntry(dirname, filename string) string {
	if dirname == "" || dirname == "." {
		return filename
	}
	return dirname + "/" + filename
}
