package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ifarchive/indexadmin/internal/catalog"
	"github.com/ifarchive/indexadmin/internal/cli"
	"github.com/ifarchive/indexadmin/internal/index"
	"github.com/ifarchive/indexadmin/internal/store"
	"github.com/ifarchive/indexadmin/internal/watcher"
)

func catalogCmd() *cobra.Command {
	var (
		force    bool
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog every Index file in the archive",
		Long: `Walk the archive and load every Index file into the catalog database.
Unchanged files are skipped unless --force is given. Directories whose Index
file is gone are dropped from the catalog. Prints run statistics as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(force, progress)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Recatalog all Index files, even unchanged ones")
	cmd.Flags().BoolVar(&progress, "progress", false, "Report progress on stderr")
	return cmd
}

func runCatalog(force, progress bool) error {
	cfg, arch, err := loadArchive()
	if err != nil {
		return err
	}
	db, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var fn catalog.ProgressFunc
	if progress {
		fn = func(current, total int, dirname string) {
			fmt.Fprintf(os.Stderr, "\r  [%d/%d] %-50s", current, total, dirname)
			if current == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	stats, err := catalog.ReindexWithProgress(db, arch, force, fn)
	if err != nil {
		return err
	}

	data, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(data))
	return nil
}

func findCmd() *cobra.Command {
	var (
		key     string
		value   string
		query   string
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Search the catalog by metadata or description",
		Long: `Search the catalog built by 'indexadmin catalog'.

Examples:
  indexadmin find --key ifid --value ZCODE-1-2-3   # exact metadata match
  indexadmin find --key tuid                       # entries with any tuid
  indexadmin find -q "text adventure"              # description or filename`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(key, value, query, limit, jsonOut)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Metadata key to match")
	cmd.Flags().StringVar(&value, "value", "", "Metadata value to match (requires --key)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Substring of a description or filename")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runFind(key, value, query string, limit int, jsonOut bool) error {
	key, query = strings.TrimSpace(key), strings.TrimSpace(query)
	if key == "" && query == "" {
		return userError("Nothing to search for",
			"Pass --key (optionally with --value) or --query")
	}
	if key == "" && value != "" {
		return userError("--value needs --key", "Example: indexadmin find --key ifid --value ZCODE-1-2-3")
	}

	cfg, _, err := loadArchive()
	if err != nil {
		return err
	}
	db, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var records []store.EntryRecord
	if key != "" {
		records, err = db.FindByMetadata(key, value, limit)
	} else {
		records, err = db.SearchDescriptions(query, limit)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOut {
		if records == nil {
			records = []store.EntryRecord{}
		}
		data, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Printf("  %sNo matching entries.%s\n", cli.Dim, cli.Reset)
		if _, ok := db.GetMeta("last_catalog_time"); !ok {
			fmt.Printf("  %sThe catalog is empty; run 'indexadmin catalog' first.%s\n", cli.Dim, cli.Reset)
		}
		return nil
	}
	for _, r := range records {
		name := joinEntry(r.Dirname, r.Filename)
		if r.Filename == index.DirSentinel {
			name = displayDir(r.Dirname)
		}
		fmt.Printf("  %s%s%s\n", cli.Bold, name, cli.Reset)
		if key != "" {
			for _, v := range r.Metadata.Values(key) {
				fmt.Printf("    %s%s: %s%s\n", cli.Dim, key, v, cli.Reset)
			}
		}
		if line := firstLine(r.Description); line != "" {
			fmt.Printf("    %s\n", line)
		}
	}
	return nil
}

func firstLine(desc string) string {
	for _, line := range strings.Split(desc, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			if len([]rune(line)) > 72 {
				line = string([]rune(line)[:69]) + "..."
			}
			return line
		}
	}
	return ""
}

func statusCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the archive, catalog, and trash at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// StatusData is the status information for JSON output.
type StatusData struct {
	Archive struct {
		Root      string `json:"root"`
		IndexName string `json:"index_name"`
	} `json:"archive"`
	Catalog map[string]interface{} `json:"catalog"`
	Trash   struct {
		Dir   string `json:"dir"`
		Files int    `json:"files"`
		Bytes int64  `json:"bytes"`
	} `json:"trash"`
	RecentEdits []store.EditRecord `json:"recent_edits"`
}

func runStatus(jsonOut bool) error {
	cfg, arch, err := loadArchive()
	if err != nil {
		return err
	}
	db, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var data StatusData
	data.Archive.Root = arch.Root
	data.Archive.IndexName = arch.IndexName
	data.Catalog = catalog.GetStats(db)
	data.Trash.Dir = arch.TrashDir
	trash, err := arch.ListTrash()
	if err != nil {
		return err
	}
	data.Trash.Files = len(trash)
	for _, f := range trash {
		data.Trash.Bytes += f.Size
	}
	data.RecentEdits, err = db.RecentEdits(5)
	if err != nil {
		return err
	}

	if jsonOut {
		if data.RecentEdits == nil {
			data.RecentEdits = []store.EditRecord{}
		}
		out, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	cli.Header("indexadmin status")

	cli.Section("Archive")
	cli.KeyValue("root", cli.ShortenHome(arch.Root))
	cli.KeyValue("index file", arch.IndexName)

	cli.Section("Catalog")
	dirs, _ := db.DirCount()
	entries, _ := db.EntryCount()
	cli.KeyValue("directories", cli.FormatNumber(dirs))
	cli.KeyValue("entries", cli.FormatNumber(entries))
	var last time.Time
	if ts, ok := db.GetMeta("last_catalog_time"); ok {
		last, _ = time.Parse(time.RFC3339, ts)
	}
	cli.KeyValue("cataloged", cli.FormatAge(last))

	cli.Section("Trash")
	cli.KeyValue("dir", cli.ShortenHome(arch.TrashDir))
	cli.KeyValue("files", fmt.Sprintf("%s (%s)", cli.FormatNumber(data.Trash.Files), cli.FormatBytes(data.Trash.Bytes)))
	if cfg.Trash.MaxAgeDays > 0 {
		cli.KeyValue("kept for", fmt.Sprintf("%d days", cfg.Trash.MaxAgeDays))
	} else {
		cli.KeyValue("kept for", "forever")
	}

	if len(data.RecentEdits) > 0 {
		cli.Section("Recent edits")
		for _, e := range data.RecentEdits {
			when := e.Timestamp
			if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
				when = cli.FormatAge(t)
			}
			name := joinEntry(e.Dirname, e.Filename)
			if e.Filename == index.DirSentinel {
				name = displayDir(e.Dirname)
			}
			fmt.Printf("  %s %s(%s, %s)%s\n", name, cli.Dim, e.Source, when, cli.Reset)
		}
	}
	fmt.Println()
	return nil
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the archive and recatalog changed Index files",
		Long: `Catalog the archive, then monitor it for Index file changes. Changed
directories are recataloged after a 2-second debounce; a removed Index drops
its directory from the catalog. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raiseLogLevel()
			cfg, arch, err := loadArchive()
			if err != nil {
				return err
			}
			db, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := catalog.Reindex(db, arch, false); err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return watcher.Watch(ctx, db, arch)
		},
	}
}
