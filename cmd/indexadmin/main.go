// Package main is the entrypoint for the indexadmin CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/ifarchive/indexadmin/internal/archive"
	"github.com/ifarchive/indexadmin/internal/catalog"
	"github.com/ifarchive/indexadmin/internal/config"
	"github.com/ifarchive/indexadmin/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

var verbose bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "indexadmin",
		Short: "Read, edit, and catalog archive Index files",
		Long: `indexadmin manages the per-directory Index files of a file archive.

Each Index file documents the files in its directory: a metadata block and
description for the directory itself, then a "# filename" section per file.
Edits keep a copy of the replaced Index in the trash directory.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	root.AddCommand(versionCmd())
	root.AddCommand(showCmd())
	root.AddCommand(textCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(setCmd())
	root.AddCommand(importCmd())
	root.AddCommand(findCmd())
	root.AddCommand(catalogCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(trashCmd())
	root.AddCommand(configCmd())

	root.PersistentFlags().StringVar(&config.ConfigOverride, "config", "", "Config file (default: .indexadmin/config.toml under the archive)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the indexadmin version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("indexadmin %s\n", Version)
			return nil
		},
	}
}

// setupLogging installs the default hclog logger. One-shot commands only
// report warnings; long-running ones call raiseLogLevel.
func setupLogging() {
	level := hclog.Warn
	if verbose {
		level = hclog.Debug
	}
	hclog.SetDefault(hclog.New(&hclog.LoggerOptions{
		Name:   "indexadmin",
		Level:  level,
		Output: os.Stderr,
	}))
	catalog.Version = Version
}

// raiseLogLevel lets long-running commands report routine activity.
func raiseLogLevel() {
	if !verbose {
		hclog.L().SetLevel(hclog.Info)
	}
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadArchive loads and validates the configuration and returns the archive
// it describes.
func loadArchive() (*config.Config, *archive.Archive, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, userError(err.Error(),
			"Fix the config file, or run 'indexadmin config path' to see which one is loaded")
	}
	if err := config.Validate(cfg); err != nil {
		if errors.Is(err, config.ErrNoArchive) {
			return nil, nil, userError("No archive configured",
				"Set ARCHIVE_DIR, or run 'indexadmin config init <root>'")
		}
		return nil, nil, userError(fmt.Sprintf("Invalid configuration: %v", err),
			"Run 'indexadmin config show' to see the merged settings")
	}
	info, err := os.Stat(cfg.Archive.Root)
	if err != nil || !info.IsDir() {
		return nil, nil, userError(fmt.Sprintf("Archive root %s is not a directory", cfg.Archive.Root),
			"Check ARCHIVE_DIR or [archive] root")
	}
	return cfg, archive.New(cfg), nil
}

// openCatalog opens the catalog database named by cfg.
func openCatalog(cfg *config.Config) (*store.DB, error) {
	db, err := store.OpenPath(cfg.Store.DBPath)
	if err != nil {
		return nil, userError(fmt.Sprintf("Cannot open catalog database: %v", err),
			"Check [store] db_path or INDEXADMIN_DB")
	}
	return db, nil
}

// recordSave brings the catalog up to date after a save and logs the edit.
// The Index file is already written, so failures here are only warnings.
func recordSave(cfg *config.Config, arch *archive.Archive, res *archive.SaveResult, source string) {
	db, err := store.OpenPath(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "indexadmin: WARNING: catalog not updated: %v\n", err)
		return
	}
	defer db.Close()

	if err := catalog.IndexDir(db, arch, res.Dirname); err != nil {
		fmt.Fprintf(os.Stderr, "indexadmin: WARNING: catalog not updated: %v\n", err)
	}
	if err := db.RecordEdit(&store.EditRecord{
		Dirname:  res.Dirname,
		Filename: res.Filename,
		Source:   source,
		Backup:   res.Backup,
		Deleted:  res.Deleted,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "indexadmin: WARNING: edit not logged: %v\n", err)
	}
}

// ---------- error helpers ----------

type indexadminError struct {
	message string
	hint    string
}

func (e *indexadminError) Error() string {
	return fmt.Sprintf("%s\n  Hint: %s", e.message, e.hint)
}

func userError(message, hint string) error {
	return &indexadminError{message: message, hint: hint}
}

// dirError turns archive lookup failures into user-facing errors.
func dirError(dirname string, err error) error {
	if errors.Is(err, archive.ErrBadDirname) {
		return userError(fmt.Sprintf("Bad directory name %q", dirname),
			"Use a path relative to the archive root, like games/zcode")
	}
	return err
}
