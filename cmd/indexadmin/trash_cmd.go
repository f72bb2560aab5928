package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ifarchive/indexadmin/internal/archive"
	"github.com/ifarchive/indexadmin/internal/cli"
)

func trashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Inspect or clean the copies of replaced Index files",
	}

	var jsonOut bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List trash files, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrashList(jsonOut)
		},
	}
	listCmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.AddCommand(listCmd)

	var maxAgeDays int
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete trash files older than the configured age",
		Long: `Delete trash files older than [trash] max_age_days (default 14).
Meant to be run from cron. A max age of 0 keeps everything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			age := -1
			if cmd.Flags().Changed("max-age-days") {
				if maxAgeDays < 0 {
					return userError("--max-age-days must not be negative", "Use 0 to keep everything")
				}
				age = maxAgeDays
			}
			return runTrashClean(age)
		},
	}
	cleanCmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "Override [trash] max_age_days")
	cmd.AddCommand(cleanCmd)

	return cmd
}

func runTrashList(jsonOut bool) error {
	_, arch, err := loadArchive()
	if err != nil {
		return err
	}
	files, err := arch.ListTrash()
	if err != nil {
		return err
	}

	if jsonOut {
		if files == nil {
			files = []archive.TrashFile{}
		}
		data, _ := json.MarshalIndent(files, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(files) == 0 {
		fmt.Printf("  %sTrash is empty.%s\n", cli.Dim, cli.Reset)
		return nil
	}
	var total int64
	for _, f := range files {
		total += f.Size
		fmt.Printf("  %-40s %10s  %s%s%s\n", f.Name, cli.FormatBytes(f.Size), cli.Dim, cli.FormatAge(f.ModTime), cli.Reset)
	}
	fmt.Printf("\n  %s files, %s\n", cli.FormatNumber(len(files)), cli.FormatBytes(total))
	return nil
}

// runTrashClean removes old trash files. A negative maxAgeDays uses the
// configured value.
func runTrashClean(maxAgeDays int) error {
	cfg, arch, err := loadArchive()
	if err != nil {
		return err
	}
	if maxAgeDays < 0 {
		maxAgeDays = cfg.Trash.MaxAgeDays
	}
	if maxAgeDays == 0 {
		fmt.Printf("  %sTrash is kept forever (max age 0); nothing removed.%s\n", cli.Dim, cli.Reset)
		return nil
	}

	removed, err := arch.CleanTrash(time.Duration(maxAgeDays) * 24 * time.Hour)
	for _, name := range removed {
		fmt.Printf("  %s✗%s %s\n", cli.Red, cli.Reset, name)
	}
	if err != nil {
		return err
	}
	fmt.Printf("  Removed %s trash files older than %d days\n", cli.FormatNumber(len(removed)), maxAgeDays)
	return nil
}
