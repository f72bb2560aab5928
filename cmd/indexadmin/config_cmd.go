package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ifarchive/indexadmin/internal/cli"
	"github.com/ifarchive/indexadmin/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage indexadmin configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			fmt.Println(config.ShowConfig(cfg))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print path to config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := config.FindConfigFile()
			if p == "" {
				fmt.Println("(no config file; using defaults and environment)")
				return nil
			}
			fmt.Println(p)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [root]",
		Short: "Write a default config file for an archive",
		Long: `Write .indexadmin/config.toml under the archive root (default: the
current directory). Refuses to overwrite an existing file without --force.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(argOr(args, "."), force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open config file in $EDITOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := config.FindConfigFile()
			if configPath == "" {
				root, err := configRoot()
				if err != nil {
					return err
				}
				fmt.Println("No config file found. Generating default...")
				if configPath, err = config.GenerateConfig(root); err != nil {
					return err
				}
			}
			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vi"
			}
			fmt.Printf("Opening %s in %s...\n", configPath, editor)
			return runEditor(editor, configPath)
		},
	})

	return cmd
}

func runConfigInit(root string, force bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return userError(fmt.Sprintf("%s is not a directory", abs), "Pass the archive root directory")
	}
	if p := config.ConfigFilePath(abs); !force {
		if _, err := os.Stat(p); err == nil {
			return userError(fmt.Sprintf("Config already exists at %s", cli.ShortenHome(p)),
				"Use --force to overwrite it, or 'indexadmin config edit'")
		}
	}
	p, err := config.GenerateConfig(abs)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("  %s✓%s Wrote %s\n", cli.Green, cli.Reset, cli.ShortenHome(p))
	return nil
}

// configRoot is the archive root from the environment, or the working directory.
func configRoot() (string, error) {
	if cfg, err := config.LoadConfig(); err == nil && cfg.Archive.Root != "" {
		return cfg.Archive.Root, nil
	}
	return os.Getwd()
}

func runEditor(editor, path string) error {
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
