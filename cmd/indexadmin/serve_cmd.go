package main

import (
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ifarchive/indexadmin/internal/catalog"
	mcpserver "github.com/ifarchive/indexadmin/internal/mcp"
	"github.com/ifarchive/indexadmin/internal/watcher"
	"github.com/ifarchive/indexadmin/internal/web"
)

func serveCmd() *cobra.Command {
	var (
		listen string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local JSON API for reading and editing Index files",
		Long: `Start the admin API. It only answers requests addressed to localhost,
and refuses cross-origin writes.

Examples:
  indexadmin serve                       # listen on [web] listen (127.0.0.1:8077)
  indexadmin serve --listen 127.0.0.1:9000
  indexadmin serve --watch               # also recatalog on file changes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raiseLogLevel()
			cfg, arch, err := loadArchive()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.Web.Listen
			}
			db, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signalContext()
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.Serve(ctx, listen, db, arch, Version)
			})
			if watch {
				g.Go(func() error {
					if _, err := catalog.Reindex(db, arch, false); err != nil {
						hclog.L().Error("initial catalog failed", "error", err)
					}
					return watcher.Watch(ctx, db, arch)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (overrides [web] listen)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Watch the archive and keep the catalog current")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server (stdio transport)",
		Long: `Serve the catalog to MCP clients over stdio. Tools: get_index,
find_entries, validate_metadata, catalog, catalog_stats.

Descriptions that look like prompt injection are withheld from agents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, arch, err := loadArchive()
			if err != nil {
				return err
			}
			db, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signalContext()
			defer stop()

			mcpserver.Version = Version
			return mcpserver.Serve(ctx, db, arch)
		},
	}
}
