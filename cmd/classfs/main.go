package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/shapedtime/classfs/internal/api"
	"github.com/shapedtime/classfs/internal/config"
	"github.com/shapedtime/classfs/internal/decompiler/jvm"
	"github.com/shapedtime/classfs/internal/export"
	"github.com/shapedtime/classfs/internal/fuse"
	dlog "github.com/shapedtime/classfs/internal/log"
	"github.com/shapedtime/classfs/internal/metrics"
	"github.com/shapedtime/classfs/internal/mount"
	"github.com/shapedtime/classfs/internal/store"
	"github.com/shapedtime/classfs/internal/vfs"
	"github.com/shapedtime/classfs/internal/watch"
	"github.com/shapedtime/classfs/internal/webdav"
)

const (
	configFlag     = "config"
	fuseAllowOther = "fuse-allow-other"
	extFlag        = "ext"
	workersFlag    = "workers"
)

func main() {
	app := &cli.App{
		Name:  "classfs",
		Usage: "Browse compiled Java archives as a read-only tree of decompiled sources.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Value:   "./classfs-data/config.yaml",
				EnvVars: []string{"CLASSFS_CONFIG"},
				Usage:   "YAML file containing classfs configuration.",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the configured archives over WebDAV, HTTP and optionally FUSE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    fuseAllowOther,
						Value:   false,
						EnvVars: []string{"CLASSFS_FUSE_ALLOW_OTHER"},
						Usage:   "Allow other users to access the FUSE mountpoint.",
					},
				},
				Action: serve,
			},
			{
				Name:      "ls",
				Usage:     "list a directory of an archive",
				ArgsUsage: "<archive>!/<path>",
				Action:    ls,
			},
			{
				Name:      "cat",
				Usage:     "print the decompiled source of a class",
				ArgsUsage: "<archive>!/<path>",
				Action:    cat,
			},
			{
				Name:      "export",
				Usage:     "decompile every class of an archive into a directory",
				ArgsUsage: "<archive> <directory>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  extFlag,
						Value: export.DefaultExt,
						Usage: "Extension of the written source files.",
					},
					&cli.IntFlag{
						Name:  workersFlag,
						Value: 4,
						Usage: "Number of classes decompiled in parallel.",
					},
				},
				Action: exportArchive,
			},
		},
		HideHelpCommand: true,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("problem running application")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(configFlag))
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	dlog.Load(&cfg.Log)
	return cfg, nil
}

func newDecompiler(cfg *config.Config) *jvm.Decompiler {
	return jvm.New(jvm.Format{
		Indent:      cfg.Decompiler.Indent,
		Header:      cfg.Decompiler.Header,
		SortMembers: cfg.Decompiler.SortMembers,
	})
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("error creating directories: %w", err)
	}

	var opts []vfs.Option

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	opts = append(opts, vfs.WithMetrics(m))

	if cfg.Cache.Path != "" {
		db, err := store.NewDB(cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("error opening source store: %w", err)
		}
		defer db.Close()
		opts = append(opts, vfs.WithContentStore(db))
	}

	if cfg.Watch.Enabled {
		w, err := watch.New()
		if err != nil {
			return fmt.Errorf("error starting archive watcher: %w", err)
		}
		defer w.Close()
		opts = append(opts, vfs.WithNotifier(w))
	}

	fsys := vfs.New(vfs.LocalSource{}, newDecompiler(cfg), opts...)

	archives := make([]mount.Archive, 0, len(cfg.Archives))
	for _, a := range cfg.Archives {
		archives = append(archives, mount.Archive{Name: a.Name, Locator: a.Path})
	}
	table, err := mount.NewTable(archives)
	if err != nil {
		return err
	}
	mfs := mount.NewFS(table, fsys)
	m.SetMounts(table.Names())
	if len(archives) == 0 {
		log.Warn().Msg("no archives configured")
	}

	webdav.CheckAuth(cfg.WebDAV, table)
	davServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebDAV.Port),
		Handler: webdav.Authenticate(webdav.NewServer(mfs).Handler(), cfg.WebDAV, table),
	}
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: api.NewServer(mfs).Handler(),
	}

	go func() {
		log.Info().Int("port", cfg.WebDAV.Port).Msg("starting WebDAV server")
		if err := davServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("WebDAV server error")
		}
	}()

	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Msg("starting HTTP API server")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP API server error")
		}
	}()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, reg)
		go func() {
			_ = metricsServer.Start()
		}()
	}

	fuseHandler := fuse.NewHandler(c.Bool(fuseAllowOther), cfg.Fuse.Path)
	if cfg.Fuse.Enabled {
		switch err := fuseHandler.Mount(mfs); {
		case errors.Is(err, fuse.ErrUnavailable):
			log.Warn().Err(err).Strs("archives", table.Names()).Msg("FUSE mount skipped, archives are served over WebDAV only")
		case err != nil:
			log.Error().Err(err).Msg("error mounting filesystem")
		}
	}

	log.Info().
		Str("api_url", fmt.Sprintf("http://localhost:%d/api", cfg.HTTP.Port)).
		Str("webdav_url", fmt.Sprintf("http://localhost:%d", cfg.WebDAV.Port)).
		Int("archives", len(archives)).
		Msg("classfs is ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("closing servers")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fuseHandler.Unmount()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP API server shutdown error")
	}
	if err := davServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("WebDAV server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	log.Info().Msg("classfs stopped")
	return nil
}

func localFS(c *cli.Context) (*vfs.FileSystem, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return vfs.New(vfs.LocalSource{}, newDecompiler(cfg)), nil
}

func ls(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	fsys, err := localFS(c)
	if err != nil {
		return err
	}

	n, err := fsys.ResolvePath(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	children, err := fsys.List(c.Context, n)
	if err != nil {
		return err
	}
	for _, child := range children {
		name := child.Name()
		if child.IsDir() {
			name += "/"
		}
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func cat(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	fsys, err := localFS(c)
	if err != nil {
		return err
	}

	data, err := fsys.ReadFile(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func exportArchive(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	fsys, err := localFS(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := export.Archive(ctx, fsys, c.Args().Get(0), c.Args().Get(1), export.Options{
		Ext:     c.String(extFlag),
		Workers: c.Int(workersFlag),
	})
	if err != nil {
		return err
	}
	log.Info().Int("written", res.Written).Int("failed", res.Failed).Msg("export finished")
	return nil
}
