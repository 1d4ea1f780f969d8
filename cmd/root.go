package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/multi"
	"github.com/spf13/cobra"

	"github.com/onyxcmd/onyxd/analyzer"
	"github.com/onyxcmd/onyxd/archive"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/internal/database"
	"github.com/onyxcmd/onyxd/loader"
	"github.com/onyxcmd/onyxd/loggers/cli"
	"github.com/onyxcmd/onyxd/optimizer"
	"github.com/onyxcmd/onyxd/registry"
	"github.com/onyxcmd/onyxd/router"
	"github.com/onyxcmd/onyxd/scheduler"
	"github.com/onyxcmd/onyxd/system"
)

var (
	configPath = config.DefaultLocation
	debug      = false
)

var rootCommand = &cobra.Command{
	Use:   "onyxd",
	Short: "Runs the module management daemon for a host site.",
	PreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
		initLogging()
		if config.Get().Debug {
			log.Debug("running in debug mode")
		}
	},
	Run: rootCmdRun,
}

func init() {
	rootCommand.PersistentFlags().StringVar(&configPath, "config", config.DefaultLocation, "set the location for the configuration file")
	rootCommand.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run in debug mode")

	rootCommand.AddCommand(versionCommand)
}

// Execute calls cobra to handle cli commands.
func Execute() {
	if err := rootCommand.Execute(); err != nil {
		log2("failed to execute command: %s", err)
		os.Exit(1)
	}
}

func rootCmdRun(cmd *cobra.Command, _ []string) {
	log.WithField("version", system.Version).Info("starting onyxd")

	if err := config.ConfigureDirectories(); err != nil {
		log.WithField("error", err).Fatal("failed to configure system directories for daemon")
		return
	}

	if err := database.Initialize(); err != nil {
		log.WithField("error", err).Fatal("failed to initialize database")
		return
	}

	cfg := config.Get()
	db := database.Instance()

	events := eventlog.New(db)
	site := host.NewSite(db, cfg.System.HostRoot)
	reg := registry.New(db)
	checker := analyzer.New(db, events, cfg.Modules.Directory)
	runner := loader.NewRunner(cfg.Modules.PhpBinary, cfg.Modules.ExecTimeout)
	ld := loader.New(reg, checker, events, runner)
	arc := archive.New(db, site, events)
	opt := optimizer.New(db, events)

	if err := arc.EnsureTree(); err != nil {
		log.WithField("error", err).Fatal("failed to create archive directory tree")
		return
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Load every active module before the API comes up. Modules that fail
	// the boot pass are demoted to inactive rather than aborting startup.
	if res, err := ld.LoadActiveModules(ctx); err != nil {
		log.WithField("error", err).Fatal("failed to run boot load pass")
		return
	} else {
		log.WithFields(log.Fields{
			"loaded":  res.Loaded,
			"demoted": res.Demoted,
			"skipped": res.Skipped,
		}).Info("completed module boot load pass")
	}

	sched, err := scheduler.New(arc, opt)
	if err != nil {
		log.WithField("error", err).Fatal("failed to configure job scheduler")
		return
	}
	sched.Start()

	s := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Api.Host, cfg.Api.Port),
		Handler: router.Configure(router.Components{
			Loader:    ld,
			Registry:  reg,
			Checker:   checker,
			Archive:   arc,
			EventLog:  events,
			Optimizer: opt,
			Site:      site,
		}),
	}

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		log.Info("received termination signal, shutting down")
		if err := sched.Stop(); err != nil {
			log.WithField("error", err).Warn("failed to stop job scheduler cleanly")
		}

		sctx, scancel := context.WithTimeout(context.Background(), time.Second*15)
		defer scancel()
		if err := s.Shutdown(sctx); err != nil {
			log.WithField("error", err).Error("failed to shut down api server gracefully")
		}
		cancel()
	}()

	log.WithField("listen", s.Addr).Info("configuring internal webserver")
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithField("error", err).Fatal("failed to configure HTTP server")
	}
}

// Reads the configuration from the disk and then sets up the global
// singleton with all the configuration values.
func initConfig() {
	if !filepath.IsAbs(configPath) {
		d, err := os.Getwd()
		if err != nil {
			log2("cmd/root: could not determine directory: %s", err)
			os.Exit(1)
		}
		configPath = filepath.Clean(filepath.Join(d, configPath))
	}
	err := config.FromFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			exitWithConfigurationNotice()
		}
		log2("cmd/root: error while reading configuration file: %s", err)
		os.Exit(1)
	}
	if debug && !config.Get().Debug {
		config.SetDebugViaFlag(debug)
	}
}

// Configures the global logger and writes the log output both to the
// terminal and to a rotatable file on disk.
func initLogging() {
	dir := config.Get().System.LogDirectory
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log2("cmd/root: failed to create log directory: %s", err)
		os.Exit(1)
	}
	p := filepath.Join(dir, "onyxd.log")
	w, err := logrotate.NewFile(p)
	if err != nil {
		log2("cmd/root: failed to create onyxd log: %s", err)
		os.Exit(1)
	}
	log.SetLevel(log.InfoLevel)
	if config.Get().Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.SetHandler(multi.New(cli.Default, cli.New(w.File, false)))
	log.WithField("path", p).Info("writing log files to disk")
}

// Prints the error message to stdout, this is used in places where the
// logger has not yet been configured.
func log2(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

func exitWithConfigurationNotice() {
	fmt.Printf(`
The configuration for this daemon could not be located. Create a
configuration file at %s containing at minimum an authentication
token, then start the daemon again.

  token: <random secret>
  system:
    host_root: /var/www/site

`, configPath)
	os.Exit(1)
}
