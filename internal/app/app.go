// Package app carries the shared bootstrap of the telestream binaries:
// flag parsing, configuration loading, log setup and signal handling.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctu-vras/telestream/internal"
	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/config"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	app config.App

	flags struct {
		config  string
		dump    string
		debug   bool
		help    bool
		version bool
	}

	cfg *config.Config
)

// Bootstrap parses flags, loads configuration and configures logging.
// It must run before either binary's Run function.
func Bootstrap(name string) *config.Config {
	app.Name = name
	app.Version = internal.AppVersion
	app.LongName = fmt.Sprintf("%s %s", app.Name, app.Version)
	app.InstanceId = uuid.New().String()

	flag.StringVarP(&flags.config, "config", "c", flags.config, "load configuration file")
	flag.StringVar(&flags.dump, "dump", "", "print config value (e.g. 'ntp.server')")
	flag.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	flag.BoolVarP(&flags.help, "help", "h", flags.help, "print help")
	flag.BoolVarP(&flags.version, "version", "v", flags.version, "print version")
	flag.Parse()

	if flags.help {
		fmt.Printf("%s\n\n", app.LongName)
		flag.PrintDefaults()
		os.Exit(0)
	}

	if flags.version {
		fmt.Println(app.LongName)
		os.Exit(0)
	}

	if flags.dump != "" {
		log.SetLevel(log.FatalLevel)
		cfg = initConfig()
		loadConfig()
		dumpConfig()
	}

	cfg = initConfig()
	log.Infof("starting %s PID: %d", app.Name, os.Getpid())
	loadConfig()
	configureLog()

	if cfg.Prometheus.Enable {
		appstats.RegisterMetrics()
		appstats.ServePromMetrics(cfg.Prometheus)
	}

	return cfg
}

// OnShutdown installs a SIGINT/SIGTERM handler, and a SIGHUP handler
// that reloads configuration and log settings.
func OnShutdown(shutdown func()) {
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigint
		shutdown()
	}()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Debug("reloading config...")
			loadConfig()
			configureLog()
		}
	}()
}
