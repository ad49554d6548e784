// Package cli is the edc-ogc command line: it drives a session against a
// Euro Data Cube OGC service and runs the HTTP facade.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/config"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/executor"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/httpclient"
	"github.com/eurodatacube/edc-qgis-plugin/internal/logger"
	"github.com/eurodatacube/edc-qgis-plugin/internal/session"
	"github.com/eurodatacube/edc-qgis-plugin/internal/settings"
)

// app carries what the subcommands share: the viper instance bound to the
// persistent flags and the settings file location.
type app struct {
	v        *viper.Viper
	cfgDir   string
	store    *settings.Store
	logLevel string
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "edc-ogc",
		Short: "Browse Euro Data Cube OGC services and build WMS/WCS/WFS requests",
		Long: `edc-ogc reads the capabilities of a Euro Data Cube OGC service, builds
WMS, WCS and WFS request URLs from a selection and downloads coverages.

The service base URL and download folder are remembered in
~/.edc-ogc/settings.toml; they can also be given with --url/--folder or the
EDC_SERVICE_URL/EDC_DOWNLOAD_FOLDER environment variables.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.String("url", "", "service base URL")
	pf.String("folder", "", "download folder")
	pf.StringVar(&a.cfgDir, "config-dir", "", "settings directory (default ~/.edc-ogc)")
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	_ = a.v.BindPFlag("service_url", pf.Lookup("url"))
	_ = a.v.BindPFlag("download_folder", pf.Lookup("folder"))

	a.bindEnv()

	root.AddCommand(
		a.configureCmd(),
		a.instancesCmd(),
		a.capabilitiesCmd(),
		a.statusCmd(),
		a.urlCmd(),
		a.downloadCmd(),
		a.serveCmd(),
		utmCmd(),
	)
	return root
}

func (a *app) bindEnv() {
	a.v.SetEnvPrefix("EDC")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = a.v.BindEnv("service_url")
	_ = a.v.BindEnv("download_folder")
	_ = a.v.BindEnv("proxy.enabled", "PROXY_ENABLED")
	_ = a.v.BindEnv("proxy.host", "PROXY_HOST")
	_ = a.v.BindEnv("proxy.port", "PROXY_PORT")
	_ = a.v.BindEnv("proxy.user", "PROXY_USER")
	_ = a.v.BindEnv("proxy.password", "PROXY_PASSWORD")
}

// initConfig reads the settings file, if it exists.
func (a *app) initConfig() error {
	dir := a.cfgDir
	if dir == "" {
		d, err := settings.Dir()
		if err != nil {
			return fmt.Errorf("locate settings directory: %w", err)
		}
		dir = d
	}
	a.store = settings.StoreIn(dir)

	a.v.SetConfigName("settings")
	a.v.SetConfigType("toml")
	a.v.AddConfigPath(dir)
	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read settings: %w", err)
		}
	}
	return nil
}

// Load returns the effective settings: file, then environment, then flags.
// Save writes the settings file. Together they let a session persist
// through viper.
func (a *app) Load() (settings.Settings, error) {
	var s settings.Settings
	if err := a.v.Unmarshal(&s); err != nil {
		return settings.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// Save writes only the fields s changes relative to the effective view onto
// the file contents. Values that come from the environment or flags stay
// out of the file unless they were edited.
func (a *app) Save(s settings.Settings) error {
	eff, err := a.Load()
	if err != nil {
		return err
	}
	file, err := a.store.Load()
	if err != nil {
		return err
	}
	if s.ServiceURL != eff.ServiceURL {
		file.ServiceURL = s.ServiceURL
		a.v.Set("service_url", s.ServiceURL)
	}
	if s.DownloadFolder != eff.DownloadFolder {
		file.DownloadFolder = s.DownloadFolder
		a.v.Set("download_folder", s.DownloadFolder)
	}
	if s.Proxy != eff.Proxy {
		file.Proxy = s.Proxy
	}
	return a.store.Save(file)
}

func (a *app) logger(w io.Writer) *slog.Logger {
	zl := logger.Build(logger.Config{Level: a.logLevel, Console: true, Component: "cli"}, w)
	return logger.NewSlog(&zl)
}

func (a *app) executor(log *slog.Logger) (*executor.Executor, error) {
	s, err := a.Load()
	if err != nil {
		return nil, err
	}
	return a.newExecutor(log, s.Proxy.Config()), nil
}

func (a *app) newExecutor(log *slog.Logger, proxy httpclient.ProxyConfig) *executor.Executor {
	client := httpclient.NewOutbound(config.FromEnv().HTTPTimeout, proxy)
	return executor.New(log, client, "edc-ogc/"+config.Version, proxy.Hint())
}

// openSession restores a session on the configured base URL.
func (a *app) openSession(ctx context.Context, cmd *cobra.Command) (*session.Session, error) {
	log := a.logger(cmd.ErrOrStderr())
	exec, err := a.executor(log)
	if err != nil {
		return nil, err
	}
	s, err := session.New(log, exec, a)
	if err != nil {
		return nil, err
	}
	if err := s.Restore(ctx); err != nil {
		if errors.Is(err, session.ErrMissingURL) {
			return nil, fmt.Errorf("%w: use --url or 'edc-ogc configure --url'", err)
		}
		return nil, err
	}
	return s, nil
}
