package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/entrhq/pagewalker/pkg/browser"
	"github.com/entrhq/pagewalker/pkg/config"
	"github.com/entrhq/pagewalker/pkg/loginstate"
	"github.com/entrhq/pagewalker/pkg/logging"
	"github.com/entrhq/pagewalker/pkg/ocr"
)

const envPrefix = "PAGEWALKER"

// app carries what the root command resolves before a subcommand runs.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	return newApp().command()
}

func newApp() *app {
	return &app{v: viper.New()}
}

// command builds the command tree bound to a.
func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagewalker",
		Short:         "Drive a browser session over HTTP and extract tables from the pages it reaches",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initialize(cmd)
		},
	}

	defaults := config.DefaultConfig()
	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "path to a YAML config file")
	flags.String(config.KeyAddress, "", "HTTP listen address (e.g. :8000)")
	flags.Bool(config.KeyHeadless, defaults.Browser.Headless, "run the browser without a window")
	flags.String(config.KeyAuth, "", "authentication strategy: none, ocr or deferred")
	flags.String(config.KeyLoginState, "", "file holding the persisted login state")
	flags.String(config.KeyLogLevel, "", "log level: debug, info, warn or error")
	flags.String(config.KeyLogDir, "", "directory for rotated log files")
	flags.Bool(config.KeyKeepOpen, false, "keep the session open after a table is extracted")

	root.AddCommand(newServeCmd(a), newWalkCmd(a), newVersionCmd())
	return root
}

// initialize loads the config file, applies flag and environment overrides
// and configures logging.
func (a *app) initialize(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	path := a.cfgFile
	if path == "" {
		path = a.v.GetString("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(a.v)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Configure(logging.Options{
		Dir:     cfg.Logging.Dir,
		Level:   cfg.Logging.Level,
		Console: true,
	})
	a.cfg = cfg
	return nil
}

// newManager wires the login state store, the recognizer and the gate into a
// browser manager.
func (a *app) newManager(logger *logging.Logger, opts ...browser.Option) (*browser.Manager, error) {
	cfg := a.cfg

	var store browser.StateStore
	if cfg.Session.LoginStatePath != "" {
		fs := loginstate.NewFileStore(cfg.Session.LoginStatePath)
		if err := checkLoginState(fs, logger); err != nil {
			return nil, err
		}
		store = fs
	}

	var recognizer ocr.Recognizer
	if cfg.Auth.Strategy == config.AuthStrategyOCR {
		r, err := ocr.New(cfg.Auth.OCR.Command, cfg.Auth.OCR.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to set up captcha recognizer: %w", err)
		}
		recognizer = r
	}

	gate, err := browser.NewGate(cfg.Auth, recognizer, store, logger)
	if err != nil {
		return nil, err
	}

	opts = append([]browser.Option{browser.WithLogger(logger)}, opts...)
	return browser.NewManager(cfg, gate, store, opts...), nil
}

// checkLoginState discards a persisted login state the browser could not
// load, so the next session starts unauthenticated instead of failing.
func checkLoginState(fs *loginstate.FileStore, logger *logging.Logger) error {
	if _, err := fs.Load(); err != nil {
		logger.Warnf("discarding login state at %s: %v", fs.Path(), err)
		if err := fs.Clear(); err != nil {
			return fmt.Errorf("failed to discard login state: %w", err)
		}
	}
	return nil
}

func componentLogger(name string) *logging.Logger {
	logger, err := logging.NewLogger(name)
	if err != nil {
		// NewLogger still returns a stderr logger in fallback mode.
		logger.Warnf("file logging unavailable: %v", err)
	}
	return logger
}
