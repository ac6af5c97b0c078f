package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/ruminaider/euiccctl/internal/logging"
	"github.com/ruminaider/euiccctl/internal/notify"
	"github.com/ruminaider/euiccctl/internal/paths"
	"github.com/ruminaider/euiccctl/internal/slot"
	"go.uber.org/zap"
)

// isTerminal reports whether stdin is interactive.
var isTerminal = func() bool { return term.IsTerminal(os.Stdin.Fd()) }

// app is what every command needs: config, logger and the slot registry.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	reg      *slot.Registry
	closeLog func() error
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return paths.ConfigFile()
}

// loadApp reads the config and builds the registry. console, when set,
// mirrors the log there.
func loadApp(console io.Writer, opts ...slot.Option) (*app, error) {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, err
	}
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = paths.LogFile()
	}
	log, closeLog, err := logging.New(logging.Options{Level: cfg.Log.Level, File: logFile, Console: console})
	if err != nil {
		return nil, err
	}

	base := []slot.Option{
		slot.WithLogger(log),
		slot.WithNotifier(notify.New(cfg.Notify, log)),
	}
	return &app{
		cfg:      cfg,
		log:      log,
		reg:      slot.NewRegistry(cfg, append(base, opts...)...),
		closeLog: closeLog,
	}, nil
}

func (a *app) Close() {
	a.reg.Close()
	_ = a.closeLog()
}

// hintError appends the user-facing hint for controller errors.
type hintError struct {
	err  error
	hint string
}

func (e *hintError) Error() string { return fmt.Sprintf("%v (%s)", e.err, e.hint) }
func (e *hintError) Unwrap() error { return e.err }

func withHint(err error) error {
	if err == nil {
		return nil
	}
	var he *hintError
	if errors.As(err, &he) {
		return err
	}
	if h := commands.Hint(err); h != "" {
		return &hintError{err: err, hint: h}
	}
	return err
}
