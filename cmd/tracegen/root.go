package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/internal/config"
	"github.com/cgast/tracegen/internal/logger"
	"github.com/cgast/tracegen/internal/sandbox"
	tgctx "github.com/cgast/tracegen/pkg/context"
	"github.com/cgast/tracegen/pkg/events"
	"github.com/cgast/tracegen/pkg/export"
)

const rootLongDesc = `tracegen turns generated test cases into durable, traceable artifacts.

It keeps a versioned record of every requirement context, links test cases
back to requirement statements, and exports them as JSON, Gherkin, XML or
Word documents.

Examples:
  tracegen context create --text "Patients must search by ID." --domain healthcare
  tracegen matrix --requirement req.md --cases batch.json
  tracegen gaps --analysis gaps.json --cases batch.json --format markdown
  tracegen export --cases batch.json --format xml --out cases.xml
  tracegen batch release.yaml --param release=2.0
  tracegen serve --addr :8080`

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tracegen",
		Short:         "Requirement traceability and test case export",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		filepath.Join(config.Dir, "config.yaml"), "Path to the runtime config file")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		newContextCmd(opts),
		newMatrixCmd(opts),
		newGapsCmd(opts),
		newExportCmd(opts),
		newFormatsCmd(),
		newPublishCmd(opts),
		newRunCmd(opts),
		newBatchCmd(opts),
		newServeCmd(opts),
		newRPCCmd(opts),
	)
	return cmd
}

// app holds the components a command runs against.
type app struct {
	cfg      config.Config
	platform config.PlatformConfig
	log      *slog.Logger
	bus      *events.MemoryBus
	store    *tgctx.Store
	exporter *export.Exporter
}

// openApp loads configuration and opens the context store. The caller must
// Close the returned app.
func openApp(opts *rootOptions, errOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	platCfg, err := config.LoadPlatformConfig(filepath.Join(filepath.Dir(opts.configPath), "platforms.yaml"))
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logOpts := []logger.Option{logger.WithWriter(errOut), logger.FromFormat(cfg.LogFormat), logger.WithLevel(level)}
	if opts.debug {
		logOpts = append(logOpts, logger.WithDebug(true))
	}
	log := logger.New(logOpts...)

	sb, err := sandbox.New(cfg.SandboxPolicy())
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, err
	}
	log.Debug("context store opened", "backend", cfg.Store.Backend, "path", cfg.Store.Path)

	bus := events.NewMemoryBus(cfg.Events.HistoryLimit)
	return &app{
		cfg:      cfg,
		platform: platCfg,
		log:      log,
		bus:      bus,
		store:    tgctx.NewStore(backend, tgctx.WithEvents(bus)),
		exporter: export.New(
			export.WithSandbox(sb),
			export.WithTempDir(cfg.TempDir()),
			export.WithBaseDir(cfg.Export.Dir),
			export.WithEvents(bus),
		),
	}, nil
}

func openBackend(sc config.StoreConfig) (tgctx.Backend, error) {
	switch sc.Backend {
	case config.BackendFile:
		b, err := tgctx.NewFileBackend(sc.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		b, err := tgctx.NewBoltBackend(sc.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	a, err := openApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
