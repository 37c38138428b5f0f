// Command tgsift indexes chat history exports and searches them offline.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/renderinc/tgsift/internal/config"
	"github.com/renderinc/tgsift/internal/indexer"
	"github.com/renderinc/tgsift/internal/logging"
	"github.com/renderinc/tgsift/internal/metrics"
	"github.com/renderinc/tgsift/internal/query"
	"github.com/renderinc/tgsift/internal/search"
	"github.com/renderinc/tgsift/internal/tokenizer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by subcommands once flags are parsed
type app struct {
	configPath string
	dataDir    string
	logLevel   string
	logFormat  string

	cfg     *config.Config
	metrics *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tgsift",
		Short: "Offline full-text search for chat history exports",
		Long: `tgsift indexes an exported chat history (a folder of messages*.html pages)
and searches it offline. Queries accept free text plus inline directives:

  from:<name>   only messages whose sender matches
  has:link      only messages containing a hyperlink

For example: tgsift search ~/exports/chat 'from:alice has:link deploy'`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Shutdown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default <data-dir>/config.toml)")
	flags.StringVar(&a.dataDir, "data-dir", "", "directory for indexes and logs (default ~/.tgsift)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newIndexCmd(a),
		newSearchCmd(a),
		newContextCmd(a),
		newLocateCmd(a),
		newBoundsCmd(a),
		newSendersCmd(a),
		newStatsCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Stderr: cmd.ErrOrStderr(),
	}
	if cfg.Log.File {
		logCfg.Dir = cfg.LogDir()
	}
	logging.Setup(logCfg)

	a.cfg = cfg
	a.metrics = metrics.New()
	return nil
}

func (a *app) location(exportDir string) (string, error) {
	return indexer.Location(a.cfg.DataDir, exportDir)
}

// openIndex opens the committed index of exportDir
func (a *app) openIndex(exportDir string) (*search.Index, error) {
	location, err := a.location(exportDir)
	if err != nil {
		return nil, err
	}
	idx, err := search.Open(location)
	switch {
	case errors.Is(err, search.ErrNotBuilt):
		return nil, fmt.Errorf("%s is not indexed yet, run: tgsift index %s", exportDir, exportDir)
	case errors.Is(err, search.ErrCorrupt):
		return nil, fmt.Errorf("index of %s is unusable (%w), rebuild it with: tgsift index --force %s", exportDir, err, exportDir)
	case err != nil:
		return nil, err
	}
	return idx, nil
}

func (a *app) compiler() (*query.Compiler, error) {
	tok, err := tokenizer.Default()
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return query.NewCompiler(tok), nil
}

func (a *app) searchOptions() search.Options {
	return search.Options{Limit: a.cfg.Search.Limit, Fragments: a.cfg.Search.Fragments}
}
