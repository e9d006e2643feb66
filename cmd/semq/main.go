package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"semq/internal/analysis"
	"semq/internal/config"
	"semq/internal/crawler"
	"semq/internal/extractor"
	"semq/internal/logging"
	"semq/internal/names"
	"semq/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// app carries the state shared by every command.
type app struct {
	configPath string
	dbPath     string
	jsonLog    bool

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "semq",
		Short:         "Smart-cast and value type analysis for Go packages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.dbPath, "db", "d", "", "Path to the report database (SQLite)")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Path to the config file")
	root.PersistentFlags().BoolVar(&a.jsonLog, "json-log", false, "Write logs as JSON")

	root.AddCommand(a.scanCmd())
	root.AddCommand(a.smartcastCmd())
	root.AddCommand(a.reprCmd())
	root.AddCommand(a.namesCmd())
	root.AddCommand(a.reportCmd())
	return root
}

// init loads the configuration and applies flag overrides.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if cmd.Flags().Changed("db") {
		cfg.Storage.Path = a.dbPath
	}
	if cmd.Flags().Changed("json-log") {
		cfg.Log.JSON = a.jsonLog
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) newCrawler() (*crawler.Crawler, error) {
	ext, err := extractor.NewExtractor("go")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create extractor")
	}
	return crawler.NewCrawler(ext, a.log), nil
}

func (a *app) openStore() (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(a.cfg.Storage.Path)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "failed to initialize database"),
			"set --db, SEMQ_DB or storage.path to a writable location")
	}
	return store, nil
}

// restoreNames replays the stored names so the allocator continues where the last run stopped.
func (a *app) restoreNames(ctx context.Context, store storage.NameStore) (*names.Allocator, error) {
	alloc := names.New(a.cfg.Names.Minimize)
	stored, err := store.LoadNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range stored {
		if got := alloc.NameBySignature(n.Signature); got != n.Name {
			return nil, errors.WithHint(
				errors.Newf("stored name %q of %s replays as %q", n.Name, n.Signature, got),
				"the names table was edited; remove the database to reallocate")
		}
	}
	return alloc, nil
}

// units lists the packages under path as analysis units.
func (a *app) units(path string) ([]analysis.Unit, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cr, err := a.newCrawler()
	if err != nil {
		return nil, err
	}
	pkgs, err := cr.Packages(root)
	if err != nil {
		return nil, err
	}
	units := make([]analysis.Unit, 0, len(pkgs))
	for _, p := range pkgs {
		units = append(units, analysis.Unit{Dir: p.Dir, Package: p.Name, Files: p.Files})
	}
	return units, nil
}

func pathArg(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}
