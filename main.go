// repoctx keeps an incremental symbol and call-graph index of a repository
// and prints it in TOON or JSON format.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/phobologic/repoctx/internal/config"
	"github.com/phobologic/repoctx/internal/index"
	"github.com/phobologic/repoctx/internal/model"
	"github.com/phobologic/repoctx/internal/toon"
	"github.com/phobologic/repoctx/internal/watch"
)

var version = "dev"

const agentHeader = `# Repository Context

Symbols are top-level functions and classes/types. Calls are resolved by name:
a call matching any symbol in the repository is listed in calls, everything
else is external. Line spans are 1-based and inclusive.
`

var errNoFiles = errors.New("no parseable files found")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := runContext(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	return runContext(context.Background(), args, stdout, stderr)
}

func runContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// indexFlags are shared by the root and watch commands.
type indexFlags struct {
	configPath  string
	store       string
	hash        string
	langs       string
	maxFileSize int64
	workers     int
	verbose     bool
}

func (f *indexFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "config file (default: .repoctx.toml or .repoctx.yaml in the repository)")
	fl.StringVar(&f.store, "store", "", "index store: json|bolt|sqlite")
	fl.StringVar(&f.hash, "hash", "", "fingerprint hash: sha256|xxh3")
	fl.StringVarP(&f.langs, "langs", "l", "", "comma-separated languages to include")
	fl.Int64Var(&f.maxFileSize, "max-file-size", 0, "skip files larger than this many bytes (default 1000000)")
	fl.IntVar(&f.workers, "workers", 0, "parallel workers (default: number of CPUs)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log debug output to stderr")
}

// setup resolves the repository root and the effective configuration.
// Precedence is defaults, config file, environment, then flags.
func (f *indexFlags) setup(cmd *cobra.Command, args []string, stderr io.Writer) (string, config.Config, *slog.Logger, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return "", config.Config{}, nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", config.Config{}, nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", config.Config{}, nil, fmt.Errorf("%s: not a directory", root)
	}

	cfg, err := config.Load(root, f.configPath)
	if err != nil {
		return "", config.Config{}, nil, err
	}
	fl := cmd.Flags()
	if fl.Changed("store") {
		cfg.Store = f.store
	}
	if fl.Changed("hash") {
		cfg.Hash = f.hash
	}
	if fl.Changed("langs") {
		cfg.Languages = nil
		for _, name := range strings.Split(f.langs, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Languages = append(cfg.Languages, name)
			}
		}
	}
	if fl.Changed("max-file-size") {
		cfg.MaxFileSize = f.maxFileSize
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return "", config.Config{}, nil, err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return root, cfg, logger, nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		flags       indexFlags
		format      string
		force       bool
		raw         bool
		external    bool
		showVersion bool
	)

	cmd := &cobra.Command{
		Use:   "repoctx [path]",
		Short: "Incremental symbol and call-graph index of a repository",
		Long: `repoctx indexes the top-level functions and classes of a repository with
tree-sitter, resolves which calls stay inside the repository and prints the
result. The index is kept under .context/ and only files whose content changed
are parsed again on later runs.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if showVersion {
				_, _ = fmt.Fprintf(stdout, "repoctx %s\n", version)
				return nil
			}
			if format != "toon" && format != "json" {
				return fmt.Errorf("unknown format %q (want toon or json)", format)
			}

			root, cfg, logger, err := flags.setup(cmd, args, stderr)
			if err != nil {
				return err
			}

			start := time.Now()
			ix, err := index.Open(root, index.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer closeStore(ix, &err)

			idx, res, err := ix.Run(cmd.Context(), force)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stderr, summary(res, idx, time.Since(start)))
			if len(idx.Files) == 0 {
				return errNoFiles
			}

			return writeIndex(stdout, filepath.Base(root), idx, format, raw, external)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "toon", "output format: toon|json")
	cmd.Flags().BoolVar(&force, "force", false, "ignore the stored index and rebuild from scratch")
	cmd.Flags().BoolVar(&raw, "raw", false, "omit the explanatory header from TOON output")
	cmd.Flags().BoolVar(&external, "external", false, "add a table of unresolved calls to TOON output")
	cmd.Flags().BoolVarP(&showVersion, "version", "V", false, "show version and exit")

	cmd.AddCommand(newWatchCmd(stderr))
	cmd.AddCommand(newInitCmd(stdout, stderr))
	return cmd
}

// closeStore closes c and reports its error through err unless err is
// already set.
func closeStore(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("closing store: %w", cerr)
	}
}

func writeIndex(w io.Writer, repo string, idx *model.Index, format string, raw, external bool) error {
	if format == "json" {
		data, err := json.MarshalIndent(idx, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding index: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if !raw {
		_, _ = fmt.Fprintln(w, agentHeader)
	}
	_, err := fmt.Fprintln(w, toon.Encode(repo, idx, toon.Options{External: external}))
	return err
}

// summary renders one run for humans, e.g.
// "sync: 2 changed, 0 removed; 41 files, 1.2 MB, 30,112 lines, 512 symbols (35ms)".
func summary(res index.Result, idx *model.Index, elapsed time.Duration) string {
	var b strings.Builder
	b.WriteString(string(res.Mode))
	switch res.Mode {
	case index.ModeBuild:
		fmt.Fprintf(&b, " (%s)", res.Reason)
	case index.ModeSync:
		fmt.Fprintf(&b, ": %d changed, %d removed", len(res.Changed), len(res.Removed))
	}
	fmt.Fprintf(&b, "; %s files, %s, %s lines, %s symbols (%s)",
		humanize.Comma(int64(idx.Stats.FileCount)),
		humanize.Bytes(uint64(idx.Stats.TotalBytes)),
		humanize.Comma(int64(idx.Stats.TotalLines)),
		humanize.Comma(int64(len(idx.Symbols))),
		elapsed.Round(time.Millisecond))
	return b.String()
}

func newWatchCmd(stderr io.Writer) *cobra.Command {
	var (
		flags    indexFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index up to date as files change",
		Long: `watch runs an initial sync and then syncs again after every burst of file
changes until interrupted. Runs never overlap.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			root, cfg, logger, err := flags.setup(cmd, args, stderr)
			if err != nil {
				return err
			}

			ix, err := index.Open(root, index.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer closeStore(ix, &err)

			resync := func(ctx context.Context) error {
				start := time.Now()
				idx, res, err := ix.Run(ctx, false)
				if err != nil {
					return err
				}
				if res.Mode != index.ModeUnchanged {
					_, _ = fmt.Fprintln(stderr, summary(res, idx, time.Since(start)))
				}
				return nil
			}
			if err := resync(cmd.Context()); err != nil {
				return err
			}

			w, err := watch.New(root, cfg.ExtraIgnore, debounce, logger)
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			defer w.Close()

			_, _ = fmt.Fprintf(stderr, "watching %s\n", root)
			err = w.Run(cmd.Context(), func(ctx context.Context, paths []string) error {
				logger.Debug("watch.changed", "paths", paths)
				return resync(ctx)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before re-indexing")
	return cmd
}
