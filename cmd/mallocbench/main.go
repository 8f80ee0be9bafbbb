// Package main provides the CLI entry point for mallocbench, a driver
// that benchmarks malloc implementations by injecting them underneath
// glibc's bench-malloc-thread utility via LD_PRELOAD.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/f18m/mallocbench/alloc"
	"github.com/f18m/mallocbench/bench"
	"github.com/f18m/mallocbench/ldso"
	"github.com/f18m/mallocbench/report"
	"github.com/spf13/cobra"
)

// Exit codes beyond the usual 0/1.
const (
	exitMissing = 2  // required executable or library not on disk
	exitUnknown = 3  // implementation we have no settings for
	exitUsage   = 64 // missing or malformed arguments
)

// codedError carries a process exit code alongside the underlying error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}

	return 1
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mallocbench:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "mallocbench",
		Short: "Comparative benchmarking of malloc implementations",
		Long: `Mallocbench runs glibc's bench-malloc-thread utility at a series of
thread counts, once per malloc implementation, swapping the allocator
underneath the utility with the LD_PRELOAD trick and collecting each
implementation's results into a JSON array file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newListCmd())
	root.AddCommand(newCheckCmd(logger))

	return root
}

const runUsage = `run "<implementation> [<implementation>...]" ` +
	`<output-path-postfix> <nthreads> [<nthreads>...]`

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		util     string
		libRoots []string
	)

	cmd := &cobra.Command{
		Use:   runUsage,
		Short: "Run the benchmark for one or more implementations",
		Long: `Run the benchmark utility at every given thread count, once per
implementation. The first argument is a space-separated list of
implementation names; the second is an output path whose base name is
prefixed with each implementation's name; the remaining arguments are
thread counts.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 3 {
				return &codedError{exitUsage, fmt.Errorf(
					"usage: mallocbench %s", runUsage,
				)}
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseRunArgs(args, util, libRoots)
			if err != nil {
				return err
			}

			_, err = runBenchmarks(cmd.Context(), logger, cfg)

			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&util, "benchmark-util", bench.DefaultUtil,
		"Path to the bench-malloc-thread utility")
	flags.StringSliceVar(&libRoots, "lib-root", ldso.StandardRoots,
		"Directories searched for shared runtime libraries")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the malloc implementations this tool can test",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range alloc.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newCheckCmd(logger *slog.Logger) *cobra.Command {
	var (
		util     string
		libRoots []string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify every required executable and library is on disk",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := bench.Verify(util, libRoots, logger); err != nil {
				return &codedError{exitMissing, err}
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&util, "benchmark-util", bench.DefaultUtil,
		"Path to the bench-malloc-thread utility")
	flags.StringSliceVar(&libRoots, "lib-root", ldso.StandardRoots,
		"Directories searched for shared runtime libraries")

	return cmd
}

type runConfig struct {
	implementations []string
	outPath         string
	threads         []int
	util            string
	libRoots        []string
}

func parseRunArgs(args []string, util string, libRoots []string) (runConfig, error) {
	cfg := runConfig{
		implementations: strings.Fields(args[0]),
		outPath:         args[1],
		util:            util,
		libRoots:        libRoots,
	}

	if len(cfg.implementations) == 0 {
		return cfg, &codedError{exitUsage, errors.New(
			"no implementations requested",
		)}
	}

	for _, arg := range args[2:] {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return cfg, &codedError{exitUsage, fmt.Errorf(
				"thread count %q is not a positive integer", arg,
			)}
		}

		cfg.threads = append(cfg.threads, n)
	}

	return cfg, nil
}

// runBenchmarks drives the whole batch and returns the total number of
// successful runs across every implementation and thread count.
func runBenchmarks(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
) (int, error) {
	impls := make([]alloc.Implementation, 0, len(cfg.implementations))

	for _, name := range cfg.implementations {
		im, ok := alloc.Lookup(name)
		if !ok {
			return 0, &codedError{exitUnknown, fmt.Errorf(
				"no settings for testing implementation %q (known: %s)",
				name, strings.Join(alloc.Names(), ", "),
			)}
		}

		impls = append(impls, im)
	}

	runtimeLibs, err := bench.Verify(cfg.util, cfg.libRoots, logger)
	if err != nil {
		return 0, &codedError{exitMissing, err}
	}

	dir, postfix := filepath.Split(cfg.outPath)

	total := 0

	for _, im := range impls {
		outfile := filepath.Join(dir, im.Name+"-"+postfix)

		logger.Info("testing implementation",
			slog.String("implementation", im.Name),
			slog.String("outfile", outfile),
			slog.Int("runs", len(cfg.threads)),
		)

		n, err := runOne(ctx, logger, cfg, im, runtimeLibs, outfile)
		if err != nil {
			return total, err
		}

		total += n
	}

	if total == 0 {
		return 0, errors.New("every benchmark run failed")
	}

	logger.Info("benchmark complete", slog.Int("successful_runs", total))

	return total, nil
}

// runOne benchmarks a single implementation across every thread count,
// writing its output document, and returns how many runs succeeded. A
// failed run is logged and skipped; the batch continues.
func runOne(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
	im alloc.Implementation,
	runtimeLibs []string,
	outfile string,
) (int, error) {
	w, err := report.Create(outfile)
	if err != nil {
		return 0, err
	}

	runner := bench.NewRunner(cfg.util, im, im.PreloadList(runtimeLibs), logger)

	for _, nthreads := range cfg.threads {
		out, runErr := runner.Run(ctx, nthreads)
		if runErr != nil {
			logger.Warn("benchmark run failed, skipping",
				slog.String("implementation", im.Name),
				slog.Int("nthreads", nthreads),
				slog.String("error", runErr.Error()),
			)

			continue
		}

		if appendErr := w.Append(out); appendErr != nil {
			logger.Warn("discarding benchmark run output",
				slog.String("implementation", im.Name),
				slog.Int("nthreads", nthreads),
				slog.String("error", appendErr.Error()),
			)
		}
	}

	if err := w.Close(); err != nil {
		return 0, err
	}

	return w.Count(), nil
}
