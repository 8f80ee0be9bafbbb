// Package bench runs the external malloc benchmark utility once per
// thread count, with the allocator under test injected via LD_PRELOAD.
package bench

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/f18m/mallocbench/alloc"
	"github.com/f18m/mallocbench/ldso"
)

// DefaultUtil is the benchmarking utility from a local glibc build.
const DefaultUtil = "glibc-build/benchtests/bench-malloc-thread"

// linkerName is the dynamic linker binary used for the alternate
// invocation form.
const linkerName = "ld-linux-x86-64.so.2"

// Verify checks that every artifact needed for a benchmark batch is on
// disk before any run starts: the benchmark utility itself, each known
// implementation's preload libraries, and the shared runtime libraries,
// which are resolved across roots via ldso.Locate. It returns the
// resolved runtime library paths in alloc.RuntimeLibs order; callers
// hold on to them for the rest of the process so resolution happens
// exactly once. The first missing artifact aborts the check.
func Verify(
	util string,
	roots []string,
	logger *slog.Logger,
) ([]string, error) {
	if !isRegularFile(util) {
		return nil, fmt.Errorf("benchmarking utility %s not found", util)
	}

	logger.Info("found benchmarking utility", slog.String("path", util))

	for _, im := range alloc.Known() {
		for _, lib := range im.PreloadLibs {
			if !isRegularFile(lib) {
				return nil, fmt.Errorf(
					"preload library %s for implementation %s not found",
					lib, im.Name,
				)
			}

			logger.Info("found preload library",
				slog.String("implementation", im.Name),
				slog.String("path", lib),
			)
		}
	}

	resolved := make([]string, 0, len(alloc.RuntimeLibs))

	for _, name := range alloc.RuntimeLibs {
		path, err := ldso.Locate(name, roots)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, err)
		}
		if path == "" {
			return nil, fmt.Errorf("shared runtime library %s not found", name)
		}

		logger.Info("found runtime library",
			slog.String("name", name),
			slog.String("path", path),
		)

		resolved = append(resolved, path)
	}

	return resolved, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// Runner executes the benchmark utility for one implementation.
type Runner struct {
	util    string
	impl    alloc.Implementation
	preload string
	logger  *slog.Logger
}

// NewRunner creates a Runner. preload is the already-composed LD_PRELOAD
// value for the implementation; the empty string means nothing is
// injected.
func NewRunner(
	util string,
	impl alloc.Implementation,
	preload string,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		util:    util,
		impl:    impl,
		preload: preload,
		logger:  logger.With(slog.String("implementation", impl.Name)),
	}
}

// Run invokes the benchmark utility once with the given thread count and
// returns its captured standard output. For implementations with a
// LinkerRoot the utility is launched under that tree's dynamic linker so
// the implementation's own libc takes effect before symbol resolution.
// The preload value is installed on the child process only, never on
// this process. Runs execute strictly one at a time; Run blocks until
// the child exits.
func (r *Runner) Run(ctx context.Context, nthreads int) ([]byte, error) {
	var cmd *exec.Cmd

	if root := r.impl.LinkerRoot; root != "" {
		libDir := filepath.Join(root, "lib")
		cmd = exec.CommandContext(ctx, filepath.Join(libDir, linkerName),
			"--library-path", libDir, r.util, strconv.Itoa(nthreads))
	} else {
		cmd = exec.CommandContext(ctx, r.util, strconv.Itoa(nthreads))
	}

	cmd.Env = append(os.Environ(), "LD_PRELOAD="+r.preload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("running benchmark",
		slog.Int("nthreads", nthreads),
		slog.String("cmd", cmd.String()),
		slog.String("ld_preload", r.preload),
	)

	start := time.Now()

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf(
			"benchmark with %d threads failed: %w\nstderr: %s",
			nthreads, err, stderr.String(),
		)
	}

	r.logger.Info("benchmark finished",
		slog.Int("nthreads", nthreads),
		slog.Duration("elapsed", time.Since(start)),
	)

	return stdout.Bytes(), nil
}
