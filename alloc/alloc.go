// Package alloc defines the malloc implementations the benchmark knows how
// to test and how each one is injected underneath the benchmark utility.
package alloc

import "strings"

// GlibcInstallDir is the install tree of the locally built GNU libc.
const GlibcInstallDir = "glibc-install"

// RuntimeLibs are the extra shared libraries the C++ based allocators
// (tcmalloc, jemalloc) drag in, which must be preloaded alongside them.
// Order matters: it is the order they appear in the composed preload list.
var RuntimeLibs = []string{"libstdc++.so.6", "libgcc_s.so.1"}

// Implementation describes one malloc implementation under test.
type Implementation struct {
	// Name identifies the implementation on the command line and in
	// output file names.
	Name string

	// PreloadLibs are the shared objects injected via LD_PRELOAD, in
	// order. Empty means the platform default allocator is used as-is.
	PreloadLibs []string

	// NeedsRuntimeLibs marks implementations whose preload libraries
	// also require libstdc++/libgcc_s to be preloaded.
	NeedsRuntimeLibs bool

	// LinkerRoot, when non-empty, runs the benchmark utility under the
	// dynamic linker found in <LinkerRoot>/lib instead of injecting
	// anything. Used when the implementation under test is a libc
	// build itself, which must take effect before the utility's own
	// symbols resolve.
	LinkerRoot string
}

// Known returns every implementation this tool has settings for.
func Known() []Implementation {
	return []Implementation{
		{Name: "system_default"},
		{Name: "glibc", LinkerRoot: GlibcInstallDir},
		{
			Name:             "tcmalloc",
			PreloadLibs:      []string{"tcmalloc-install/lib/libtcmalloc.so"},
			NeedsRuntimeLibs: true,
		},
		{
			Name:             "jemalloc",
			PreloadLibs:      []string{"jemalloc-install/lib/libjemalloc.so"},
			NeedsRuntimeLibs: true,
		},
		{
			Name:        "fast_malloc_1MiB",
			PreloadLibs: []string{"fast_malloc/build/libfast_malloc_1MiB.so"},
		},
		{
			Name:        "fast_malloc_1GiB",
			PreloadLibs: []string{"fast_malloc/build/libfast_malloc_1GiB.so"},
		},
	}
}

// Lookup returns the implementation with the given name, if known.
func Lookup(name string) (Implementation, bool) {
	for _, im := range Known() {
		if im.Name == name {
			return im, true
		}
	}

	return Implementation{}, false
}

// Names returns the known implementation names, in table order.
func Names() []string {
	known := Known()
	names := make([]string, len(known))

	for i, im := range known {
		names[i] = im.Name
	}

	return names
}

// PreloadList composes the LD_PRELOAD value for this implementation: its
// own preload libraries followed, only when NeedsRuntimeLibs is set, by
// the resolved runtime library paths, colon-joined. An implementation
// with nothing to inject yields the empty string, and an empty own list
// never introduces a stray leading colon.
func (im Implementation) PreloadList(runtimePaths []string) string {
	libs := make([]string, 0, len(im.PreloadLibs)+len(runtimePaths))
	libs = append(libs, im.PreloadLibs...)

	if im.NeedsRuntimeLibs {
		libs = append(libs, runtimePaths...)
	}

	return strings.Join(libs, ":")
}
