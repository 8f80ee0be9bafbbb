// Package ldso locates shared libraries on disk, following symlink chains
// the way the dynamic loader does when it maps a versioned library name
// to the real file.
package ldso

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// StandardRoots are the directories searched for system runtime libraries.
var StandardRoots = []string{"/usr/lib", "/lib", "/lib64"}

// maxLinkDepth bounds symlink chain dereferencing; it is the same limit
// the glibc loader applies, and turns a link cycle into an error instead
// of a hang.
const maxLinkDepth = 40

// ErrLinkLoop is returned when a symlink chain exceeds maxLinkDepth.
var ErrLinkLoop = errors.New("ldso: too many levels of symbolic links")

// Locate searches each root's directory subtree, in order, for a file
// with the given base name and returns its path with any symlink chain
// resolved to the final target. Directory symlinks are not followed, so
// cyclic directory links cannot cause infinite recursion. A file that is
// found nowhere yields ("", nil): absence is not an error.
func Locate(name string, roots []string) (string, error) {
	match := find(name, roots)
	if match == "" {
		return "", nil
	}

	return resolveLinks(match)
}

func find(name string, roots []string) string {
	var match string

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable or vanished entries are skipped, not fatal.
				return nil
			}
			if !d.IsDir() && d.Name() == name {
				match = path
				return fs.SkipAll
			}

			return nil
		})
		if err != nil {
			continue
		}
		if match != "" {
			return match
		}
	}

	return ""
}

func resolveLinks(path string) (string, error) {
	for depth := 0; depth < maxLinkDepth; depth++ {
		info, err := os.Lstat(path)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return path, nil
		}

		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			// Relative targets are relative to the link's directory.
			target = filepath.Join(filepath.Dir(path), target)
		}

		path = target
	}

	return "", ErrLinkLoop
}
