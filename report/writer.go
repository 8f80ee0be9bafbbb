// Package report assembles per-implementation benchmark outputs into a
// JSON array document, one file per implementation.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// ErrEmptyElement is returned by Append when a run produced no output;
// such a run is not part of the document.
var ErrEmptyElement = errors.New("report: empty element")

// ArrayWriter incrementally writes raw JSON values into a single JSON
// array file. Elements are written verbatim, in append order, with a
// comma emitted only between two elements that were actually written,
// so a skipped run anywhere in the batch still yields valid JSON. The
// writer is the file's only writer for its lifetime.
type ArrayWriter struct {
	f     *os.File
	count int
}

// Create opens path for writing, truncating any previous document, and
// writes the opening bracket.
func Create(path string) (*ArrayWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := f.WriteString("["); err != nil {
		f.Close()

		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	return &ArrayWriter{f: f}, nil
}

// Append writes one element. Surrounding whitespace is trimmed so the
// utility's trailing newline does not end up inside the array; the
// element bytes themselves are not inspected or validated.
func (w *ArrayWriter) Append(raw []byte) error {
	elem := bytes.TrimSpace(raw)
	if len(elem) == 0 {
		return ErrEmptyElement
	}

	if w.count > 0 {
		if _, err := w.f.WriteString(","); err != nil {
			return fmt.Errorf("write %s: %w", w.f.Name(), err)
		}
	}

	if _, err := w.f.Write(elem); err != nil {
		return fmt.Errorf("write %s: %w", w.f.Name(), err)
	}

	w.count++

	return nil
}

// Count reports how many elements have been written.
func (w *ArrayWriter) Count() int {
	return w.count
}

// Close writes the closing bracket and trailing newline and closes the
// file. A document with zero elements comes out as "[]".
func (w *ArrayWriter) Close() error {
	if _, err := w.f.WriteString("]\n"); err != nil {
		w.f.Close()

		return fmt.Errorf("write %s: %w", w.f.Name(), err)
	}

	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.f.Name(), err)
	}

	return nil
}
