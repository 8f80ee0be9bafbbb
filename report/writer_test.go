package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newWriter(t *testing.T) (*ArrayWriter, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "out.json")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	return w, path
}

func readBack(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	return string(data)
}

func TestAllRunsSucceed(t *testing.T) {
	w, path := newWriter(t)

	elems := []string{
		`{"nthreads":1}`, `{"nthreads":2}`, `{"nthreads":4}`,
	}
	for _, e := range elems {
		// The utility terminates its output with a newline.
		if err := w.Append([]byte(e + "\n")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.Count() != 3 {
		t.Errorf("count = %d, want 3", w.Count())
	}

	got := readBack(t, path)
	want := `[{"nthreads":1},{"nthreads":2},{"nthreads":4}]` + "\n"
	if got != want {
		t.Errorf("document = %q, want %q", got, want)
	}

	var parsed []map[string]int
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Errorf("document is not valid JSON: %v", err)
	}
}

func TestAllRunsFail(t *testing.T) {
	w, path := newWriter(t)

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.Count() != 0 {
		t.Errorf("count = %d, want 0", w.Count())
	}

	if got := readBack(t, path); got != "[]\n" {
		t.Errorf("document = %q, want []\\n", got)
	}
}

func TestLastRunFails(t *testing.T) {
	// Three thread counts requested, the last run produces nothing.
	// The separator must not be pre-placed from sequence position, so
	// the document stays valid JSON with no dangling comma.
	w, path := newWriter(t)

	if err := w.Append([]byte(`{"nthreads":1}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Append([]byte(`{"nthreads":2}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Append(nil); !errors.Is(err, ErrEmptyElement) {
		t.Fatalf("err = %v, want ErrEmptyElement", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.Count() != 2 {
		t.Errorf("count = %d, want 2", w.Count())
	}

	got := readBack(t, path)
	want := `[{"nthreads":1},{"nthreads":2}]` + "\n"
	if got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
}

func TestMiddleRunFails(t *testing.T) {
	w, path := newWriter(t)

	if err := w.Append([]byte(`{"nthreads":1}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Append([]byte("  \n")); !errors.Is(err, ErrEmptyElement) {
		t.Fatalf("err = %v, want ErrEmptyElement for blank output", err)
	}
	if err := w.Append([]byte(`{"nthreads":4}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got := readBack(t, path)
	want := `[{"nthreads":1},{"nthreads":4}]` + "\n"
	if got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
}

func TestFirstRunFails(t *testing.T) {
	w, path := newWriter(t)

	if err := w.Append(nil); !errors.Is(err, ErrEmptyElement) {
		t.Fatalf("err = %v, want ErrEmptyElement", err)
	}
	if err := w.Append([]byte(`{"nthreads":2}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// No leading comma from the failed first run.
	got := readBack(t, path)
	want := `[{"nthreads":2}]` + "\n"
	if got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
}

func TestElementsWrittenVerbatim(t *testing.T) {
	w, path := newWriter(t)

	// Elements are opaque: not parsed, not reformatted.
	raw := `{"functions": {"malloc": {"": {"duration": 9.9e+09}}}}`
	if err := w.Append([]byte(raw + "\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got := readBack(t, path)
	want := "[" + raw + "]\n"
	if got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
}
