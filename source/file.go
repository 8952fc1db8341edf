package source

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/tailored-agentic-units/tabula/transform"
)

const lockRetryDelay = 25 * time.Millisecond

// FileSource reads delimited text and JSON datasets from a directory. Keys map
// 1:1 to slash-separated paths relative to root. Delimited files carry a
// header row and every value is returned as a string; JSON files hold an
// array of objects.
type FileSource struct {
	root      string
	delimiter rune
}

// NewFileSource creates a FileSource rooted at root. A zero delimiter picks
// comma for .csv and tab for .tsv.
func NewFileSource(root string, delimiter rune) *FileSource {
	return &FileSource{root: root, delimiter: delimiter}
}

var extensions = []string{".csv", ".tsv", ".json"}

// List returns every dataset file under root. Hidden files and directories,
// including lock files, are skipped.
func (s *FileSource) List(_ context.Context) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return fs.SkipAll
			}
			return err
		}

		if strings.HasPrefix(d.Name(), ".") && path != s.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	return keys, nil
}

// Fetch reads the dataset at key while holding a shared lock on its sidecar
// lock file, so writers that take the exclusive lock never expose a partial
// file.
func (s *FileSource) Fetch(ctx context.Context, key string) ([]transform.Row, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, key, err)
	}

	// Read-only dataset directories cannot hold a lock file; read unlocked.
	lock := flock.New(lockPath(path))
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, fs.ErrPermission) {
		return nil, fmt.Errorf("%w: %s: lock: %v", ErrFetchFailed, key, err)
	}
	if locked {
		defer lock.Unlock()
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, key, err)
	}
	defer f.Close()

	var rows []transform.Row
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		rows, err = readDelimited(f, s.comma(path))
	case ".json":
		rows, err = readJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, key, err)
	}

	return rows, nil
}

// Write replaces the dataset at key with the given delimited-text rows under
// an exclusive lock. Columns are written in the order given.
func (s *FileSource) Write(ctx context.Context, key string, columns []string, rows []transform.Row) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, key, err)
	}

	lock := flock.New(lockPath(path))
	if _, err := lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("%w: %s: lock: %v", ErrWriteFailed, key, err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, key, err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	w.Comma = s.comma(path)

	records := make([][]string, 0, len(rows)+1)
	records = append(records, columns)
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := row[col]; ok && v != nil {
				record[i] = fmt.Sprint(v)
			}
		}
		records = append(records, record)
	}

	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, key, err)
	}

	return nil
}

// path resolves key under root. Absolute keys and keys that climb out of
// root are rejected before anything, lock files included, touches the disk.
func (s *FileSource) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) || filepath.Clean(rel) == "." {
		return "", fmt.Errorf("%w: %q is not a path under the dataset root", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, rel), nil
}

func (s *FileSource) comma(path string) rune {
	switch {
	case s.delimiter != 0:
		return s.delimiter
	case strings.EqualFold(filepath.Ext(path), ".tsv"):
		return '\t'
	}
	return ','
}

// lockPath places the lock file next to the dataset as a hidden file.
func lockPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".lock")
}

func readDelimited(r io.Reader, comma rune) ([]transform.Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []transform.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []transform.Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make(transform.Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}

	if rows == nil {
		rows = []transform.Row{}
	}
	return rows, nil
}

func readJSON(r io.Reader) ([]transform.Row, error) {
	var rows []transform.Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if rows == nil {
		rows = []transform.Row{}
	}
	return rows, nil
}
