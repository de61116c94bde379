package store

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore is a local-filesystem object store rooted at a directory,
// holding the per-run artifacts, latest/published snapshots, and reports
// named by §6's object-key layout. Keys are slash-separated relative
// paths; writes go to a temp file in the same directory before an
// atomic os.Rename, mirroring the teacher's write-then-rename-free
// os.MkdirAll-then-open sequencing in store.New but applied to every
// write instead of only schema creation.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// ReadObject reads the raw bytes at key, transparently gunzipping when
// the key ends in .gz.
func (f *FileStore) ReadObject(key string) ([]byte, error) {
	p := f.path(key)
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	if !strings.HasSuffix(key, ".gz") {
		return io.ReadAll(fh)
	}
	gz, err := gzip.NewReader(fh)
	if err != nil {
		return nil, fmt.Errorf("opening gzip object %s: %w", key, err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// ReadText reads key and returns it as a string.
func (f *FileStore) ReadText(key string) (string, error) {
	b, err := f.ReadObject(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadJSONOrNull unmarshals the JSON object at key into v. A missing key
// is not an error: it leaves v untouched and returns (false, nil).
func (f *FileStore) ReadJSONOrNull(key string, v any) (bool, error) {
	b, err := f.ReadObject(key)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// WriteObject writes data at key atomically: a temp file is written in
// the destination directory, then renamed into place so a crash mid-write
// never leaves a partial object visible under its final key.
func (f *FileStore) WriteObject(key string, data []byte) error {
	p := f.path(key)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if strings.HasSuffix(key, ".gz") {
		gz := gzip.NewWriter(tmp)
		if _, err := gz.Write(data); err != nil {
			gz.Close()
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("gzipping %s: %w", key, err)
		}
		if err := gz.Close(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("closing gzip writer for %s: %w", key, err)
		}
	} else if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file into %s: %w", key, err)
	}
	return nil
}

// WriteJSON pretty-prints v with a trailing newline and writes it at key,
// per §6's "on-disk formats" rule for human-readable artifacts.
func (f *FileStore) WriteJSON(key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	b = append(b, '\n')
	return f.WriteObject(key, b)
}

// AppendNDJSON appends one JSON-encoded line to an append-only log object,
// creating it if absent. Used for logs/events.jsonl.gz style keys.
func (f *FileStore) AppendNDJSON(key string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding ndjson line for %s: %w", key, err)
	}

	var existing []byte
	if b, err := f.ReadObject(key); err == nil {
		existing = b
	} else if !os.IsNotExist(err) {
		return err
	}
	existing = append(existing, line...)
	existing = append(existing, '\n')
	return f.WriteObject(key, existing)
}

// ListKeys returns every object key under prefix, sorted lexicographically.
func (f *FileStore) ListKeys(prefix string) ([]string, error) {
	root := f.path(prefix)
	var keys []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(filepath.Base(p), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// ResolveInputKey returns the object key for a product's spec input, per
// §6: specs/inputs/<category>/products/<product_id>.json.
func ResolveInputKey(category, productID string) string {
	return fmt.Sprintf("specs/inputs/%s/products/%s.json", category, productID)
}

// ResolveOutputKey returns the object key for a per-run artifact under
// specs/outputs/<category>/<product_id>/runs/<run_id>/<relPath>.
func ResolveOutputKey(category, productID, runID, relPath string) string {
	return fmt.Sprintf("specs/outputs/%s/%s/runs/%s/%s", category, productID, runID, relPath)
}

// ResolveLatestKey returns the object key for one of a product's latest
// snapshot artifacts (normalized.json | provenance.json | summary.json).
func ResolveLatestKey(category, productID, name string) string {
	return fmt.Sprintf("specs/outputs/%s/%s/latest/%s", category, productID, name)
}

// ResolvePublishedKey returns the object key for a product's published
// current snapshot.
func ResolvePublishedKey(category, productID string) string {
	return fmt.Sprintf("output/%s/published/%s/current.json", category, productID)
}

// ResolveFinalEvidenceKey returns the object key for a product's
// append-only evidence source log.
func ResolveFinalEvidenceKey(category, brand, model, variant string) string {
	return fmt.Sprintf("final/%s/%s/%s/%s/evidence/sources.jsonl", category, brand, model, variant)
}

// ResolveDailyReportKey returns the object key for one category's daily
// report, keyed by an RFC3339 UTC date (YYYY-MM-DD).
func ResolveDailyReportKey(category, date string) string {
	return fmt.Sprintf("specs/outputs/%s/_reports/daily/%s/%s.json", category, date, category)
}

// ResolveSourceIntelKey returns the object key for a category's source
// intelligence domain-stats report: specs/outputs/_source_intel/<category>/domain_stats.json.
func ResolveSourceIntelKey(category string) string {
	return fmt.Sprintf("specs/outputs/_source_intel/%s/domain_stats.json", category)
}
