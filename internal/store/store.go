// Package store persists article records and full text as a directory tree:
//
//	<root>/metadata/<pmid>.json
//	<root>/fulltext/<pmcid>.xml
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/helixir/literature-collector/internal/domain"
)

// Directory names inside a store root.
const (
	MetadataDir = "metadata"
	FullTextDir = "fulltext"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ArticleStore writes records under a single root directory.
// It is not safe for concurrent writers to the same root.
type ArticleStore struct {
	root string
}

// New returns a store rooted at root. Directories are created lazily on Save.
func New(root string) *ArticleStore {
	return &ArticleStore{root: root}
}

// Root returns the store root directory.
func (s *ArticleStore) Root() string {
	return s.root
}

// MetadataPath returns where the record for pmid is written.
func (s *ArticleStore) MetadataPath(pmid string) string {
	return filepath.Join(s.root, MetadataDir, pmid+".json")
}

// FullTextFile returns where the full text for pmcid is written.
func (s *ArticleStore) FullTextFile(pmcid string) string {
	return filepath.Join(s.root, FullTextDir, pmcid+".xml")
}

// Save writes the record and, when fulltext is non-empty and the record has a
// PMCID, the full text. Existing files are overwritten. It reports whether
// full text was written.
func (s *ArticleStore) Save(record *domain.ArticleRecord, fulltext []byte) (bool, error) {
	if record == nil || strings.TrimSpace(record.PMID) == "" {
		return false, domain.ErrNoIdentifier
	}
	if err := ValidateName(record.PMID); err != nil {
		return false, err
	}

	if err := WriteJSON(s.MetadataPath(record.PMID), record); err != nil {
		return false, fmt.Errorf("save metadata %s: %w", record.PMID, err)
	}

	if len(fulltext) == 0 || record.PMCID == "" {
		return false, nil
	}
	if err := ValidateName(record.PMCID); err != nil {
		return false, err
	}
	if err := writeFileAtomic(s.FullTextFile(record.PMCID), fulltext); err != nil {
		return false, fmt.Errorf("save full text %s: %w", record.PMCID, err)
	}
	return true, nil
}

// Load reads one metadata file. Decoding failures, a missing pmid
// (domain.ErrNoIdentifier) and a pmid unusable as a file name are reported as
// *domain.MalformedRecordError.
func Load(path string) (*domain.ArticleRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var record domain.ArticleRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, domain.NewMalformedRecordError(path, err)
	}
	if strings.TrimSpace(record.PMID) == "" {
		return nil, domain.NewMalformedRecordError(path, domain.ErrNoIdentifier)
	}
	if err := ValidateName(record.PMID); err != nil {
		return nil, domain.NewMalformedRecordError(path, err)
	}
	return &record, nil
}

// MetadataFiles returns every *.json file located directly inside a directory
// named "metadata" anywhere under root, in lexical path order.
func MetadataFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".json" && filepath.Base(filepath.Dir(path)) == MetadataDir {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// FullTextPath returns the sibling full-text location for a metadata file.
func FullTextPath(metadataFile, pmcid string) string {
	return filepath.Join(filepath.Dir(filepath.Dir(metadataFile)), FullTextDir, pmcid+".xml")
}

// HasFullText reports whether the sibling full-text file exists.
func HasFullText(metadataFile, pmcid string) bool {
	if pmcid == "" {
		return false
	}
	info, err := os.Stat(FullTextPath(metadataFile, pmcid))
	return err == nil && info.Mode().IsRegular()
}

// Category returns the path of the metadata file's tree relative to root,
// i.e. the directory holding its metadata folder. Files directly under
// root/metadata have category ".".
func Category(root, metadataFile string) string {
	rel, err := filepath.Rel(root, filepath.Dir(filepath.Dir(metadataFile)))
	if err != nil {
		return filepath.Base(filepath.Dir(filepath.Dir(metadataFile)))
	}
	return filepath.ToSlash(rel)
}

// WriteJSON writes v as two-space indented JSON followed by a newline.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// CopyFile copies src to dst atomically, creating parent directories.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFileAtomic(dst, data)
}

// writeFileAtomic writes to a temporary file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ValidateName rejects identifiers that would escape their directory.
func ValidateName(id string) error {
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return domain.NewValidationError("identifier", fmt.Sprintf("unsafe file name %q", id))
	}
	return nil
}
