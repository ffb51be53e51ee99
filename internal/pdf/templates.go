package pdf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TemplateInfo describes a candidate template found on disk
type TemplateInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// FindTemplates walks dir for PDF files whose name contains query (case
// insensitive; empty matches all). Files the validator rejects without
// opening them are skipped, as are symlinked directories. A positive limit
// caps the result.
func (v *Validator) FindTemplates(dir, query string, limit int) ([]TemplateInfo, error) {
	if dir == "" {
		return nil, errors.New("directory cannot be empty")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory path: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("directory does not exist: %s", dir)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	errLimit := errors.New("limit reached")

	var found []TemplateInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !HasPDFExtension(d.Name()) {
			return nil
		}
		if query != "" && !strings.Contains(strings.ToLower(d.Name()), query) {
			return nil
		}

		info, err := d.Info()
		if err != nil || v.ValidateFileInfo(path, info) != nil {
			return nil //nolint:nilerr // invalid files are skipped
		}

		found = append(found, TemplateInfo{
			Path:         path,
			Name:         d.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
		if limit > 0 && len(found) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}
