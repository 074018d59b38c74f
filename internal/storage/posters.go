// Package storage keeps releasarr's files on disk: the poster directory and
// the maintenance lock shared with backup tooling.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
)

// ErrUnsupportedPoster is returned for content types that are not images we keep.
var ErrUnsupportedPoster = errors.New("unsupported poster content type")

// ErrInvalidPosterName is returned for names that are not plain file names.
var ErrInvalidPosterName = errors.New("invalid poster file name")

var posterExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// PosterName returns the file name stored for a release poster.
func PosterName(releaseID models.ULID, contentType string) (string, error) {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	ext, ok := posterExtensions[strings.TrimSpace(mediaType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPoster, contentType)
	}
	return strings.ToLower(releaseID.String()) + ext, nil
}

// PosterStore is the flat directory poster files live in. Rows only store
// the file name.
type PosterStore struct {
	dir    string
	logger *slog.Logger
}

// NewPosterStore opens (and creates) the poster directory.
func NewPosterStore(dir string) (*PosterStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving poster directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating poster directory: %w", err)
	}
	return &PosterStore{dir: abs, logger: slog.Default()}, nil
}

// WithLogger sets the logger.
func (p *PosterStore) WithLogger(logger *slog.Logger) *PosterStore {
	p.logger = observability.WithComponent(logger, "posters")
	return p
}

// Dir returns the absolute poster directory.
func (p *PosterStore) Dir() string {
	return p.dir
}

// path returns the location of a poster. Names are plain file names; any
// separator, dot prefix or absolute form is rejected.
func (p *PosterStore) path(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPosterName, name)
	}
	return filepath.Join(p.dir, name), nil
}

// Save writes a poster, replacing any file of the same name. Data goes to
// a dot-prefixed temp file first and is renamed into place, so readers and
// Sweep never see a partial poster.
func (p *PosterStore) Save(name string, r io.Reader) error {
	target, err := p.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(p.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary poster: %w", err)
	}
	_, err = io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), target)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing poster %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a poster file is present.
func (p *PosterStore) Exists(name string) (bool, error) {
	path, err := p.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking poster %s: %w", name, err)
	}
	return true, nil
}

func (p *PosterStore) remove(name string) error {
	path, err := p.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing poster %s: %w", name, err)
	}
	return nil
}

// files lists poster files, skipping in-flight temp files.
func (p *PosterStore) files() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("reading poster directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// RemoveOrphans deletes the named posters and returns how many were
// removed. Missing files count as removed. Every name is attempted; the
// failures are joined into the returned error.
func (p *PosterStore) RemoveOrphans(names []string) (int, error) {
	removed := 0
	var errs []error
	for _, name := range names {
		if err := p.remove(name); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(names) > 0 {
		p.logger.Info("removed orphaned posters",
			slog.Int("requested", len(names)),
			slog.Int("removed", removed),
			slog.Int("failed", len(errs)),
		)
	}
	return removed, errors.Join(errs...)
}

// Sweep removes poster files that referenced does not contain and returns
// their names. It catches files left behind by crashes between a database
// delete and the file removal.
func (p *PosterStore) Sweep(referenced map[string]bool) ([]string, error) {
	files, err := p.files()
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, f := range files {
		if !referenced[f] {
			stale = append(stale, f)
		}
	}
	if _, err := p.RemoveOrphans(stale); err != nil {
		return stale, err
	}
	return stale, nil
}
