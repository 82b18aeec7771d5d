package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/errors"
)

// Options accompany an exported document.
type Options struct {
	Filename string
}

// Service writes exported documents somewhere.
type Service interface {
	ExportJSON(ctx context.Context, doc interface{}, opts Options) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, doc interface{}, opts Options) error

// ExportJSON calls f.
func (f ServiceFunc) ExportJSON(ctx context.Context, doc interface{}, opts Options) error {
	return f(ctx, doc, opts)
}

// FileService writes documents as indented JSON files under Dir.
type FileService struct {
	Dir string
}

// Path returns where a document with the given filename is written. Any
// directory components in filename are dropped.
func (s FileService) Path(filename string) (string, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: empty export filename", errors.ErrInvalidInput)
	}
	return filepath.Join(s.Dir, base), nil
}

// ExportJSON implements Service. The file is replaced atomically.
func (s FileService) ExportJSON(ctx context.Context, doc interface{}, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(opts.Filename)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}
	data = append(data, '\n')

	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Export written")
	return nil
}

// WriterService streams documents to W, ignoring the filename.
type WriterService struct {
	W io.Writer
}

// ExportJSON implements Service.
func (s WriterService) ExportJSON(ctx context.Context, doc interface{}, _ Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(s.W)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
