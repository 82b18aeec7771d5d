package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/dedurus/openmct/internal/export"
)

// attachmentService delivers an export as a file download on the response.
type attachmentService struct {
	w     http.ResponseWriter
	wrote bool
}

var _ export.Service = (*attachmentService)(nil)

func (s *attachmentService) ExportJSON(ctx context.Context, doc interface{}, opts export.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}
	data = append(data, '\n')

	h := s.w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": opts.Filename}))
	s.w.WriteHeader(http.StatusOK)
	s.wrote = true

	_, err = s.w.Write(data)
	return err
}
