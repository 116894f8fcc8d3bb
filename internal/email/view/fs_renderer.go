package view

import (
	"context"
	"io/fs"
	"strings"

	"github.com/taskward/taskward/internal/email"
)

// FSRenderer renders email templates from a file system.
type FSRenderer struct {
	fs fs.FS
}

// NewFSRenderer returns a new FSRenderer.
func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs}
}

// Render renders the element of the named template with the given data.
func (r *FSRenderer) Render(_ context.Context, name string, element email.TemplateElement, data any) (string, error) {
	v, err := Parse(r.fs, name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	err = v.Render(&b, element, data)
	if err != nil {
		return "", err
	}

	return b.String(), nil
}
