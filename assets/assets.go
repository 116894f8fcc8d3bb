// Package assets embeds everything the server ships besides code: the
// HTML views, the email templates and the static files served under
// /static/.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed templates/*
var templateFS embed.FS

//go:embed emails/*.tmpl
var emailFS embed.FS

//go:embed dist/*
var distFS embed.FS

// The exported filesystems are rooted at their subdirectory, callers
// never see the assets/ prefix.
var (
	TemplateFS fs.FS
	EmailFS    fs.FS
	DistFS     fs.FS
)

func init() {
	var err error

	TemplateFS, err = fs.Sub(templateFS, "templates")
	if err != nil {
		panic("failed to subtree template FS " + err.Error())
	}

	EmailFS, err = fs.Sub(emailFS, "emails")
	if err != nil {
		panic("failed to subtree email FS " + err.Error())
	}

	DistFS, err = fs.Sub(distFS, "dist")
	if err != nil {
		panic("failed to subtree dist FS " + err.Error())
	}
}
