// Package views renders the server-side HTML pages as templ components.
// Edit the .templ sources and regenerate with templ generate.
package views

import (
	"context"

	"github.com/a-h/templ"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

// appPath prefixes an absolute app path with the configured base path.
func appPath(ctx context.Context, p string) templ.SafeURL {
	return templ.URL(model.BasePathFromContext(ctx) + p)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
