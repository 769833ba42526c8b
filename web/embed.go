// Package web holds the console's templates and static assets.
package web

import "embed"

// EmbeddedFS serves templates and static files in release and test mode.
//
//go:embed templates static
var EmbeddedFS embed.FS
