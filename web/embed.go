// Package web holds the embedded templates and static assets served by the
// application binary.
package web

import "embed"

//go:embed templates
var Templates embed.FS

//go:embed static
var Static embed.FS
