// internal/app/features/guestteam/templates.go
package guestteam

import (
	"embed"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var FS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "guestteam",
		FS:       FS,
		Patterns: []string{"templates/*.gohtml"},
	})
}
