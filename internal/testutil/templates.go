package testutil

import (
	"github.com/dalemusser/promptshelf/internal/app/resources"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

// BootTemplates compiles every template set registered so far, plus the
// shared layout, and installs the engine for templates.Render. Call it from
// TestMain in packages whose handlers render pages.
func BootTemplates() error {
	resources.LoadSharedTemplates()
	eng := templates.New(false)
	if err := eng.Boot(zap.NewNop()); err != nil {
		return err
	}
	templates.UseEngine(eng, zap.NewNop())
	return nil
}
