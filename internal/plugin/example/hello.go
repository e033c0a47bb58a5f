// Package example provides a small plugin that shows how save data is
// declared, changed and written.
package example

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goatkit/moddata/internal/saves"
	"github.com/goatkit/moddata/pkg/plugin"
)

// Greetings is the global save object. The count follows the player across
// every save slot.
type Greetings struct {
	Count saves.Value[int]
}

// Visitor is the per-slot save object.
type Visitor struct {
	Last  string
	Names []string
}

// HelloPlugin greets visitors and remembers them.
type HelloPlugin struct {
	saves  *saves.Manager
	logger *slog.Logger
	global *saves.Handler
	local  *saves.Handler
}

// NewHelloPlugin creates the plugin. m is used for explicit saves.
func NewHelloPlugin(m *saves.Manager, logger *slog.Logger) *HelloPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &HelloPlugin{
		saves:  m,
		logger: logger.With("plugin", "hello"),
		global: saves.MustHandler(saves.NewHandler(func(g *Greetings) []saves.Binding {
			return []saves.Binding{saves.Tracked("count", &g.Count)}
		})),
		local: saves.MustHandler(saves.NewHandler(func(v *Visitor) []saves.Binding {
			return []saves.Binding{
				saves.Field("last", &v.Last, saves.WithAutoSave(saves.Manual)),
				saves.Field("names", &v.Names),
			}
		})),
	}
}

// Describe implements plugin.Plugin.
func (p *HelloPlugin) Describe() plugin.Descriptor {
	return plugin.Descriptor{
		Name:                     "hello",
		Version:                  "1.0.0",
		Description:              "Greets visitors and counts greetings",
		Author:                   "goatkit",
		RequiredFrameworkVersion: "1.0.0",
		Module:                   "github.com/goatkit/moddata/internal/plugin/example",
		Instance:                 p,
	}
}

// OnEnabled implements plugin.Plugin.
func (p *HelloPlugin) OnEnabled(ctx context.Context) error {
	p.logger.Info("hello plugin enabled")
	return nil
}

// GlobalSaveHandler implements saves.GlobalSaver.
func (p *HelloPlugin) GlobalSaveHandler() *saves.Handler { return p.global }

// LocalSaveHandler implements saves.LocalSaver.
func (p *HelloPlugin) LocalSaveHandler() *saves.Handler { return p.local }

// Greet returns a greeting for name. The global count is written as soon as
// it changes. The visitor is written to the active slot explicitly.
func (p *HelloPlugin) Greet(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = "World"
	}
	g, ok := saves.InstanceOf[Greetings](p.global)
	if !ok {
		return "", fmt.Errorf("hello: global save data is not loaded")
	}
	v, ok := saves.InstanceOf[Visitor](p.local)
	if !ok {
		return "", fmt.Errorf("hello: slot save data is not loaded")
	}

	g.Count.Set(g.Count.Get() + 1)
	v.Last = name
	v.Names = append(v.Names, name)

	if err := p.saves.SaveToFile(plugin.WithCaller(ctx, p)); err != nil {
		return "", fmt.Errorf("hello: save visitor: %w", err)
	}
	p.logger.Debug("greeted", "name", name, "count", g.Count.Get())
	return fmt.Sprintf("Hello, %s! (greeting #%d)", name, g.Count.Get()), nil
}

// Stats reports the counters currently held in memory.
func (p *HelloPlugin) Stats() (count int, last string) {
	if g, ok := saves.InstanceOf[Greetings](p.global); ok {
		count = g.Count.Get()
	}
	if v, ok := saves.InstanceOf[Visitor](p.local); ok {
		last = v.Last
	}
	return count, last
}
