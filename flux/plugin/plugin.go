// Package plugin implements the plugin lifecycle contract (spec.md §4.4):
// setup-before-use, ordered teardown, and injection of plugin clients into
// request contexts.
package plugin

import "context"

// Plugin is the port every adapter (database pool, cache client, HTTP
// client, …) implements — spec.md §6's "Plugin interface (ports for
// adapters)": {name, setup(config)→void, teardown()→void, getClient()→any}.
// Grounded on the teacher's Initializer/Shutdowner interfaces
// (runtime/interfaces.go), merged into one interface per spec.md's
// contract rather than the teacher's two optional ones, since spec.md
// requires every plugin to expose all three lifecycle operations.
type Plugin interface {
	Name() string
	Setup(ctx context.Context, config map[string]any) error
	Teardown(ctx context.Context) error
	GetClient() (any, error)
}
