package writer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dogeexport/internal/transformer"
)

// Engine renders a Table into a single file.
//
// Write receives a path that already exists (an empty temp file owned by the
// Writer) and must fully replace its contents. The Writer renames the file
// into place only after Write returns nil, so an engine never needs to clean up
// after itself on error.
type Engine interface {
	// Ext is the file extension including the dot, e.g. ".xlsx".
	Ext() string
	Write(ctx context.Context, path, sheet string, t transformer.Table) error
}

var (
	enginesMu sync.RWMutex
	engines   = map[string]Engine{}
)

// Register makes an engine available under name (the DOGE_EXCEL_ENGINE value).
//
// When to use:
//   - Call Register from an init() function in the engine's package.
//
// Panics:
//   - If name is empty, e is nil, or name is already registered.
func Register(name string, e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	if name == "" {
		panic("writer: Register called with empty name")
	}
	if e == nil {
		panic("writer: Register called with nil engine")
	}
	if _, exists := engines[name]; exists {
		panic(fmt.Sprintf("writer: engine already registered for name=%q", name))
	}
	engines[name] = e
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, ok := engines[name]
	return e, ok
}

// Engines lists registered engine names, sorted.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	out := make([]string, 0, len(engines))
	for name := range engines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
