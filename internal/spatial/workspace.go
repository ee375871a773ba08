package spatial

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Workspace is a scratch area for intermediate results of one boundary. It is
// owned by a single fetch and cleared on Release; nothing in it survives to
// the next boundary.
type Workspace struct {
	Schema string

	mu      sync.Mutex
	seq     int
	release func(context.Context) error
}

// NewWorkspace creates a workspace around an existing scratch schema.
// release runs once on Release and may be nil.
func NewWorkspace(schema string, release func(context.Context) error) *Workspace {
	return &Workspace{Schema: schema, release: release}
}

// Next allocates a fresh table handle within the workspace.
func (w *Workspace) Next(kind string) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	return Handle{Schema: w.Schema, Table: fmt.Sprintf("%s_%d", kind, w.seq)}
}

// Release clears the workspace. It is safe to call more than once.
func (w *Workspace) Release(ctx context.Context) error {
	w.mu.Lock()
	fn := w.release
	w.release = nil
	w.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Ident returns the quoted, schema-qualified table name.
func (h Handle) Ident() string {
	return pgx.Identifier{h.Schema, h.Table}.Sanitize()
}

func (h Handle) String() string { return h.Schema + "." + h.Table }
