package store

import (
	"context"

	"raceday/internal/registration/ports"
)

type memoryTxKey struct{}

// MemoryTx runs units of work against an InMemoryStore. Units are serialized, which
// stands in for the row locks of the Postgres store.
type MemoryTx struct {
	store *InMemoryStore
}

// NewMemoryTx builds a runner for store.
func NewMemoryTx(store *InMemoryStore) *MemoryTx {
	return &MemoryTx{store: store}
}

var _ ports.TxRunner = (*MemoryTx)(nil)

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if view, ok := ctx.Value(memoryTxKey{}).(*memoryView); ok {
		return fn(ctx, view)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	view := &memoryView{st: t.store.state.clone()}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, view), view); err != nil {
		return err
	}

	t.store.state = view.st
	t.store.audit.AppendAll(ctx, view.pending)
	return nil
}
