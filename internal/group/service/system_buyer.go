package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
)

// systemBuyer resolves the placeholder buyer account once per process. Concurrent
// first calls share one lookup.
type systemBuyer struct {
	email string
	group singleflight.Group

	mu sync.RWMutex
	id uuid.UUID
}

func newSystemBuyer(email string) *systemBuyer {
	return &systemBuyer{email: email}
}

// resolve returns the cached id or creates the account in its own transaction.
// EnsureSystemUser is an upsert, so a lost race between processes is harmless.
func (b *systemBuyer) resolve(ctx context.Context, tx ports.TxRunner) (uuid.UUID, error) {
	b.mu.RLock()
	id := b.id
	b.mu.RUnlock()
	if id != uuid.Nil {
		return id, nil
	}

	v, err, _ := b.group.Do(b.email, func() (any, error) {
		var resolved uuid.UUID
		err := tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
			u, err := st.EnsureSystemUser(ctx, b.email)
			if err != nil {
				return err
			}
			resolved = u.ID
			return nil
		})
		if err != nil {
			return uuid.Nil, err
		}
		b.mu.Lock()
		b.id = resolved
		b.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve system buyer")
	}
	return v.(uuid.UUID), nil
}
