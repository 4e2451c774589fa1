package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccessorsFallBackToZeroValues(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Caller(ctx).IsAuthenticated())
	assert.Equal(t, "", ClientIP(ctx))
	assert.Equal(t, "", RequestID(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestCallerPermissions(t *testing.T) {
	caller := CallerIdentity{UserID: uuid.New(), Permissions: []Permission{PermManageAllEvents}}
	ctx := WithCaller(context.Background(), caller)

	assert.Equal(t, caller.UserID, UserID(ctx))
	assert.True(t, Caller(ctx).Has(PermManageAllEvents))
	assert.False(t, CallerIdentity{}.Has(PermManageAllEvents))
}

func TestPinnedTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}
