//go:build integration

package email

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"raceday/internal/registration/ports"
	"raceday/pkg/testutil/containers"
)

func TestOutboxMailerQueuesInviteJob(t *testing.T) {
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateTables(ctx, "outbox"))

	m := NewOutboxMailer(pg.DB)
	edition := uuid.New()
	require.NoError(t, m.SendInvite(ctx, ports.InviteEmail{
		To: "ada@example.com", FirstName: "Ada", EditionID: edition, Token: "tok",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	var (
		kind, eventType, aggregate string
		payload                    []byte
	)
	err := pg.DB.QueryRowContext(ctx,
		`SELECT topic_kind, event_type, aggregate_id, payload FROM outbox`).Scan(&kind, &eventType, &aggregate, &payload)
	require.NoError(t, err)
	require.Equal(t, "email", kind)
	require.Equal(t, JobInvite, eventType)
	require.Equal(t, edition.String(), aggregate)

	var job Job
	require.NoError(t, json.Unmarshal(payload, &job))
	require.Equal(t, "ada@example.com", job.To)
	require.Contains(t, string(job.Data), `"token":"tok"`)
}
