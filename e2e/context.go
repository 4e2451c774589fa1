// Package e2e runs the Gherkin acceptance scenarios in features/ against the full HTTP
// router, built in memory mode. Steps seed events through the in-memory store and drive
// every admission through the public API.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"raceday/internal/app"
	jwttoken "raceday/internal/jwt_token"
	"raceday/internal/platform/config"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/internal/registration/store"
	"raceday/pkg/identity"
)

const (
	signingKey = "e2e-signing-key"
	issuer     = "raceday-auth"
	audience   = "raceday-api"
)

// TestContext holds one scenario's application, callers and last response.
type TestContext struct {
	store  *store.InMemoryStore
	app    *app.App
	server *httptest.Server
	jwt    *jwttoken.JWTService
	mail   *mailbox

	users map[string]uuid.UUID
	refs  map[string]uuid.UUID

	lastStatus int
	lastBody   []byte
}

// NewTestContext builds a fresh application for one scenario.
func NewTestContext(ctx context.Context) (*TestContext, error) {
	tc := &TestContext{
		store: store.NewInMemoryStore(),
		jwt:   jwttoken.NewJWTService(signingKey, issuer, audience),
		mail:  &mailbox{invites: map[string]ports.InviteEmail{}},
		users: map[string]uuid.UUID{},
		refs:  map[string]uuid.UUID{},
	}
	cfg := config.Server{
		JWTSigningKey:     signingKey,
		JWTIssuer:         issuer,
		JWTAudience:       audience,
		InviteTokenPepper: "e2e-pepper",
		InviteTTL:         72 * time.Hour,
		SystemBuyerEmail:  "group-registrations@system.raceday.local",
	}
	a, err := app.Build(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		app.WithRegistry(prometheus.NewRegistry()),
		app.WithMemoryStore(tc.store),
		app.WithMailer(tc.mail),
	)
	if err != nil {
		return nil, err
	}
	tc.app = a
	tc.server = httptest.NewServer(a.Router())
	return tc, nil
}

// Close stops the server and releases the application.
func (tc *TestContext) Close() {
	tc.server.Close()
	_ = tc.app.Close()
}

// Store exposes the in-memory store for seeding and ledger assertions.
func (tc *TestContext) Store() *store.InMemoryStore {
	return tc.store
}

// Remember names an id so later steps can refer to it.
func (tc *TestContext) Remember(name string, id uuid.UUID) {
	tc.refs[strings.ToLower(name)] = id
}

// Ref returns the id remembered under name.
func (tc *TestContext) Ref(name string) (uuid.UUID, error) {
	id, ok := tc.refs[strings.ToLower(name)]
	if !ok {
		return uuid.Nil, fmt.Errorf("nothing named %q in this scenario", name)
	}
	return id, nil
}

// EnsureUser returns the account for email, creating a verified one on first use.
// dateOfBirth only applies when the account is created.
func (tc *TestContext) EnsureUser(email, dateOfBirth string) uuid.UUID {
	email = identity.NormalizeEmail(email)
	if id, ok := tc.users[email]; ok {
		return id
	}
	id := uuid.New()
	tc.store.SeedUser(models.User{ID: id, Email: email, EmailVerified: true, CreatedAt: time.Now()}, dateOfBirth)
	tc.users[email] = id
	return id
}

func (tc *TestContext) bearer(email string) (string, error) {
	id := tc.EnsureUser(email, "")
	return tc.jwt.GenerateAccessToken(jwttoken.Subject{
		UserID:        id,
		Email:         identity.NormalizeEmail(email),
		EmailVerified: true,
	}, time.Hour)
}

// Request sends a JSON request as the user signed in with email. An empty email
// sends the request anonymously.
func (tc *TestContext) Request(method, path, email string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return tc.send(req, email)
}

// Upload posts content as the multipart file field of path.
func (tc *TestContext) Upload(path, email, filename string, content []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.server.URL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.send(req, email)
}

func (tc *TestContext) send(req *http.Request, email string) error {
	if email != "" {
		token, err := tc.bearer(email)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.server.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func (tc *TestContext) envelope() (envelope, error) {
	var env envelope
	if err := json.Unmarshal(tc.lastBody, &env); err != nil {
		return env, fmt.Errorf("response is not an envelope: %w: %s", err, tc.lastBody)
	}
	return env, nil
}

// Status is the HTTP status of the last response.
func (tc *TestContext) Status() int {
	return tc.lastStatus
}

// ErrorCode is the failure code of the last response, if any.
func (tc *TestContext) ErrorCode() (string, error) {
	env, err := tc.envelope()
	if err != nil {
		return "", err
	}
	return env.Code, nil
}

// Data decodes the data member of the last response into v.
func (tc *TestContext) Data(v any) error {
	env, err := tc.envelope()
	if err != nil {
		return err
	}
	if !env.OK {
		return fmt.Errorf("request failed with %d %s: %s", tc.lastStatus, env.Code, env.Error)
	}
	return json.Unmarshal(env.Data, v)
}

// Body is the raw last response, for failure messages.
func (tc *TestContext) Body() string {
	return string(tc.lastBody)
}

// InviteToken returns the token of the latest invite mailed to email.
func (tc *TestContext) InviteToken(email string) (string, error) {
	msg, ok := tc.mail.invite(email)
	if !ok {
		return "", fmt.Errorf("no invite was mailed to %s", email)
	}
	return msg.Token, nil
}

// mailbox keeps the last invite per recipient.
type mailbox struct {
	mu      sync.Mutex
	invites map[string]ports.InviteEmail
}

func (m *mailbox) SendRegistrationConfirmation(context.Context, ports.ConfirmationEmail) error {
	return nil
}

func (m *mailbox) SendInvite(_ context.Context, msg ports.InviteEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[identity.NormalizeEmail(msg.To)] = msg
	return nil
}

func (m *mailbox) invite(email string) (ports.InviteEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.invites[identity.NormalizeEmail(email)]
	return msg, ok
}
