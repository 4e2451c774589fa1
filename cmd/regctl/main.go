// regctl runs raceday's operator tasks against the configured backends: hold sweeps,
// group batch upload and processing, invite issuance and one-shot outbox relays.
// It reads the same environment as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"raceday/internal/app"
	groupService "raceday/internal/group/service"
	"raceday/internal/platform/config"
	"raceday/internal/platform/logger"
	"raceday/pkg/requestcontext"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app.App, args []string, out io.Writer) error
}

var commands = map[string]command{
	"sweep-holds":   {"expire lapsed provisional holds", runSweepHolds},
	"upload-batch":  {"upload a group registration spreadsheet", runUploadBatch},
	"process-batch": {"admit the rows of an uploaded batch", runProcessBatch},
	"issue-invites": {"mail claim invites for a processed batch", runIssueInvites},
	"relay-outbox":  {"publish one batch of pending outbox rows", runRelayOutbox},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx = requestcontext.WithTime(ctx, time.Now().UTC())
	return cmd.run(ctx, a, args[1:], out)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: regctl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, name := range []string{"sweep-holds", "upload-batch", "process-batch", "issue-invites", "relay-outbox"} {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", name, commands[name].summary)
	}
}

// callerFlags identifies the organizer an operator command acts as.
type callerFlags struct {
	user  string
	staff bool
}

func (c *callerFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.user, "user", "", "organizer user id the command acts as (required)")
	fs.BoolVar(&c.staff, "staff", false, "act with organisation-wide event permissions")
}

func (c *callerFlags) context(ctx context.Context) (context.Context, uuid.UUID, error) {
	id, err := parseID("user", c.user)
	if err != nil {
		return nil, uuid.Nil, err
	}
	caller := requestcontext.CallerIdentity{UserID: id}
	if c.staff {
		caller.Permissions = []requestcontext.Permission{requestcontext.PermManageAllEvents}
	}
	return requestcontext.WithCaller(ctx, caller), id, nil
}

func parseID(flag, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", flag)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return id, nil
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type batchSummary struct {
	BatchID  uuid.UUID `json:"batchId"`
	Status   string    `json:"status"`
	Rows     int       `json:"rows"`
	Admitted int       `json:"admitted"`
}

func summarize(res *groupService.BatchResult) batchSummary {
	return batchSummary{
		BatchID:  res.Batch.ID,
		Status:   string(res.Batch.Status),
		Rows:     len(res.Rows),
		Admitted: res.Admitted(),
	}
}

func runSweepHolds(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("sweep-holds", pflag.ContinueOnError)
	limit := fs.Int("limit", 0, "maximum holds to expire (0 for no limit)")
	if err := parse(fs, args); err != nil {
		return err
	}

	expired, err := a.Registrations.ExpireStaleHolds(ctx, *limit)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]int{"expired": expired})
}

func runUploadBatch(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	var caller callerFlags
	fs := pflag.NewFlagSet("upload-batch", pflag.ContinueOnError)
	caller.add(fs)
	edition := fs.String("edition", "", "edition id the batch belongs to (required)")
	path := fs.String("file", "", "CSV or XLSX spreadsheet to upload (required)")
	if err := parse(fs, args); err != nil {
		return err
	}

	ctx, userID, err := caller.context(ctx)
	if err != nil {
		return err
	}
	editionID, err := parseID("edition", *edition)
	if err != nil {
		return err
	}
	if *path == "" {
		return errors.New("--file is required")
	}
	f, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.Groups.Upload(ctx, userID, editionID, filepath.Base(*path), f)
	if err != nil {
		return err
	}
	return printJSON(out, summarize(res))
}

func runProcessBatch(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	var caller callerFlags
	fs := pflag.NewFlagSet("process-batch", pflag.ContinueOnError)
	caller.add(fs)
	batch := fs.String("batch", "", "batch id to process (required)")
	if err := parse(fs, args); err != nil {
		return err
	}

	ctx, userID, err := caller.context(ctx)
	if err != nil {
		return err
	}
	batchID, err := parseID("batch", *batch)
	if err != nil {
		return err
	}
	res, err := a.Groups.Process(ctx, userID, batchID)
	if err != nil {
		return err
	}
	return printJSON(out, summarize(res))
}

func runIssueInvites(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	var caller callerFlags
	fs := pflag.NewFlagSet("issue-invites", pflag.ContinueOnError)
	caller.add(fs)
	batch := fs.String("batch", "", "processed batch id (required)")
	if err := parse(fs, args); err != nil {
		return err
	}

	ctx, userID, err := caller.context(ctx)
	if err != nil {
		return err
	}
	batchID, err := parseID("batch", *batch)
	if err != nil {
		return err
	}
	res, err := a.Invites.IssueInvites(ctx, userID, batchID)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{
		"batchId": res.BatchID,
		"issued":  len(res.Invites),
		"skipped": res.Skipped,
	})
}

func runRelayOutbox(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("relay-outbox", pflag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.Relay == nil {
		return errors.New("outbox relay needs DATABASE_URL and KAFKA_BROKERS")
	}
	n, err := a.Relay.RelayOnce(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]int{"published": n})
}
