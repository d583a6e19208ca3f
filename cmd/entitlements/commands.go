package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/entitlement/pgstore"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/pg"
)

var (
	errMissingFlag   = errors.New("missing required flag")
	errInvalidFlag   = errors.New("invalid flag value")
	errUnhealthy     = errors.New("dependency unhealthy")
	errLimitExceeded = errors.New("consumption rejected")
)

var stdout io.Writer = os.Stdout

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(name, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: -%s", errMissingFlag, name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: -%s: %w", errInvalidFlag, name, err)
	}
	return id, nil
}

func parseWorkspace(raw string) (uuid.NullUUID, error) {
	if raw == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := parseID("workspace", raw)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

func requireFeature(raw string) (entitlement.Feature, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: -feature", errMissingFlag)
	}
	return entitlement.Feature(raw), nil
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := fs.String("dir", "", "read migrations from this directory instead of the embedded set")
	if err := fs.Parse(args); err != nil {
		return err
	}

	migrations := pgstore.Migrations()
	cfg := a.pgCfg
	if *dir != "" {
		migrations = nil
		cfg.MigrationsPath = *dir
	}
	return pg.Migrate(ctx, a.pool, cfg, migrations, a.log)
}

func runSeed(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("file", "", "YAML seed with features and plans")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: -file", errMissingFlag)
	}

	seed, err := entitlement.LoadSeedFile(*file)
	if err != nil {
		return err
	}
	if err := pgstore.ApplySeed(ctx, a.pool, seed); err != nil {
		return err
	}

	a.log.InfoContext(ctx, "seed applied",
		"features", len(seed.Features),
		"plans", len(seed.Plans),
	)
	return nil
}

func runSummary(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	orgID := fs.String("org", "", "organization id")
	planID := fs.String("plan", "", "plan id; empty means no active plan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.engine(ctx); err != nil {
		return err
	}

	org, err := a.organization(ctx, *orgID, *planID)
	if err != nil {
		return err
	}
	summary, err := a.svc.GetUsageSummary(ctx, org)
	if err != nil {
		return err
	}
	return writeJSON(summary)
}

type consumeResult struct {
	Feature   entitlement.Feature `json:"feature"`
	Amount    int64               `json:"amount"`
	Accepted  bool                `json:"accepted"`
	Usage     int64               `json:"usage"`
	Remaining int64               `json:"remaining"`
}

func usageFlags(name string) (*flag.FlagSet, *string, *string, *string, *string, *int64) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	orgID := fs.String("org", "", "organization id")
	planID := fs.String("plan", "", "plan id; empty means no active plan")
	workspace := fs.String("workspace", "", "workspace id")
	feature := fs.String("feature", "", "feature key")
	amount := fs.Int64("amount", 1, "units")
	return fs, orgID, planID, workspace, feature, amount
}

func runConsume(ctx context.Context, a *app, args []string) error {
	fs, orgID, planID, workspace, feature, amount := usageFlags("consume")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := requireFeature(*feature)
	if err != nil {
		return err
	}
	ws, err := parseWorkspace(*workspace)
	if err != nil {
		return err
	}
	if err := a.engine(ctx); err != nil {
		return err
	}
	org, err := a.organization(ctx, *orgID, *planID)
	if err != nil {
		return err
	}

	res := consumeResult{Feature: f, Amount: *amount}
	if ws.Valid {
		if res.Accepted, err = a.svc.ConsumeInWorkspace(ctx, org, ws.UUID, f, *amount); err != nil {
			return err
		}
		if res.Usage, err = a.svc.GetWorkspaceUsage(ctx, org, ws.UUID, f); err != nil {
			return err
		}
		if res.Remaining, err = a.svc.GetWorkspaceRemainingUsage(ctx, org, ws.UUID, f); err != nil {
			return err
		}
	} else {
		if res.Accepted, err = a.svc.ConsumeFeature(ctx, org, f, *amount); err != nil {
			return err
		}
		if res.Usage, err = a.svc.GetCurrentUsage(ctx, org, f); err != nil {
			return err
		}
		if res.Remaining, err = a.svc.GetRemainingUsage(ctx, org, f); err != nil {
			return err
		}
	}

	if err := writeJSON(res); err != nil {
		return err
	}
	if !res.Accepted {
		return errLimitExceeded
	}
	return nil
}

func runUnconsume(ctx context.Context, a *app, args []string) error {
	fs, orgID, planID, workspace, feature, amount := usageFlags("unconsume")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := requireFeature(*feature)
	if err != nil {
		return err
	}
	ws, err := parseWorkspace(*workspace)
	if err != nil {
		return err
	}
	if err := a.engine(ctx); err != nil {
		return err
	}
	org, err := a.organization(ctx, *orgID, *planID)
	if err != nil {
		return err
	}

	res := consumeResult{Feature: f, Amount: *amount, Accepted: true}
	if ws.Valid {
		if err := a.svc.UnconsumeInWorkspace(ctx, org, ws.UUID, f, *amount); err != nil {
			return err
		}
		res.Usage, err = a.svc.GetWorkspaceUsage(ctx, org, ws.UUID, f)
	} else {
		if err := a.svc.UnconsumeFeature(ctx, org, f, *amount); err != nil {
			return err
		}
		res.Usage, err = a.svc.GetCurrentUsage(ctx, org, f)
	}
	if err != nil {
		return err
	}
	return writeJSON(res)
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	orgID := fs.String("org", "", "organization id")
	feature := fs.String("feature", "", "feature key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID("org", *orgID)
	if err != nil {
		return err
	}
	f, err := requireFeature(*feature)
	if err != nil {
		return err
	}
	if err := a.engine(ctx); err != nil {
		return err
	}

	records, err := a.tracker.History(ctx, id, f)
	if err != nil {
		return err
	}
	if records == nil {
		records = []entitlement.UsageRecord{}
	}
	return writeJSON(records)
}

func runOverride(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("override", flag.ContinueOnError)
	orgID := fs.String("org", "", "organization id")
	feature := fs.String("feature", "", "feature key")
	value := fs.String("value", "", "true, false, -1 for unlimited or a non-negative limit")
	reason := fs.String("reason", "", "why the override was granted")
	expires := fs.Duration("expires", 0, "lifetime of the override; 0 never expires")
	remove := fs.Bool("delete", false, "delete the override instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID("org", *orgID)
	if err != nil {
		return err
	}
	f, err := requireFeature(*feature)
	if err != nil {
		return err
	}

	if *remove {
		return a.store.DeleteOverride(ctx, id, f)
	}

	if *value == "" {
		return fmt.Errorf("%w: -value", errMissingFlag)
	}
	v, err := entitlement.ParseValue(*value)
	if err != nil {
		return err
	}

	o := entitlement.Override{
		OrganizationID: id,
		Feature:        f,
		Value:          v,
		Reason:         *reason,
	}
	if *expires > 0 {
		at := time.Now().Add(*expires)
		o.ExpiresAt = &at
	}
	if err := a.store.SaveOverride(ctx, o); err != nil {
		return err
	}

	a.log.InfoContext(ctx, "override saved",
		logger.Feature(string(f)),
		"organization_id", id,
		"value", v.String(),
	)
	return nil
}

func runAllocate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("allocate", flag.ContinueOnError)
	orgID := fs.String("org", "", "organization id")
	workspace := fs.String("workspace", "", "workspace id")
	feature := fs.String("feature", "", "feature key")
	allocated := fs.Int64("limit", 0, "units carved out for the workspace; -1 for unlimited")
	remove := fs.Bool("delete", false, "delete the allocation instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	wsID, err := parseID("workspace", *workspace)
	if err != nil {
		return err
	}
	f, err := requireFeature(*feature)
	if err != nil {
		return err
	}

	if *remove {
		return a.store.DeleteAllocation(ctx, wsID, f)
	}

	id, err := parseID("org", *orgID)
	if err != nil {
		return err
	}
	if *allocated < entitlement.Unlimited {
		return fmt.Errorf("%w: -limit must be -1 or greater", errInvalidFlag)
	}
	return a.store.SaveAllocation(ctx, entitlement.Allocation{
		WorkspaceID:    wsID,
		OrganizationID: id,
		Feature:        f,
		Allocated:      *allocated,
	})
}

type healthStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func runHealth(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 5*time.Second, "per-check timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.usageStore(ctx); err != nil {
		a.log.ErrorContext(ctx, "usage backend unavailable", logger.Error(err))
	}

	names := make([]string, 0, len(a.checks))
	for name := range a.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed bool
	statuses := make([]healthStatus, 0, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, *timeout)
		err := a.checks[name](checkCtx)
		cancel()

		st := healthStatus{Name: name, OK: err == nil}
		if err != nil {
			st.Error = err.Error()
			failed = true
		}
		statuses = append(statuses, st)
	}

	if err := writeJSON(statuses); err != nil {
		return err
	}
	if failed {
		return errUnhealthy
	}
	return nil
}
