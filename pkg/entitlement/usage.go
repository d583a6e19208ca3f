package entitlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// UsageKey identifies the counters of one feature in one tracking window.
// Without a workspace the key addresses the organization-level counter for
// writes and the aggregate of all counters of the window for reads.
type UsageKey struct {
	OrganizationID uuid.UUID
	WorkspaceID    uuid.NullUUID
	Feature        Feature
	Window         Window
}

// WindowKey renders the (organization, feature, window) part of the key.
// All counters sharing it are serialized together.
func (k UsageKey) WindowKey() string {
	return fmt.Sprintf("%s:%s:%s:%d", k.OrganizationID, k.Feature, k.Window.Period, k.Window.StartsAt.Unix())
}

// UsageRecord is one persisted usage counter.
type UsageRecord struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	WorkspaceID    uuid.NullUUID `json:"workspace_id"`
	Feature        Feature       `json:"feature"`
	CurrentUsage   int64         `json:"current_usage"`
	Period         Period        `json:"period_type"`
	PeriodStartsAt time.Time     `json:"period_starts_at"`
	PeriodEndsAt   *time.Time    `json:"period_ends_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// UsageStore persists usage counters. Every mutating method must be atomic
// per window key; IncrementWithin must never let two concurrent callers
// jointly overshoot the limit.
type UsageStore interface {
	// Usage returns the workspace counter when the key has a workspace, or the
	// sum of every counter of the window otherwise. Missing rows count as 0.
	Usage(ctx context.Context, key UsageKey) (int64, error)

	// InitWindow returns the key's counter row, creating it with zero usage
	// if the window has none yet.
	InitWindow(ctx context.Context, key UsageKey) (UsageRecord, error)

	// Increment adds amount unconditionally and returns Usage(key).
	Increment(ctx context.Context, key UsageKey, amount int64) (int64, error)

	// IncrementWithin adds amount only if Usage(key)+amount <= limit.
	// A limit of Unlimited skips the check. On rejection nothing changes and
	// the current usage is returned with false.
	IncrementWithin(ctx context.Context, key UsageKey, amount, limit int64) (int64, bool, error)

	// Decrement subtracts amount from the key's own counter, floored at 0,
	// and returns Usage(key).
	Decrement(ctx context.Context, key UsageKey, amount int64) (int64, error)
}

// Fits reports whether amount more units fit next to current usage under
// limit. Under Unlimited it only rejects amounts that would overflow the
// counter. Both current and amount are expected to be non-negative.
func Fits(current, amount, limit int64) bool {
	if limit == Unlimited {
		return amount <= math.MaxInt64-current
	}
	return amount <= limit-current
}

// UsageHistoryStore is implemented by stores that keep past windows.
type UsageHistoryStore interface {
	// History returns every counter of the feature, past windows included,
	// newest window first.
	History(ctx context.Context, orgID uuid.UUID, f Feature) ([]UsageRecord, error)
}

// UsageTracker maps feature definitions onto usage keys for the current
// window and delegates to a UsageStore.
type UsageTracker struct {
	store UsageStore
	now   func() time.Time
}

// NewUsageTracker creates a tracker. A nil clock uses time.Now.
func NewUsageTracker(store UsageStore, now func() time.Time) *UsageTracker {
	if now == nil {
		now = time.Now
	}
	return &UsageTracker{store: store, now: now}
}

// CurrentWindow returns the window of the period containing the current time.
func (t *UsageTracker) CurrentWindow(p Period) Window {
	return CurrentWindow(p, t.now())
}

// Key builds the usage key for the current window.
// Organization-scoped features drop the workspace.
func (t *UsageTracker) Key(def Definition, orgID uuid.UUID, workspace uuid.NullUUID) UsageKey {
	if !def.IsWorkspaceScoped() || workspace.UUID == uuid.Nil {
		workspace = uuid.NullUUID{}
	}
	return UsageKey{
		OrganizationID: orgID,
		WorkspaceID:    workspace,
		Feature:        def.Key,
		Window:         t.CurrentWindow(def.Period),
	}
}

// OrganizationUsage returns organization-wide usage in the current window,
// aggregated across workspaces for workspace-scoped features.
func (t *UsageTracker) OrganizationUsage(ctx context.Context, def Definition, orgID uuid.UUID) (int64, error) {
	n, err := t.store.Usage(ctx, t.Key(def, orgID, uuid.NullUUID{}))
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return n, nil
}

// WorkspaceUsage returns one workspace's usage in the current window.
// For organization-scoped features it equals OrganizationUsage.
func (t *UsageTracker) WorkspaceUsage(ctx context.Context, def Definition, orgID, workspaceID uuid.UUID) (int64, error) {
	n, err := t.store.Usage(ctx, t.Key(def, orgID, uuid.NullUUID{UUID: workspaceID, Valid: true}))
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return n, nil
}

// usage reads the counter addressed by the workspace reference.
func (t *UsageTracker) usage(ctx context.Context, def Definition, orgID uuid.UUID, ws uuid.NullUUID) (int64, error) {
	if ws.Valid {
		return t.WorkspaceUsage(ctx, def, orgID, ws.UUID)
	}
	return t.OrganizationUsage(ctx, def, orgID)
}

// InitWindow returns the current-window row, creating it if needed.
func (t *UsageTracker) InitWindow(ctx context.Context, def Definition, orgID uuid.UUID, workspace uuid.NullUUID) (UsageRecord, error) {
	rec, err := t.store.InitWindow(ctx, t.Key(def, orgID, workspace))
	if err != nil {
		return UsageRecord{}, errors.Join(ErrStorage, err)
	}
	return rec, nil
}

// Increment adds amount without a quota check.
func (t *UsageTracker) Increment(ctx context.Context, def Definition, orgID uuid.UUID, workspace uuid.NullUUID, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	n, err := t.store.Increment(ctx, t.Key(def, orgID, workspace), amount)
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return n, nil
}

// IncrementWithin adds amount only if the result stays within limit.
func (t *UsageTracker) IncrementWithin(ctx context.Context, def Definition, orgID uuid.UUID, workspace uuid.NullUUID, amount, limit int64) (int64, bool, error) {
	if amount < 0 {
		return 0, false, ErrInvalidAmount
	}
	n, ok, err := t.store.IncrementWithin(ctx, t.Key(def, orgID, workspace), amount, limit)
	if err != nil {
		return 0, false, errors.Join(ErrStorage, err)
	}
	return n, ok, nil
}

// Decrement subtracts amount, clamped at zero.
func (t *UsageTracker) Decrement(ctx context.Context, def Definition, orgID uuid.UUID, workspace uuid.NullUUID, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	n, err := t.store.Decrement(ctx, t.Key(def, orgID, workspace), amount)
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return n, nil
}

// History returns all recorded windows of the feature when the store keeps them.
func (t *UsageTracker) History(ctx context.Context, orgID uuid.UUID, f Feature) ([]UsageRecord, error) {
	hs, ok := t.store.(UsageHistoryStore)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	records, err := hs.History(ctx, orgID, f)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return records, nil
}
