package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

const (
	fieldTotal        = "total"
	fieldOrganization = "org"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
	workspacePrefix   = "ws:"
)

// ErrUnexpectedReply is returned when a script reply cannot be decoded.
var ErrUnexpectedReply = errors.New("redisstore.errors.unexpected_reply")

// Store implements entitlement.UsageStore and entitlement.UsageHistoryStore
// over Redis. Each operation is a single script call, so it is atomic per
// window without client-side locking.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

var (
	_ entitlement.UsageStore        = (*Store)(nil)
	_ entitlement.UsageHistoryStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the namespace of every key. Default "usage".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long a window is kept after it ends.
// Lifetime windows never expire. Default 90 days.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store over the client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    "usage",
		retention: 90 * 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Usage implements entitlement.UsageStore.
func (s *Store) Usage(ctx context.Context, key entitlement.UsageKey) (int64, error) {
	field := fieldTotal
	if key.WorkspaceID.Valid {
		field = workspaceField(key.WorkspaceID.UUID)
	}

	n, err := s.client.HGet(ctx, s.windowKey(key), field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// InitWindow implements entitlement.UsageStore.
func (s *Store) InitWindow(ctx context.Context, key entitlement.UsageKey) (entitlement.UsageRecord, error) {
	reply, err := initScript.Run(ctx, s.client,
		[]string{s.windowKey(key), s.indexKey(key.OrganizationID, key.Feature)},
		keyField(key), s.now().UnixMilli(), s.expireAt(key.Window), indexMember(key.Window), key.Window.StartsAt.Unix(),
		s.indexCutoff(key.Window),
	).Int64Slice()
	if err != nil {
		return entitlement.UsageRecord{}, err
	}
	if len(reply) != 3 {
		return entitlement.UsageRecord{}, ErrUnexpectedReply
	}

	return record(key.OrganizationID, key.Feature, key.Window, keyField(key), reply[0], reply[1], reply[2])
}

// Increment implements entitlement.UsageStore.
func (s *Store) Increment(ctx context.Context, key entitlement.UsageKey, amount int64) (int64, error) {
	n, _, err := s.increment(ctx, key, amount, entitlement.Unlimited)
	return n, err
}

// IncrementWithin implements entitlement.UsageStore.
func (s *Store) IncrementWithin(ctx context.Context, key entitlement.UsageKey, amount, limit int64) (int64, bool, error) {
	return s.increment(ctx, key, amount, limit)
}

func (s *Store) increment(ctx context.Context, key entitlement.UsageKey, amount, limit int64) (int64, bool, error) {
	reply, err := incrementScript.Run(ctx, s.client,
		[]string{s.windowKey(key), s.indexKey(key.OrganizationID, key.Feature)},
		keyField(key), amount, limit, s.now().UnixMilli(), s.expireAt(key.Window),
		indexMember(key.Window), key.Window.StartsAt.Unix(), s.indexCutoff(key.Window),
	).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(reply) != 2 {
		return 0, false, ErrUnexpectedReply
	}
	return reply[0], reply[1] == 1, nil
}

// Decrement implements entitlement.UsageStore.
func (s *Store) Decrement(ctx context.Context, key entitlement.UsageKey, amount int64) (int64, error) {
	return decrementScript.Run(ctx, s.client,
		[]string{s.windowKey(key)},
		keyField(key), amount, s.now().UnixMilli(),
	).Int64()
}

// History implements entitlement.UsageHistoryStore. Windows that already
// expired are skipped.
func (s *Store) History(ctx context.Context, orgID uuid.UUID, f entitlement.Feature) ([]entitlement.UsageRecord, error) {
	members, err := s.client.ZRevRange(ctx, s.indexKey(orgID, f), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	windows := make([]entitlement.Window, 0, len(members))
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			w, err := parseIndexMember(m)
			if err != nil {
				return err
			}
			windows = append(windows, w)
			cmds = append(cmds, pipe.HGetAll(ctx, s.windowKeyOf(orgID, f, w)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []entitlement.UsageRecord
	for i, cmd := range cmds {
		fields := cmd.Val()
		created, _ := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
		updated, _ := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64)

		var rows []entitlement.UsageRecord
		for name, raw := range fields {
			if name != fieldOrganization && !strings.HasPrefix(name, workspacePrefix) {
				continue
			}
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, errors.Join(ErrUnexpectedReply, err)
			}
			rec, err := record(orgID, f, windows[i], name, n, created, updated)
			if err != nil {
				return nil, err
			}
			rows = append(rows, rec)
		}

		slices.SortFunc(rows, func(a, b entitlement.UsageRecord) int {
			return strings.Compare(a.WorkspaceID.UUID.String(), b.WorkspaceID.UUID.String())
		})
		out = append(out, rows...)
	}
	return out, nil
}

// windowKey shares the {organization:feature} hash tag with indexKey so
// both keys of a script land in one cluster slot.
func (s *Store) windowKey(key entitlement.UsageKey) string {
	return s.windowKeyOf(key.OrganizationID, key.Feature, key.Window)
}

func (s *Store) windowKeyOf(orgID uuid.UUID, f entitlement.Feature, w entitlement.Window) string {
	return fmt.Sprintf("%s:{%s:%s}:%s", s.prefix, orgID, f, indexMember(w))
}

func (s *Store) indexKey(orgID uuid.UUID, f entitlement.Feature) string {
	return fmt.Sprintf("%s:{%s:%s}:windows", s.prefix, orgID, f)
}

func (s *Store) expireAt(w entitlement.Window) int64 {
	if w.Unbounded() {
		return 0
	}
	return w.EndsAt.Add(s.retention).Unix()
}

// indexCutoff is the start of the oldest window still retained: a window
// expires once its end plus retention has passed, which holds exactly for the
// windows starting before the one containing now minus retention.
func (s *Store) indexCutoff(w entitlement.Window) int64 {
	if w.Unbounded() {
		return 0
	}
	return entitlement.CurrentWindow(w.Period, s.now().Add(-s.retention)).StartsAt.Unix()
}

func indexMember(w entitlement.Window) string {
	return fmt.Sprintf("%s:%d", w.Period, w.StartsAt.Unix())
}

func parseIndexMember(m string) (entitlement.Window, error) {
	period, start, ok := strings.Cut(m, ":")
	if !ok {
		return entitlement.Window{}, fmt.Errorf("%w: index member %q", ErrUnexpectedReply, m)
	}
	ts, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return entitlement.Window{}, errors.Join(ErrUnexpectedReply, err)
	}
	return entitlement.CurrentWindow(entitlement.Period(period), time.Unix(ts, 0)), nil
}

func keyField(key entitlement.UsageKey) string {
	if key.WorkspaceID.Valid {
		return workspaceField(key.WorkspaceID.UUID)
	}
	return fieldOrganization
}

func workspaceField(id uuid.UUID) string {
	return workspacePrefix + id.String()
}

// record builds the UsageRecord of one hash field. IDs are derived from the
// window and field so they are stable across reads.
func record(orgID uuid.UUID, f entitlement.Feature, w entitlement.Window, field string, usage, createdMs, updatedMs int64) (entitlement.UsageRecord, error) {
	var ws uuid.NullUUID
	if id, ok := strings.CutPrefix(field, workspacePrefix); ok {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return entitlement.UsageRecord{}, errors.Join(ErrUnexpectedReply, err)
		}
		ws = uuid.NullUUID{UUID: parsed, Valid: true}
	}

	name := fmt.Sprintf("%s:%s:%s:%s", orgID, f, indexMember(w), field)
	return entitlement.UsageRecord{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		OrganizationID: orgID,
		WorkspaceID:    ws,
		Feature:        f,
		CurrentUsage:   usage,
		Period:         w.Period,
		PeriodStartsAt: w.StartsAt,
		PeriodEndsAt:   w.EndsAtPtr(),
		CreatedAt:      time.UnixMilli(createdMs).UTC(),
		UpdatedAt:      time.UnixMilli(updatedMs).UTC(),
	}, nil
}
