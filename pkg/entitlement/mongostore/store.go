package mongostore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

// DefaultCollection holds one document per usage window.
const DefaultCollection = "usage_windows"

// window is the document of one (organization, feature, window).
// Organization is nil until the organization-level counter is first written.
type window struct {
	ID             string           `bson:"_id"`
	OrganizationID string           `bson:"organization_id"`
	Feature        string           `bson:"feature"`
	Period         string           `bson:"period"`
	StartsAt       time.Time        `bson:"starts_at"`
	EndsAt         *time.Time       `bson:"ends_at,omitempty"`
	ExpiresAt      *time.Time       `bson:"expires_at,omitempty"`
	Total          int64            `bson:"total"`
	Organization   *int64           `bson:"organization,omitempty"`
	Workspaces     map[string]int64 `bson:"workspaces,omitempty"`
	CreatedAt      time.Time        `bson:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at"`
}

// Store implements entitlement.UsageStore and entitlement.UsageHistoryStore
// over a MongoDB collection.
type Store struct {
	coll      *mongo.Collection
	retention time.Duration
	now       func() time.Time
}

var (
	_ entitlement.UsageStore        = (*Store)(nil)
	_ entitlement.UsageHistoryStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	collection string
	retention  time.Duration
	now        func() time.Time
}

// WithCollection overrides DefaultCollection.
func WithCollection(name string) Option {
	return func(o *storeOptions) {
		if name != "" {
			o.collection = name
		}
	}
}

// WithRetention sets how long a bounded window is kept after it ends.
// Expiry is enforced by a TTL index. Default 90 days.
func WithRetention(d time.Duration) Option {
	return func(o *storeOptions) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithClock sets the time source for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates the store and ensures its indexes.
func New(ctx context.Context, db *mongo.Database, opts ...Option) (*Store, error) {
	o := storeOptions{
		collection: DefaultCollection,
		retention:  90 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		coll:      db.Collection(o.collection),
		retention: o.retention,
		now:       o.now,
	}

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "feature", Value: 1}, {Key: "starts_at", Value: -1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateIndexes, err)
	}
	return s, nil
}

// Usage implements entitlement.UsageStore.
func (s *Store) Usage(ctx context.Context, key entitlement.UsageKey) (int64, error) {
	w, err := s.find(ctx, key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.usage(key), nil
}

// InitWindow implements entitlement.UsageStore.
func (s *Store) InitWindow(ctx context.Context, key entitlement.UsageKey) (entitlement.UsageRecord, error) {
	if err := s.ensure(ctx, key); err != nil {
		return entitlement.UsageRecord{}, err
	}

	field := writeField(key)
	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: documentID(key)}, {Key: field, Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: int64(0)}}}},
	)
	if err != nil {
		return entitlement.UsageRecord{}, err
	}

	w, err := s.find(ctx, key)
	if err != nil {
		return entitlement.UsageRecord{}, err
	}
	return w.record(key.WorkspaceID, w.counter(key)), nil
}

// Increment implements entitlement.UsageStore.
func (s *Store) Increment(ctx context.Context, key entitlement.UsageKey, amount int64) (int64, error) {
	n, _, err := s.IncrementWithin(ctx, key, amount, entitlement.Unlimited)
	return n, err
}

// IncrementWithin implements entitlement.UsageStore. The quota condition is
// part of the update filter, so the check and the increment are one atomic
// document update.
func (s *Store) IncrementWithin(ctx context.Context, key entitlement.UsageKey, amount, limit int64) (int64, bool, error) {
	if limit != entitlement.Unlimited && amount > limit {
		n, err := s.Usage(ctx, key)
		return n, false, err
	}

	if err := s.ensure(ctx, key); err != nil {
		return 0, false, err
	}

	filter := bson.D{{Key: "_id", Value: documentID(key)}}
	if limit != entitlement.Unlimited {
		field := checkField(key)
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: field, Value: bson.D{{Key: "$lte", Value: limit - amount}}}},
			bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: false}}}},
		}})
	}

	inc := bson.D{{Key: "total", Value: amount}, {Key: writeField(key), Value: amount}}
	update := bson.D{
		{Key: "$inc", Value: inc},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: s.now().UTC()}}},
	}

	var w window
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, err := s.Usage(ctx, key)
		return n, false, err
	}
	if err != nil {
		return 0, false, err
	}
	return w.usage(key), true, nil
}

// Decrement implements entitlement.UsageStore. A pipeline update clamps the
// key's counter at zero and adjusts the total by the same delta.
func (s *Store) Decrement(ctx context.Context, key entitlement.UsageKey, amount int64) (int64, error) {
	field := writeField(key)
	current := bson.D{{Key: "$ifNull", Value: bson.A{"$" + field, int64(0)}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "_dec", Value: bson.D{{Key: "$min", Value: bson.A{current, amount}}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: field, Value: bson.D{{Key: "$subtract", Value: bson.A{current, "$_dec"}}}},
			{Key: "total", Value: bson.D{{Key: "$subtract", Value: bson.A{"$total", "$_dec"}}}},
			{Key: "updated_at", Value: s.now().UTC()},
		}}},
		{{Key: "$unset", Value: "_dec"}},
	}

	var w window
	err := s.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: documentID(key)}, {Key: field, Value: bson.D{{Key: "$exists", Value: true}}}},
		pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return s.Usage(ctx, key)
	}
	if err != nil {
		return 0, err
	}
	return w.usage(key), nil
}

// History implements entitlement.UsageHistoryStore. Windows removed by the
// TTL index are gone.
func (s *Store) History(ctx context.Context, orgID uuid.UUID, f entitlement.Feature) ([]entitlement.UsageRecord, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "organization_id", Value: orgID.String()}, {Key: "feature", Value: string(f)}},
		options.Find().SetSort(bson.D{{Key: "starts_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}

	var windows []window
	if err := cur.All(ctx, &windows); err != nil {
		return nil, err
	}

	var out []entitlement.UsageRecord
	for _, w := range windows {
		if w.Organization != nil {
			out = append(out, w.record(uuid.NullUUID{}, *w.Organization))
		}

		ids := make([]string, 0, len(w.Workspaces))
		for id := range w.Workspaces {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		for _, id := range ids {
			ws, err := uuid.Parse(id)
			if err != nil {
				return nil, errors.Join(ErrCorruptDocument, err)
			}
			out = append(out, w.record(uuid.NullUUID{UUID: ws, Valid: true}, w.Workspaces[id]))
		}
	}
	return out, nil
}

// ensure creates the window document if it does not exist yet.
func (s *Store) ensure(ctx context.Context, key entitlement.UsageKey) error {
	now := s.now().UTC()
	doc := bson.D{
		{Key: "organization_id", Value: key.OrganizationID.String()},
		{Key: "feature", Value: string(key.Feature)},
		{Key: "period", Value: string(key.Window.Period)},
		{Key: "starts_at", Value: key.Window.StartsAt},
		{Key: "total", Value: int64(0)},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}
	if !key.Window.Unbounded() {
		doc = append(doc,
			bson.E{Key: "ends_at", Value: key.Window.EndsAt},
			bson.E{Key: "expires_at", Value: key.Window.EndsAt.Add(s.retention)},
		)
	}

	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: documentID(key)}},
		bson.D{{Key: "$setOnInsert", Value: doc}},
		options.UpdateOne().SetUpsert(true),
	)
	// Concurrent upserts of a new window race on _id; the loser finds the document.
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (s *Store) find(ctx context.Context, key entitlement.UsageKey) (window, error) {
	var w window
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: documentID(key)}}).Decode(&w)
	return w, err
}

// usage is what Usage(key) reads from the document.
func (w window) usage(key entitlement.UsageKey) int64 {
	if key.WorkspaceID.Valid {
		return w.Workspaces[key.WorkspaceID.UUID.String()]
	}
	return w.Total
}

// counter is the key's own counter.
func (w window) counter(key entitlement.UsageKey) int64 {
	if key.WorkspaceID.Valid {
		return w.Workspaces[key.WorkspaceID.UUID.String()]
	}
	if w.Organization == nil {
		return 0
	}
	return *w.Organization
}

func (w window) record(ws uuid.NullUUID, usage int64) entitlement.UsageRecord {
	orgID, _ := uuid.Parse(w.OrganizationID)
	name := w.ID + ":" + ws.UUID.String()

	var ends *time.Time
	if w.EndsAt != nil {
		e := w.EndsAt.UTC()
		ends = &e
	}

	return entitlement.UsageRecord{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		OrganizationID: orgID,
		WorkspaceID:    ws,
		Feature:        entitlement.Feature(w.Feature),
		CurrentUsage:   usage,
		Period:         entitlement.Period(w.Period),
		PeriodStartsAt: w.StartsAt.UTC(),
		PeriodEndsAt:   ends,
		CreatedAt:      w.CreatedAt.UTC(),
		UpdatedAt:      w.UpdatedAt.UTC(),
	}
}

func documentID(key entitlement.UsageKey) string {
	return key.WindowKey()
}

// checkField is the counter IncrementWithin compares against the limit.
func checkField(key entitlement.UsageKey) string {
	if key.WorkspaceID.Valid {
		return writeField(key)
	}
	return "total"
}

// writeField is the key's own counter.
func writeField(key entitlement.UsageKey) string {
	if key.WorkspaceID.Valid {
		return fmt.Sprintf("workspaces.%s", key.WorkspaceID.UUID)
	}
	return "organization"
}
