package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/gate"
	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/id"
	"github.com/xraph/gate/meter"
	gatestore "github.com/xraph/gate/store"
	"github.com/xraph/gate/subscription"
)

// Collection name constants.
const (
	colSubscriptions = "gate_subscriptions"
	colUsageEvents   = "gate_usage_events"
	colDecisions     = "gate_decisions"
)

// compile-time interface check
var _ gatestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all gate collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("gate/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return gate.ErrSubscriptionExists
		}
		return fmt.Errorf("gate/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, gate.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("gate/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, principalID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"principal_id": principalID,
			"status": bson.M{"$in": bson.A{
				string(subscription.StatusActive),
				string(subscription.StatusTrialing),
			}},
		}).
		Sort(bson.D{{Key: "period_start", Value: -1}}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, gate.ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("gate/mongo: get active subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, principalID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{"principal_id": principalID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "period_start", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gate/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gate/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return gate.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt time.Time) error {
	t := now()
	q := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Set("cancel_at", cancelAt).
		Set("updated_at", t)

	if time.Now().After(cancelAt) {
		q = q.
			Set("status", string(subscription.StatusCanceled)).
			Set("canceled_at", t)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("gate/mongo: cancel subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return gate.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Usage Store ====================

func (s *Store) AppendUsage(ctx context.Context, records []*meter.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		m := toUsageRecordModel(r)
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			// Skip duplicates for idempotency
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("gate/mongo: append usage: %w", err)
		}
	}
	return nil
}

func (s *Store) SumUsage(ctx context.Context, principalID string, from, to time.Time) (int64, error) {
	pipeline := bson.A{
		bson.M{
			"$match": bson.M{
				"principal_id": principalID,
				"timestamp":    bson.M{"$gte": from, "$lt": to},
			},
		},
		bson.M{
			"$group": bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": "$weight"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colUsageEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("gate/mongo: sum usage: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("gate/mongo: sum usage decode: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

func (s *Store) QueryUsage(ctx context.Context, principalID string, opts meter.QueryOpts) ([]*meter.UsageRecord, error) {
	var models []usageRecordModel

	filter := bson.M{"principal_id": principalID}
	if opts.Endpoint != "" {
		filter["endpoint"] = opts.Endpoint
	}
	ts := bson.M{}
	if !opts.Start.IsZero() {
		ts["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		ts["$lt"] = opts.End
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gate/mongo: query usage: %w", err)
	}

	result := make([]*meter.UsageRecord, len(models))
	for i := range models {
		rec, err := fromUsageRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = rec
	}
	return result, nil
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*usageRecordModel)(nil)).
		Filter(bson.M{"timestamp": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("gate/mongo: purge usage: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Decision Store ====================

func (s *Store) AppendDecisions(ctx context.Context, decisions []*decision.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	for _, d := range decisions {
		m := toDecisionModel(d)
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("gate/mongo: append decision: %w", err)
		}
	}
	return nil
}

func (s *Store) QueryDecisions(ctx context.Context, principalID string, opts decision.QueryOpts) ([]*decision.Decision, error) {
	var models []decisionModel

	filter := bson.M{"principal_id": principalID}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if opts.Passed != nil {
		filter["passed"] = *opts.Passed
	}
	ts := bson.M{}
	if !opts.Start.IsZero() {
		ts["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		ts["$lt"] = opts.End
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gate/mongo: query decisions: %w", err)
	}

	result := make([]*decision.Decision, len(models))
	for i := range models {
		d, err := fromDecisionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) PurgeDecisions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*decisionModel)(nil)).
		Filter(bson.M{"timestamp": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("gate/mongo: purge decisions: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all gate collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "principal_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "principal_id", Value: 1}, {Key: "period_start", Value: -1}}},
		},
		colUsageEvents: {
			{Keys: bson.D{{Key: "principal_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{
				Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colDecisions: {
			{Keys: bson.D{{Key: "principal_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "passed", Value: 1}}},
		},
	}
}
