// Package mongo queries the source MongoDB deployment for per-panel
// high-water marks.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/storage"
	"github.com/ahrav/mongoremodel/pkg/common"
)

var _ migration.UIDSource = (*UIDLookup)(nil)

// UserDetailsCollection holds one document per user with a numeric uid.
const UserDetailsCollection = "userDetails"

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "mongodb"),
}

// Connect opens a client against uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return client, nil
}

// UIDLookup finds the largest uid in <panel>.userDetails. Each panel is a
// separate database.
type UIDLookup struct {
	client  *mongo.Client
	limiter *common.RateLimiter
	tracer  trace.Tracer
}

// NewUIDLookup creates a lookup throttled by limiter. A nil limiter disables
// throttling.
func NewUIDLookup(client *mongo.Client, limiter *common.RateLimiter, tracer trace.Tracer) *UIDLookup {
	return &UIDLookup{client: client, limiter: limiter, tracer: tracer}
}

// MaxUID returns the highest uid for panel. ok is false when the collection
// is empty or its top document has no numeric uid.
func (l *UIDLookup) MaxUID(ctx context.Context, panel string) (int64, bool, error) {
	var (
		uid int64
		ok  bool
	)
	attrs := append(defaultDBAttributes,
		attribute.String("db.name", panel),
		attribute.String("db.collection", UserDetailsCollection),
	)

	err := storage.ExecuteAndTrace(ctx, l.tracer, "mongo.max_uid", attrs, func(ctx context.Context) error {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		opts := options.FindOne().
			SetSort(bson.D{{Key: "uid", Value: -1}}).
			SetProjection(bson.D{{Key: "uid", Value: 1}, {Key: "_id", Value: 0}})

		var doc bson.M
		err := l.client.Database(panel).Collection(UserDetailsCollection).FindOne(ctx, bson.D{}, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("finding max uid for %s: %w", panel, err)
		}

		uid, ok = uidValue(doc["uid"])
		return nil
	})
	return uid, ok, err
}

func uidValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
