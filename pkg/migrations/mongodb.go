package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/multierr"
)

// sourceIndexes support replay audits by source position and change time.
var sourceIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "_source.kafka_partition", Value: 1}, {Key: "_source.kafka_offset", Value: 1}},
		Options: options.Index().SetName("idx_source_position"),
	},
	{
		Keys:    bson.D{{Key: "_source.source_ts", Value: -1}},
		Options: options.Index().SetName("idx_source_ts"),
	},
}

// EnsureMongoCollections creates the source indexes on every target collection.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database, collections []string) error {
	var errs error
	for _, name := range collections {
		_, err := db.Collection(name).Indexes().CreateMany(ctx, sourceIndexes)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			errs = multierr.Append(errs, fmt.Errorf("collection %s: %w", name, err))
		}
	}
	return errs
}
