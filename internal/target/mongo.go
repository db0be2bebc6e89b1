package target

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"claimant-consumer/internal/domain"
)

const mongoTargetName = "mongodb"

// BulkWriter is the part of *mongo.Collection the target uses.
type BulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// MongoTarget stores each transformed document under its natural identifier,
// with the source coordinates kept in a _source sub-document.
type MongoTarget struct {
	collection func(name string) BulkWriter
	tables     Tables
	now        func() time.Time
}

func NewMongoTarget(db *mongo.Database, tables Tables) *MongoTarget {
	return newMongoTarget(func(name string) BulkWriter { return db.Collection(name) }, tables)
}

func newMongoTarget(collection func(name string) BulkWriter, tables Tables) *MongoTarget {
	return &MongoTarget{collection: collection, tables: tables, now: time.Now}
}

func (t *MongoTarget) Upsert(ctx context.Context, topic string, records []domain.Processed[domain.TransformationResult]) error {
	if len(records) == 0 {
		return nil
	}
	name, err := t.tables.lookup(topic)
	if err != nil {
		return err
	}

	now := t.now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		var doc bson.M
		if err := bson.UnmarshalExtJSON(r.Value.Transformed, false, &doc); err != nil {
			return fmt.Errorf("record %s: transformed document is not JSON: %w", r.Record, err)
		}
		e := r.Value.Extract
		doc["_id"] = e.ID
		doc["_source"] = bson.M{
			"action":          e.Action.String(),
			"source_ts":       sourceTime(e),
			"source_ts_field": e.TimestampField,
			"kafka_topic":     r.Record.Topic,
			"kafka_partition": r.Record.Partition,
			"kafka_offset":    r.Record.Offset,
			"updated_at":      now,
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": e.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	if _, err := t.collection(name).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return unavailable(mongoTargetName, "upsert", err)
	}
	return nil
}

func (t *MongoTarget) Delete(ctx context.Context, topic string, requests []domain.DeleteRequest) error {
	if len(requests) == 0 {
		return nil
	}
	name, err := t.tables.lookup(topic)
	if err != nil {
		return err
	}

	ids := make([]string, len(requests))
	for i, r := range requests {
		ids[i] = r.ID
	}

	models := []mongo.WriteModel{
		mongo.NewDeleteManyModel().SetFilter(bson.M{"_id": bson.M{"$in": ids}}),
	}
	if _, err := t.collection(name).BulkWrite(ctx, models); err != nil {
		return unavailable(mongoTargetName, "delete", err)
	}
	return nil
}
