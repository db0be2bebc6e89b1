package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	BatchIDKey     contextKey = "batch_id"
	TopicKey       contextKey = "topic"
	PartitionKey   contextKey = "partition"
	ServiceNameKey contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithBatchID tags every log line of one poll cycle.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

// WithPartition tags log lines emitted while a single topic partition is processed.
func WithPartition(ctx context.Context, topic string, partition int32) context.Context {
	ctx = context.WithValue(ctx, TopicKey, topic)
	return context.WithValue(ctx, PartitionKey, partition)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetBatchID(ctx context.Context) string {
	if batchID, ok := ctx.Value(BatchIDKey).(string); ok {
		return batchID
	}
	return ""
}

func GetPartition(ctx context.Context) (string, int32, bool) {
	topic, ok := ctx.Value(TopicKey).(string)
	if !ok {
		return "", 0, false
	}
	partition, _ := ctx.Value(PartitionKey).(int32)
	return topic, partition, true
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, string(TraceIDKey), traceID)
	}

	if batchID := GetBatchID(ctx); batchID != "" {
		fields = append(fields, string(BatchIDKey), batchID)
	}

	if topic, partition, ok := GetPartition(ctx); ok {
		fields = append(fields, string(TopicKey), topic, string(PartitionKey), partition)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	return fields
}
