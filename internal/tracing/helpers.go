package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/onnwee/plaques"

// DBOperation is the kind of ledger statement being traced.
type DBOperation string

// Ledger operations.
const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationDelete DBOperation = "delete"
	DBOperationExec   DBOperation = "exec"
)

// StorageOperation is the kind of object store call being traced.
type StorageOperation string

// Object store operations.
const (
	StorageOperationPut    StorageOperation = "put"
	StorageOperationDelete StorageOperation = "delete"
	StorageOperationHead   StorageOperation = "head"
)

// PlaqueIDKey is the attribute key for the plaque a span concerns.
const PlaqueIDKey = attribute.Key("plaque.id")

// PlaqueID returns the plaque id attribute.
func PlaqueID(id int) attribute.KeyValue {
	return PlaqueIDKey.Int(id)
}

// StartDBSpan starts a client span for a ledger statement.
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, "visits", tracing.DBOperationQuery)
//	defer func() { endSpan(err) }()
func StartDBSpan(ctx context.Context, table string, operation DBOperation, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	name := string(operation)
	if table != "" {
		name += " " + table
	}

	attrs = append(attrs,
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", string(operation)),
	)
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}

	return start(ctx, name, trace.SpanKindClient, attrs)
}

// StartStorageSpan starts a client span for an object store call.
func StartStorageSpan(ctx context.Context, bucket, key string, operation StorageOperation) (context.Context, func(error)) {
	return start(ctx, "storage "+string(operation), trace.SpanKindClient, []attribute.KeyValue{
		attribute.String("storage.bucket", bucket),
		attribute.String("storage.key", key),
		attribute.String("storage.operation", string(operation)),
	})
}

// StartSpan starts an internal span for a workflow step.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	return start(ctx, name, trace.SpanKindInternal, attrs)
}

func start(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the span in ctx.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
