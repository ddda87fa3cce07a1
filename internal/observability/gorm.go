package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey   = "frost:span"
	timingKey = "frost:timing"
)

// RegisterGORMCallbacks traces gorm creates and updates.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	before := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			ctx, span := cfg.Tracer().Start(tx.Statement.Context, "frost.db."+op,
				trace.WithAttributes(attribute.String("db.table", tx.Statement.Table)))
			tx.Statement.Context = ctx
			tx.InstanceSet(spanKey, span)
		}
	}
	after := func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(spanKey)
		if !ok {
			return
		}
		span := v.(trace.Span)
		if tx.Error != nil {
			span.RecordError(tx.Error)
			span.SetStatus(codes.Error, tx.Error.Error())
		}
		span.SetAttributes(attribute.Int64("db.rows_affected", tx.RowsAffected))
		span.End()
	}

	if err := db.Callback().Create().Before("gorm:create").Register("frost:before_create", before("create")); err != nil {
		return fmt.Errorf("failed to register create callback: %w", err)
	}
	if err := db.Callback().Create().After("gorm:create").Register("frost:after_create", after); err != nil {
		return fmt.Errorf("failed to register create callback: %w", err)
	}
	if err := db.Callback().Update().Before("gorm:update").Register("frost:before_update", before("update")); err != nil {
		return fmt.Errorf("failed to register update callback: %w", err)
	}
	if err := db.Callback().Update().After("gorm:update").Register("frost:after_update", after); err != nil {
		return fmt.Errorf("failed to register update callback: %w", err)
	}
	return nil
}

// RegisterServerTimingCallbacks adds a "db" Server-Timing metric around gorm
// creates and updates.
func RegisterServerTimingCallbacks(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		if m := StartServerTiming(tx.Statement.Context, "db"); m != nil {
			tx.InstanceSet(timingKey, m)
		}
	}
	after := func(tx *gorm.DB) {
		if v, ok := tx.InstanceGet(timingKey); ok {
			v.(*ServerTimingMetric).Stop()
		}
	}
	if err := db.Callback().Create().Before("gorm:create").Register("frost:timing_before_create", before); err != nil {
		return fmt.Errorf("failed to register create callback: %w", err)
	}
	if err := db.Callback().Create().After("gorm:create").Register("frost:timing_after_create", after); err != nil {
		return fmt.Errorf("failed to register create callback: %w", err)
	}
	if err := db.Callback().Update().Before("gorm:update").Register("frost:timing_before_update", before); err != nil {
		return fmt.Errorf("failed to register update callback: %w", err)
	}
	if err := db.Callback().Update().After("gorm:update").Register("frost:timing_after_update", after); err != nil {
		return fmt.Errorf("failed to register update callback: %w", err)
	}
	return nil
}
