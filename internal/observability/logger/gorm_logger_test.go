package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/reconcile/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{`INSERT INTO "idempotency_records" ("natural_key") VALUES ($1) ON CONFLICT DO NOTHING`, "INSERT", "idempotency_records"},
		{"UPDATE invoices SET status = 'paid' WHERE id = ? AND status = 'unpaid'", "UPDATE", "invoices"},
		{"SELECT id, email FROM guest_orders WHERE order_number = ?", "SELECT", "guest_orders"},
		{"", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		operation, table := describeSQL(tc.sql)
		if operation != tc.operation || table != tc.table {
			t.Fatalf("describeSQL(%q) = %s %s, want %s %s", tc.sql, operation, table, tc.operation, tc.table)
		}
	}
}

func TestGormLoggerConfigFor(t *testing.T) {
	if cfg := GormLoggerConfigFor("debug", 0); cfg.Level != gormlogger.Info || cfg.SlowThreshold != defaultSlowQuery {
		t.Fatalf("unexpected debug config: %+v", cfg)
	}
	if cfg := GormLoggerConfigFor("info", time.Second); cfg.Level != gormlogger.Warn || cfg.SlowThreshold != time.Second {
		t.Fatalf("unexpected info config: %+v", cfg)
	}
	if cfg := GormLoggerConfigFor("silent", 0); cfg.Level != gormlogger.Silent {
		t.Fatalf("unexpected silent config: %+v", cfg)
	}
}

func TestTraceLogsFailuresWithChannel(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig())

	ctx := obscontext.WithChannel(context.Background(), "payment_webhook")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	sql := func() (string, int64) { return `INSERT INTO "credit_notes" ("id") VALUES ($1)`, 0 }

	l.Trace(ctx, time.Now(), sql, errors.New("no such table: credit_notes"))

	entries := logs.FilterMessage("gorm.query").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 query log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %s", entries[0].Level)
	}
	if fields["channel"] != "payment_webhook" || fields["request_id"] != "req-1" {
		t.Fatalf("expected correlation fields, got %v", fields)
	}
	if fields["table"] != "credit_notes" || fields["operation"] != "INSERT" {
		t.Fatalf("expected table and operation, got %v", fields)
	}
}

func TestTraceSkipsRecordNotFoundAndFastQueries(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql := func() (string, int64) { return "SELECT * FROM campaign_recipients WHERE tracking_id = ?", 0 }

	l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), sql, nil)

	if n := logs.Len(); n != 0 {
		t.Fatalf("expected no logs, got %d", n)
	}
}

func TestTraceWarnsOnSlowQuery(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: time.Millisecond})
	sql := func() (string, int64) {
		return "UPDATE guest_orders SET user_id = ? WHERE id = ? AND user_id IS NULL", 1
	}

	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)

	entries := logs.FilterMessage("gorm.query").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one slow query warning, got %v", entries)
	}
	if entries[0].ContextMap()["rows_affected"] != int64(1) {
		t.Fatalf("expected rows_affected, got %v", entries[0].ContextMap())
	}
}

func TestLogModeDoesNotMutateReceiver(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	quiet := l.LogMode(gormlogger.Silent).(*GormLogger)
	if quiet.level != gormlogger.Silent || l.level != gormlogger.Warn {
		t.Fatalf("unexpected levels: base=%v derived=%v", l.level, quiet.level)
	}
}
