package logger

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestTraceLogsSlowQueryAtWarn(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	log := NewGormLogger(GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: time.Millisecond,
	})

	begin := time.Now().Add(-50 * time.Millisecond)
	log.Trace(context.Background(), begin, func() (string, int64) {
		return "SELECT id FROM aggregator_orders", 1
	}, nil)

	entries := logs.FilterLevelExact(zap.WarnLevel).All()
	if len(entries) != 1 {
		t.Fatalf("expected one warn entry for a slow query, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "SELECT" {
		t.Fatalf("expected operation SELECT, got %v", fields["operation"])
	}
}

func TestTraceSkipsFastQueryBelowWarn(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	log := NewGormLogger(GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: time.Minute,
	})
	log.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	if logs.Len() != 0 {
		t.Fatalf("expected no entries for a fast query at warn level, got %d", logs.Len())
	}
}

func TestTruncateSQLCapsLongStatements(t *testing.T) {
	long := "INSERT INTO aggregator_orders VALUES (" + strings.Repeat("x", maxLoggedSQL) + ")"
	got := truncateSQL(long)
	if len(got) != maxLoggedSQL+3 {
		t.Fatalf("expected truncation to %d+ellipsis, got len %d", maxLoggedSQL, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}

	if truncateSQL("  SELECT 1  ") != "SELECT 1" {
		t.Fatalf("short statements pass through trimmed")
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM sales":                     "SELECT",
		"  insert into sales values (1)":          "INSERT",
		"WITH cte AS (SELECT 1) SELECT * FROM c":  "SELECT",
		"UPDATE aggregator_orders SET status='x'": "UPDATE",
		"":                                        "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
