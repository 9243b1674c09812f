package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"deadline", fmt.Errorf("repair: %w", context.DeadlineExceeded), true, "timeout"},
		{"pg connection", &pgconn.PgError{Code: "08006"}, true, "db_connection_error"},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true, "db_connection_error"},
		{"pg unique", &pgconn.PgError{Code: "23505"}, false, "constraint_violation"},
		{"no rows", pgx.ErrNoRows, false, "not_found"},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true, "db_busy"},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false, "db_error"},
		{"net", &net.OpError{Op: "dial", Err: errors.New("boom")}, true, "network_error"},
		{"refused text", errors.New("dial tcp 127.0.0.1:6379: connection refused"), true, "connection_error"},
		{"other", errors.New("weird"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.False(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "dedup:backup_repair:github.com", DedupKey("backup_repair", "github.com"))
	assert.Equal(t, "retry:backup_repair:github.com", FormatRetryKey("backup_repair", "github.com"))
}
