package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped explicit", fmt.Errorf("outer: %w", NewTransientError(errors.New("x"), 0)), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"message", errors.New("write tcp: broken pipe"), true},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"ftp busy", &textproto.Error{Code: 421, Msg: "too many users"}, true},
		{"ftp missing file", &textproto.Error{Code: 550, Msg: "not found"}, false},
		{"context", context.Canceled, false},
		{"plain", errors.New("boundary not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 501} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}
