package repository

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"chat-dashboard/internal/domain"
)

func TestUserInsertArgsMatchColumns(t *testing.T) {
	open := strings.Index(insertUserSQL, "(")
	closeIdx := strings.Index(insertUserSQL, ")")
	columns := strings.Split(insertUserSQL[open+1:closeIdx], ",")
	placeholders := regexp.MustCompile(`\$\d+`).FindAllString(insertUserSQL, -1)

	verified := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	login := verified.Add(time.Second)
	args := userInsertArgs(domain.User{ID: "u1", Email: "a@b.com", EmailVerifiedAt: &verified, LastLoggedInAt: &login})

	if len(columns) != len(args) || len(placeholders) != len(args) {
		t.Fatalf("columns=%d placeholders=%d args=%d", len(columns), len(placeholders), len(args))
	}
	idx := -1
	for i, c := range columns {
		if strings.TrimSpace(c) == "last_logged_in_at" {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("expected last_logged_in_at to be inserted")
	}
	if got, ok := args[idx].(*time.Time); !ok || got == nil || !got.Equal(login) {
		t.Fatalf("expected last login arg at %d, got %v", idx, args[idx])
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsNotFound(fmt.Errorf("load: %w", pgx.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to be not found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatalf("unexpected not found")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not a unique violation")
	}
}
