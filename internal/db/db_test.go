package db_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/omnirelay/omnirelay/internal/db"
)

func TestParseUUID(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	parsed, err := db.ParseUUID(id)
	if err != nil {
		t.Fatalf("parse %q: %v", id, err)
	}
	if !parsed.Valid {
		t.Fatal("parsed uuid must be valid")
	}
	if got := uuid.UUID(parsed.Bytes).String(); got != id {
		t.Fatalf("round trip = %q, want %q", got, id)
	}

	// Ids arrive from URLs, so arbitrary strings must come back as errors
	// rather than zero values that could match rows.
	for _, bad := range []string{"", "not-a-uuid", "12345"} {
		if _, err := db.ParseUUID(bad); err == nil {
			t.Fatalf("ParseUUID(%q): want error", bad)
		}
	}
}

func TestText_NullableRoundTrip(t *testing.T) {
	t.Parallel()

	if db.Text("").Valid {
		t.Fatal("empty string must map to NULL")
	}
	wrapped := db.Text("hello")
	if !wrapped.Valid || wrapped.String != "hello" {
		t.Fatalf("wrapped = %+v", wrapped)
	}
	if got := db.TextValue(wrapped); got != "hello" {
		t.Fatalf("TextValue = %q", got)
	}
	if got := db.TextValue(db.Text("")); got != "" {
		t.Fatalf("TextValue(NULL) = %q", got)
	}
}
