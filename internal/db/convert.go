package db

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// ParseUUID converts a textual identifier into a pgtype.UUID.
func ParseUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

// UUIDString renders id in canonical form, or "" when it is not set.
func UUIDString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

// UUIDTag is a short stable tag derived from id, used in invoice numbers.
func UUIDTag(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(id.Bytes[:3]))
}

// ParseDate converts a YYYY-MM-DD string into a pgtype.Date.
func ParseDate(value string) (pgtype.Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return pgtype.Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

// DateString renders d as YYYY-MM-DD, or "" when it is not set.
func DateString(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// Date wraps t, keeping only the calendar day.
func Date(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}
