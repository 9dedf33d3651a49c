package common

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// UserUUID converts the session user id into a database UUID. Anything that
// does not parse is treated as an unauthenticated request.
func UserUUID(userID string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return pgtype.UUID{}, ErrUnauthorized()
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

// ResourceUUID converts a path identifier into a database UUID. Malformed ids
// cannot name an existing row, so they are reported as not found.
func ResourceUUID(id, resource string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return pgtype.UUID{}, ErrNotFound(resource)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

// EscapeLike escapes the LIKE wildcards in a user supplied search term.
func EscapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
