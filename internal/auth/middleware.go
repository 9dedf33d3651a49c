package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/common"
)

// TokenParser returns the subject of a valid access token.
type TokenParser interface {
	ParseAccessToken(token string) (string, error)
}

// Middleware wires authentication into HTTP handlers.
type Middleware struct {
	Tokens TokenParser
}

// RequireAuth rejects requests without a valid bearer token. On success the
// subject is stored with common.WithUserID and added to the request logger.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || m.Tokens == nil {
			common.WriteError(w, common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil))
			return
		}
		userID, err := m.Tokens.ParseAccessToken(token)
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("access token rejected")
			common.WriteError(w, err)
			return
		}
		ctx := common.WithUserID(r.Context(), userID)
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", userID)
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
