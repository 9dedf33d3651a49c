package security

import (
	"net/http"

	"github.com/noah-isme/backend-invoice/internal/common"
)

// BodyLimit caps request payloads. Declared oversize bodies are rejected
// up front; bodies without a length fail when the handler reads past Max.
type BodyLimit struct {
	Max int64
}

// Middleware rejects requests whose Content-Length exceeds Max with HTTP 413
// and bounds every other body with http.MaxBytesReader.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
