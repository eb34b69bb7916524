package syncengine

import (
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simonexmachina/the-work/internal/client/client"
)

var (
	ErrNotInitialized   = errors.New("sync engine is not initialized")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// authMarkers are matched case-insensitively against error messages from
// collaborators that do not expose a status code.
var authMarkers = []string{
	"unauthenticated",
	"unauthorized",
	"permission-denied",
	"permission denied",
	"invalid session",
	"expired session",
	"session expired",
	"token expired",
	"id-token-expired",
	"invalid token",
	"user-token-expired",
}

// IsAuthError reports whether err means the current credentials are no
// longer accepted. Such errors are never worth retrying as-is.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, client.ErrUnauthorized) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// errorCode extracts a short machine-readable code for event payloads.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st.Code().String()
	}
	if errors.Is(err, client.ErrUnauthorized) {
		return codes.Unauthenticated.String()
	}
	if errors.Is(err, client.ErrUnavailable) {
		return codes.Unavailable.String()
	}
	return ""
}
