package wizard

import (
	"strings"

	"github.com/google/uuid"
)

// Fallback token prefixes. A token with one of these was minted locally and
// never reached the API.
const (
	OfflinePrefix = "OFFLINE-"
	DemoPrefix    = "DEMO-"
)

// Fallback tells why a submission ended with a locally minted token.
type Fallback string

const (
	// FallbackNone means the token came from the API.
	FallbackNone Fallback = ""
	// FallbackOffline means the API could not be reached or its answer could
	// not be decoded.
	FallbackOffline Fallback = "offline"
	// FallbackDemo means the API answered without a token.
	FallbackDemo Fallback = "demo"
)

func fallbackToken(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(id[:8])
}

// IsFallbackToken reports whether token was minted locally.
func IsFallbackToken(token string) bool {
	return strings.HasPrefix(token, OfflinePrefix) || strings.HasPrefix(token, DemoPrefix)
}
