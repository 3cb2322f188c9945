package gateway

import (
	"encoding/json"
	"net/http"

	"milecal/pkg/logging"
)

// ActionReauthGoogle is the re-authentication action code. Clients must
// treat it as a signal to restart the primary OAuth flow rather than
// retry the failed request.
const ActionReauthGoogle = "REAUTH_GOOGLE"

// Stable client-facing error messages. Provider detail never appears
// here; it is logged server-side only.
const (
	MsgAuthenticationRequired = "Authentication required"
	MsgAccessDenied           = "Access denied"
	MsgAuthExpired            = "Google authentication expired"
	MsgProviderFailed         = "Authentication failed"
	MsgInternalError          = "Internal server error"
)

// ErrorBody is the structured error envelope: a stable error message,
// a human-readable detail (or audit struct), and an optional action
// code for recoverable conditions.
type ErrorBody struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
	Action  string      `json:"action,omitempty"`
}

// DenialDetails echoes the authorization decision inputs for audit.
type DenialDetails struct {
	Role     string `json:"role"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Path     string `json:"path"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Gateway", err, "Failed to encode response body")
	}
}

// WriteError writes a structured error body.
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	WriteJSON(w, status, body)
}
