package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"milecal/internal/gateway"
	"milecal/internal/oauth"
	"milecal/internal/role"
	"milecal/internal/session"
	"milecal/pkg/logging"
)

// defaultDescription fills in for milestones without one.
const defaultDescription = "GitHub Milestone"

// eventDuration is the fixed length of a milestone event.
const eventDuration = time.Hour

// milestonePayload is the client-supplied milestone to schedule.
type milestonePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueOn       string `json:"due_on"`
}

type createEventRequest struct {
	Milestone *milestonePayload `json:"milestone"`
}

type createEventResponse struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Event     *CreatedEvent `json:"event"`
	EventLink string        `json:"eventLink"`
}

// Handler serves calendar event creation.
type Handler struct {
	client *Client
	google *oauth.Google
	store  session.Store
}

// NewHandler wires event creation to the API client, the primary
// token lifecycle manager, and the session store.
func NewHandler(client *Client, google *oauth.Google, store session.Store) *Handler {
	return &Handler{client: client, google: google, store: store}
}

// CreateEvent handles POST /calendar/event. The role gate runs first,
// then payload validation, then the provider call with one silent
// refresh-and-retry before the caller is told to re-authenticate.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := gateway.SessionFromContext(r.Context())
	if !ok || !sess.Authenticated() {
		gateway.WriteError(w, http.StatusUnauthorized, gateway.ErrorBody{
			Error:   "Google authentication required",
			Details: "Please authenticate with Google to add calendar events",
			Action:  gateway.ActionReauthGoogle,
		})
		return
	}

	if sess.Role == role.Free {
		gateway.WriteJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":       gateway.MsgAccessDenied,
			"details":     "Calendar event creation requires a premium or admin account",
			"currentRole": sess.Role,
		})
		return
	}

	var body createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Milestone == nil || body.Milestone.DueOn == "" {
		gateway.WriteError(w, http.StatusBadRequest, gateway.ErrorBody{
			Error:   "Invalid milestone data",
			Details: "Milestone must have a due date",
		})
		return
	}

	due, err := time.Parse(time.RFC3339, body.Milestone.DueOn)
	if err != nil {
		gateway.WriteError(w, http.StatusBadRequest, gateway.ErrorBody{
			Error:   "Invalid milestone data",
			Details: "Milestone due date must be a valid timestamp",
		})
		return
	}

	if sess.PrimaryToken == nil || sess.PrimaryToken.AccessToken == "" {
		gateway.WriteError(w, http.StatusUnauthorized, gateway.ErrorBody{
			Error:   "Google authentication required",
			Details: "Please authenticate with Google to add calendar events",
			Action:  gateway.ActionReauthGoogle,
		})
		return
	}

	event := buildEvent(body.Milestone, due)

	created, err := h.client.CreateEvent(r.Context(), sess.PrimaryToken.AccessToken, event)
	if errors.Is(err, ErrUnauthorized) {
		// One silent refresh-and-retry; refreshAndRetry writes the
		// response on every failure path.
		created = h.refreshAndRetry(w, r, sess, event)
		if created == nil {
			return
		}
	} else if err != nil {
		h.writeProviderFailure(w, err)
		return
	}

	logging.Info("Calendar", "Created event %q for session %s",
		created.Summary, logging.TruncateSessionID(sess.ID))

	gateway.WriteJSON(w, http.StatusOK, createEventResponse{
		Success:   true,
		Message:   "Event created successfully",
		Event:     created,
		EventLink: created.HTMLLink,
	})
}

// refreshAndRetry performs the single silent refresh after a rejected
// access token. A failed refresh or a second rejection expires the
// primary credentials and answers with the re-authentication action.
// Returns nil when the response has already been written.
func (h *Handler) refreshAndRetry(w http.ResponseWriter, r *http.Request, sess *session.Session, event Event) *CreatedEvent {
	refreshToken := ""
	if sess.PrimaryToken != nil {
		refreshToken = sess.PrimaryToken.RefreshToken
	}

	token, err := h.google.Refresh(r.Context(), sess.ID, refreshToken)
	if err != nil {
		logging.Warn("Calendar", "Primary refresh failed for session %s: %v",
			logging.TruncateSessionID(sess.ID), err)
		h.expirePrimary(w, r, sess)
		return nil
	}

	if uerr := h.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
		s.PrimaryToken = token
		return nil
	}); uerr != nil {
		logging.Warn("Calendar", "Failed to persist refreshed credentials: %v", uerr)
	}
	sess.PrimaryToken = token

	created, err := h.client.CreateEvent(r.Context(), token.AccessToken, event)
	switch {
	case errors.Is(err, ErrUnauthorized):
		h.expirePrimary(w, r, sess)
		return nil
	case err != nil:
		h.writeProviderFailure(w, err)
		return nil
	}
	return created
}

// expirePrimary drops the stored primary credentials and tells the
// caller to restart the primary flow.
func (h *Handler) expirePrimary(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if uerr := h.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
		s.PrimaryToken = nil
		return nil
	}); uerr != nil {
		logging.Warn("Calendar", "Failed to expire primary credentials: %v", uerr)
	}

	gateway.WriteError(w, http.StatusUnauthorized, gateway.ErrorBody{
		Error:   gateway.MsgAuthExpired,
		Details: "Please re-authenticate with Google",
		Action:  gateway.ActionReauthGoogle,
	})
}

func (h *Handler) writeProviderFailure(w http.ResponseWriter, err error) {
	logging.Error("Calendar", err, "Failed to create calendar event")
	gateway.WriteError(w, http.StatusBadGateway, gateway.ErrorBody{
		Error:   "Failed to create calendar event",
		Details: "The calendar provider did not answer as expected",
	})
}

// buildEvent turns a milestone into a one-hour event anchored at its
// due date.
func buildEvent(m *milestonePayload, due time.Time) Event {
	description := m.Description
	if description == "" {
		description = defaultDescription
	}

	start := due.UTC()
	return Event{
		Summary:     m.Title,
		Description: description,
		Start:       EventTime{DateTime: start.Format(time.RFC3339), TimeZone: "UTC"},
		End:         EventTime{DateTime: start.Add(eventDuration).Format(time.RFC3339), TimeZone: "UTC"},
	}
}
