package github

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"milecal/internal/gateway"
	"milecal/internal/session"
	"milecal/pkg/logging"
)

// noDueDate is the placeholder shown for milestones without one.
const noDueDate = "No due date set"

// MilestoneView is a milestone enriched with display fields the
// frontend consumes directly.
type MilestoneView struct {
	Milestone
	FormattedDueDate  string `json:"formatted_due_date"`
	HasDueDate        bool   `json:"has_due_date"`
	RepositoryPrivate bool   `json:"repository_private"`
}

type milestonesResponse struct {
	Success    bool            `json:"success"`
	Milestones []MilestoneView `json:"milestones"`
	Repository repositoryInfo  `json:"repository"`
}

type repositoryInfo struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Private bool   `json:"private"`
}

// Handler serves the milestone listing proxy.
type Handler struct {
	client *Client
	store  session.Store
}

// NewHandler wires the proxy to its API client and session store.
func NewHandler(client *Client, store session.Store) *Handler {
	return &Handler{client: client, store: store}
}

// Milestones handles GET /github/{owner}/{repo}/milestones: verify
// repository access, list milestones, reshape for display.
func (h *Handler) Milestones(w http.ResponseWriter, r *http.Request) {
	sess, ok := gateway.SessionFromContext(r.Context())
	if !ok || !sess.SecondaryLinked() {
		gateway.WriteError(w, http.StatusUnauthorized, gateway.ErrorBody{
			Error:   "GitHub authentication required",
			Details: "Please authenticate with GitHub to access repositories",
		})
		return
	}

	owner := strings.TrimSpace(chi.URLParam(r, "owner"))
	name := strings.TrimSpace(chi.URLParam(r, "repo"))
	token := sess.SecondaryToken

	repo, err := h.client.Repository(r.Context(), token, owner, name)
	if err != nil {
		h.writeFailure(w, r, sess, owner, name, err)
		return
	}

	milestones, err := h.client.Milestones(r.Context(), token, owner, name)
	if err != nil {
		h.writeFailure(w, r, sess, owner, name, err)
		return
	}

	views := make([]MilestoneView, 0, len(milestones))
	for _, m := range milestones {
		views = append(views, MilestoneView{
			Milestone:         m,
			FormattedDueDate:  formatDueDate(m.DueOn),
			HasDueDate:        m.DueOn != nil,
			RepositoryPrivate: repo.Private,
		})
	}

	logging.Info("GitHub", "Fetched %d milestones from %s/%s (private=%v)",
		len(views), owner, name, repo.Private)

	gateway.WriteJSON(w, http.StatusOK, milestonesResponse{
		Success:    true,
		Milestones: views,
		Repository: repositoryInfo{Owner: owner, Name: name, Private: repo.Private},
	})
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, sess *session.Session, owner, name string, err error) {
	switch {
	case errors.Is(err, ErrRepoNotFound):
		gateway.WriteError(w, http.StatusNotFound, gateway.ErrorBody{
			Error:   "Repository not found or no access",
			Details: "Please verify the repository name and ensure you have access to it",
		})
	case errors.Is(err, ErrUnauthorized):
		// The provider rejected the stored token; there is no refresh
		// path, so drop the link and force a fresh authorization.
		if uerr := h.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
			s.ClearSecondary()
			return nil
		}); uerr != nil {
			logging.Warn("GitHub", "Failed to clear rejected secondary link: %v", uerr)
		}
		gateway.WriteError(w, http.StatusUnauthorized, gateway.ErrorBody{
			Error:   "GitHub authentication required",
			Details: "Please re-authenticate with GitHub",
		})
	default:
		logging.Error("GitHub", err, "Failed to fetch milestones from %s/%s", owner, name)
		gateway.WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "Failed to fetch milestones",
			"details": "GitHub did not answer as expected",
			"repository": map[string]string{
				"owner": owner,
				"name":  name,
			},
		})
	}
}

func formatDueDate(due *time.Time) string {
	if due == nil {
		return noDueDate
	}
	return due.UTC().Format("January 2, 2006")
}
