// ABOUTME: Account activity recording and the GET /auth/activity handler
// ABOUTME: Successful sign-ups and sign-ins are appended to the store's audit log

package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/2389/identity-gateway/internal/auth"
	"github.com/2389/identity-gateway/internal/store"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100

	msgInvalidLimit = "limit must be between 1 and 100"
)

// ActivityResponse is one entry in the GET /auth/activity response.
type ActivityResponse struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	IP        string         `json:"ip,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// recordActivity appends an entry to the account's activity log. A failed
// write is logged and never fails the sign-in that triggered it.
func (g *Gateway) recordActivity(r *http.Request, accountID string, action store.AuditAction, detail map[string]any) {
	entry := &store.AuditEntry{
		AccountID: accountID,
		Action:    action,
		IP:        g.ips.ClientIP(r),
		Detail:    detail,
	}
	if err := g.store.AppendAuditLog(r.Context(), entry); err != nil {
		g.logger.Warn("recording account activity failed",
			"account_id", accountID,
			"action", action,
			"error", err,
		)
	}
}

// handleActivity handles GET /auth/activity. Requires HTTPAuthMiddleware.
// Returns the caller's own recent sign-ins, newest first.
func (g *Gateway) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityLimit {
			g.sendJSONError(w, http.StatusBadRequest, msgInvalidLimit)
			return
		}
		limit = n
	}

	authCtx := auth.MustFromContext(r.Context())
	entries, err := g.store.ListAuditLog(r.Context(), store.AuditFilter{
		AccountID: &authCtx.AccountID,
		Limit:     limit,
	})
	if err != nil {
		g.logger.Error("listing account activity failed", "account_id", authCtx.AccountID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	response := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, ActivityResponse{
			ID:        e.ID,
			Action:    string(e.Action),
			IP:        e.IP,
			Timestamp: e.Timestamp,
			Detail:    e.Detail,
		})
	}
	g.sendJSON(w, http.StatusOK, response)
}
