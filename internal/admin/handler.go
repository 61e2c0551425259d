// Package admin serves the /admin/* dashboard endpoints. Every route must sit
// behind auth.RequireAuth and auth.RequireAdmin.
package admin

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/auth"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// DefaultSuspiciousThreshold flags an address once it has created more accounts than this.
const DefaultSuspiciousThreshold = 3

const defaultSearchLimit = 50

// Store defines database operations needed by admin handlers.
// Satisfied by *store.PostgresStore.
type Store interface {
	GetStats(ctx context.Context, since time.Time) (*store.Stats, error)

	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd store.UserUpdate) (*store.User, error)
	SetUserBanned(ctx context.Context, id uuid.UUID, banned bool) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error

	ListSearches(ctx context.Context, limit int) ([]store.SearchRecord, error)
	GetSearchResults(ctx context.Context, searchID uuid.UUID) ([]store.BusinessResult, error)

	ListIPUsage(ctx context.Context) ([]store.IPUsage, error)
	SetIPBlocked(ctx context.Context, ip string, blocked bool) error
}

// SessionCache drops cached sessions of banned or deleted users.
// Satisfied by *store.RedisStore.
type SessionCache interface {
	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error
}

// Handler holds dependencies for the admin endpoints.
type Handler struct {
	PS Store
	RS SessionCache

	// SuspiciousThreshold defaults to DefaultSuspiciousThreshold.
	SuspiciousThreshold int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Routes mounts the admin endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Get("/users", h.ListUsers)
	r.Patch("/users/{id}", h.UpdateUser)
	r.Post("/users/{id}/ban", h.BanUser)
	r.Post("/users/{id}/unban", h.UnbanUser)
	r.Delete("/users/{id}", h.DeleteUser)
	r.Get("/searches", h.ListSearches)
	r.Get("/searches/{id}/results", h.SearchResults)
	r.Get("/ip-usage", h.ListIPUsage)
	r.Post("/ip-usage/{ip}/block", h.BlockIP)
	r.Post("/ip-usage/{ip}/unblock", h.UnblockIP)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) threshold() int {
	if h.SuspiciousThreshold > 0 {
		return h.SuspiciousThreshold
	}
	return DefaultSuspiciousThreshold
}

// idParam parses the {id} path segment, writing a 400 when it is not a UUID.
func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		web.BadRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// Stats handles GET /admin/stats. "Today" is the current UTC day.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	since := h.now().UTC().Truncate(24 * time.Hour)
	st, err := h.PS.GetStats(r.Context(), since)
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, st)
}

// ListUsers handles GET /admin/users, newest first.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.PS.ListUsers(r.Context())
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, struct {
		Users []store.User `json:"users"`
	}{users})
}

// UpdateUser handles PATCH /admin/users/{id} with any of
// {"remainingSearches": n, "isAdmin": bool, "isPremium": bool}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in struct {
		RemainingSearches *int  `json:"remainingSearches"`
		IsAdmin           *bool `json:"isAdmin"`
		IsPremium         *bool `json:"isPremium"`
	}
	if err := web.DecodeJSON(w, r, &in, 1<<10); err != nil {
		web.BadRequest(w, "error decoding request body")
		return
	}
	if in.RemainingSearches != nil && *in.RemainingSearches < 0 {
		web.BadRequest(w, "remainingSearches must not be negative")
		return
	}

	upd := store.UserUpdate{RemainingSearches: in.RemainingSearches, IsPremium: in.IsPremium}
	if in.IsAdmin != nil {
		role := store.RoleUser
		if *in.IsAdmin {
			role = store.RoleAdmin
		}
		upd.Role = &role
	}

	u, err := h.PS.UpdateUser(r.Context(), id, upd)
	if errors.Is(err, pgx.ErrNoRows) {
		web.NotFound(w, "User not found.")
		return
	}
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.LogInfo(r, "admin updated user", "target_user_id", id)
	web.JSON(w, http.StatusOK, u)
}

// BanUser handles POST /admin/users/{id}/ban. The user's sessions are dropped with it.
func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if self, _ := auth.UserIDFromContext(r.Context()); self == id {
		web.BadRequest(w, "You cannot ban yourself.")
		return
	}

	if !h.setBanned(w, r, id, true) {
		return
	}
	if err := h.RS.DeleteAllUserSessions(r.Context(), id); err != nil {
		web.LogWarn(r, "failed to delete banned user's sessions from redis", "error", err)
	}
	if err := h.PS.DeleteAllUserSessions(r.Context(), id); err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.LogInfo(r, "admin banned user", "target_user_id", id)
	web.OK(w, "user banned")
}

// UnbanUser handles POST /admin/users/{id}/unban.
func (h *Handler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if !h.setBanned(w, r, id, false) {
		return
	}
	web.LogInfo(r, "admin unbanned user", "target_user_id", id)
	web.OK(w, "user unbanned")
}

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, id uuid.UUID, banned bool) bool {
	err := h.PS.SetUserBanned(r.Context(), id, banned)
	if errors.Is(err, pgx.ErrNoRows) {
		web.NotFound(w, "User not found.")
		return false
	}
	if err != nil {
		web.InternalServerError(w, r, err)
		return false
	}
	return true
}

// DeleteUser handles DELETE /admin/users/{id}. Searches and results cascade.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if self, _ := auth.UserIDFromContext(r.Context()); self == id {
		web.BadRequest(w, "You cannot delete yourself.")
		return
	}

	if err := h.RS.DeleteAllUserSessions(r.Context(), id); err != nil {
		web.LogWarn(r, "failed to delete user's sessions from redis", "error", err)
	}
	err := h.PS.DeleteUser(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		web.NotFound(w, "User not found.")
		return
	}
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.LogInfo(r, "admin deleted user", "target_user_id", id)
	web.OK(w, "user deleted")
}

// ListSearches handles GET /admin/searches?limit=N, newest first.
func (h *Handler) ListSearches(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > store.MaxSearchListLimit {
			web.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := h.PS.ListSearches(r.Context(), limit)
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, struct {
		Searches []store.SearchRecord `json:"searches"`
	}{recs})
}

// SearchResults handles GET /admin/searches/{id}/results in ranked order.
func (h *Handler) SearchResults(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	results, err := h.PS.GetSearchResults(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		web.NotFound(w, "Search not found.")
		return
	}
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	if results == nil {
		results = []store.BusinessResult{}
	}
	web.JSON(w, http.StatusOK, struct {
		Results []store.BusinessResult `json:"results"`
	}{results})
}

// IPUsageView is one row of GET /admin/ip-usage.
type IPUsageView struct {
	store.IPUsage
	Suspicious bool `json:"suspicious"`
}

// ListIPUsage handles GET /admin/ip-usage, most accounts first.
func (h *Handler) ListIPUsage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.PS.ListIPUsage(r.Context())
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	out := make([]IPUsageView, 0, len(rows))
	for _, row := range rows {
		out = append(out, IPUsageView{IPUsage: row, Suspicious: row.AccountCount > h.threshold()})
	}
	web.JSON(w, http.StatusOK, struct {
		IPUsage []IPUsageView `json:"ipUsage"`
	}{out})
}

// BlockIP handles POST /admin/ip-usage/{ip}/block.
func (h *Handler) BlockIP(w http.ResponseWriter, r *http.Request) {
	h.setIPBlocked(w, r, true)
}

// UnblockIP handles POST /admin/ip-usage/{ip}/unblock.
func (h *Handler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	h.setIPBlocked(w, r, false)
}

func (h *Handler) setIPBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	addr, err := netip.ParseAddr(chi.URLParam(r, "ip"))
	if err != nil {
		web.BadRequest(w, "invalid ip address")
		return
	}
	if err := h.PS.SetIPBlocked(r.Context(), addr.String(), blocked); err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.LogInfo(r, "admin changed ip block", "ip", addr.String(), "blocked", blocked)
	if blocked {
		web.OK(w, "ip blocked")
	} else {
		web.OK(w, "ip unblocked")
	}
}
