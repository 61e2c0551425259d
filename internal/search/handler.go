// handler.go -- HTTP handlers for POST /search and GET /searches.
package search

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/auth"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
)

// defaultHistoryLimit is the page size of GET /searches when no limit is given.
const defaultHistoryLimit = 50

// Handler exposes the Service over HTTP. Routes must sit behind auth.RequireAuth.
type Handler struct {
	Svc *Service
}

// Search handles POST /search with body {city, businessType, radiusKm}.
// Returns 200 with the ranked businesses, or {"code","message"} with the mapped status.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		web.Unauthorized(w, "User must be authenticated.")
		return
	}

	var q Query
	if err := web.DecodeJSON(w, r, &q, 4<<10); err != nil {
		web.LogWarn(r, "failed to decode search input", "error", err)
		web.BadRequest(w, decodeMessage(err))
		return
	}

	resp, err := h.Svc.Search(r.Context(), Request{
		UserID: userID,
		IP:     web.ClientIP(r),
		Query:  q,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	web.LogInfo(r, "search completed",
		"user_id", userID,
		"city", q.City,
		"business_type", q.BusinessType,
		"radius_km", q.RadiusKm,
		"results", resp.TotalResults,
		"cached", resp.Cached,
	)
	web.JSON(w, http.StatusOK, resp)
}

// History handles GET /searches?limit=N -- the caller's own searches, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		web.Unauthorized(w, "User must be authenticated.")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > store.MaxSearchListLimit {
			web.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := h.Svc.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, struct {
		Searches []store.SearchRecord `json:"searches"`
	}{recs})
}

// decodeMessage picks the 400 message for a body that failed to decode.
func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field == "radiusKm" {
		return radiusMessage
	}
	return "City and business type are required."
}

// writeError maps a search error to its response. Internal causes are logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *Error
	if !errors.As(err, &se) {
		web.InternalServerError(w, r, err)
		return
	}

	switch se.Code {
	case web.CodeInternal:
		web.LogError(r, "search failed", "error", se.Err)
	default:
		web.LogInfo(r, "search refused", "code", se.Code, "reason", se.Reason, "error", se.Err)
	}
	web.Error(w, se.Code, se.Message)
}
