package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/restful-users/apiserver/internal/apierr"
	"github.com/rs/zerolog/hlog"
)

type contextKey string

const contextPrincipalKey contextKey = "principal"

// APIResponse is the envelope around every successful response.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorResponse is the body of every failed response.
type ErrorResponse struct {
	Status   int      `json:"status"`
	Error    string   `json:"error"`
	Messages []string `json:"messages"`
	Path     string   `json:"path"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, APIResponse{Success: true, Message: message, Data: data})
}

// writeError reports err using its kind. Internal failures are logged
// with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apierr.KindOf(err)
	if kind == apierr.Internal {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	writeJSON(w, kind.Status(), ErrorResponse{
		Status:   kind.Status(),
		Error:    kind.Label(),
		Messages: apierr.Messages(err),
		Path:     r.URL.Path,
	})
}

func parseUserID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "userID"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apierr.ValidationErr(fmt.Sprintf("id: must be a positive integer, got '%s'", raw))
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apierr.ValidationErr("Malformed JSON request body")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.Wrap(apierr.Validation, err, "Malformed JSON request body")
	}
	return nil
}

// baseURL returns scheme://host for building absolute links.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host
}
