package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/restful-users/apiserver/internal/apierr"
	"github.com/restful-users/apiserver/internal/services"
	"github.com/restful-users/apiserver/types"
)

const (
	defaultPage = 0
	defaultSize = 10

	relSelf     = "self"
	relAllUsers = "all-users"
)

// Link is a hypermedia reference attached to a resource.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// UserResource is a user plus its links.
type UserResource struct {
	Content types.User `json:"content"`
	Links   []Link     `json:"links"`
}

// UserHandler provides HTTP handlers for users.
type UserHandler struct {
	userService *services.UserService
	basePath    string
}

func NewUserHandler(userService *services.UserService, basePath string) *UserHandler {
	return &UserHandler{
		userService: userService,
		basePath:    "/" + strings.Trim(basePath, "/"),
	}
}

// UserRouter registers user routes on the given router. requireAdmin
// guards deletion; nil leaves it open.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	basePath string,
	requireAdmin func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, basePath)

	r.Get("/", handler.ListUsers)
	r.Get("/paginated", handler.ListUsersPage)
	r.Post("/", handler.CreateUser)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Put("/", handler.UpdateUser)
		if requireAdmin != nil {
			r.With(requireAdmin).Delete("/", handler.DeleteUser)
		} else {
			r.Delete("/", handler.DeleteUser)
		}
	})
}

// ListUsers returns every user, or a page when any paging parameter is
// present.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Has("page") || query.Has("size") || query.Has("sort") {
		h.ListUsersPage(w, r)
		return
	}

	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resources := make([]UserResource, 0, len(users))
	for _, user := range users {
		resources = append(resources, h.resource(r, user))
	}
	writeSuccess(w, http.StatusOK, "Users retrieved successfully", resources)
}

func (h *UserHandler) ListUsersPage(w http.ResponseWriter, r *http.Request) {
	req, err := parsePageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.userService.ListPage(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Users retrieved successfully", page)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, found, err := h.userService.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, apierr.NotFoundf("User not found with id: %d", id))
		return
	}

	writeSuccess(w, http.StatusOK, "User retrieved successfully", h.resource(r, user))
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input types.User
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.userService.Create(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resource := h.resource(r, created)
	w.Header().Set("Location", resource.Links[0].Href)
	writeSuccess(w, http.StatusCreated, "User created successfully", resource)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var input types.User
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.userService.Update(r.Context(), id, input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User updated successfully", h.resource(r, updated))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	deleted, err := h.userService.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, apierr.NotFoundf("User not found with id: %d", id))
		return
	}

	writeSuccess(w, http.StatusOK, "User deleted successfully", nil)
}

func (h *UserHandler) resource(r *http.Request, user types.User) UserResource {
	collection := baseURL(r) + h.basePath
	return UserResource{
		Content: user,
		Links: []Link{
			{Rel: relSelf, Href: fmt.Sprintf("%s/%d", collection, user.ID)},
			{Rel: relAllUsers, Href: collection},
		},
	}
}

// parsePageRequest reads page, size and sort ("field" or "field,desc").
func parsePageRequest(r *http.Request) (types.PageRequest, error) {
	query := r.URL.Query()
	req := types.PageRequest{Page: defaultPage, Size: defaultSize}

	var messages []string
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			messages = append(messages, fmt.Sprintf("page: must be an integer, got '%s'", raw))
		}
		req.Page = page
	}
	if raw := strings.TrimSpace(query.Get("size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			messages = append(messages, fmt.Sprintf("size: must be an integer, got '%s'", raw))
		}
		req.Size = size
	}
	if raw := strings.TrimSpace(query.Get("sort")); raw != "" {
		field, direction, _ := strings.Cut(raw, ",")
		req.Sort = strings.TrimSpace(field)
		switch strings.ToLower(strings.TrimSpace(direction)) {
		case "", "asc":
		case "desc":
			req.Desc = true
		default:
			messages = append(messages, fmt.Sprintf("sort: unknown direction '%s'", direction))
		}
	}

	if len(messages) > 0 {
		return req, apierr.ValidationErr(messages...)
	}
	return req, nil
}
