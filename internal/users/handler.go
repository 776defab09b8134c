package users

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
	"github.com/tagvault/tagvault/internal/view"
)

// Handler wires HTTP endpoints for user administration. Every route is
// admin-only.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	guard          authz.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, guard authz.Middleware) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		guard:          guard,
	}
}

// MountRoutes registers user administration routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequireUser)
	r.Use(h.guard.Require(authz.ActionUserManage))

	r.Get("/", h.listUsers)
	r.Get("/add", h.showAddUser)
	r.Post("/add", h.handleAddUser)
	r.Get("/edit/{id}", h.showEditUser)
	r.Post("/edit/{id}", h.handleEditUser)
	r.Post("/delete/{id}", h.handleDeleteUser)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/assets/", "danger", shared.UserSafeMessage(err))
		return
	}
	h.render(w, r, "pages/users_list.html", "User Management", map[string]any{
		"PageTitle":    "User Management",
		"PageSubtitle": "View and manage users",
		"Users":        accounts,
	}, http.StatusOK)
}

func (h *Handler) showAddUser(w http.ResponseWriter, r *http.Request) {
	h.renderUserForm(w, r, "Add User", "/admin/users/add", userForm{Role: authz.RoleRegular}, "", http.StatusOK)
}

func (h *Handler) handleAddUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := userForm{
		Name:     r.PostFormValue("name"),
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Role:     r.PostFormValue("role"),
	}
	_, err := h.service.Create(r.Context(), CreateInput{
		Name:            form.Name,
		Username:        form.Username,
		Email:           form.Email,
		Role:            form.Role,
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	})
	if err != nil {
		message, handled := formMessage(err)
		if !handled {
			h.logger.Error("create user", slog.Any("error", err))
		}
		h.renderUserForm(w, r, "Add User", "/admin/users/add", form, message, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/admin/users/", "success",
		fmt.Sprintf("User %s created successfully!", form.Username))
}

func (h *Handler) showEditUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	form := userForm{Name: user.Name, Username: user.Username, Email: user.Email, Role: user.Role}
	h.renderUserForm(w, r, "Edit User", "/admin/users/edit/"+strconv.FormatInt(id, 10), form, "", http.StatusOK)
}

func (h *Handler) handleEditUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor := authz.ActorFromContext(r.Context())
	form := userForm{
		Name:     r.PostFormValue("name"),
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Role:     r.PostFormValue("role"),
	}
	username, err := h.service.Update(r.Context(), actor.ID, id, UpdateInput{
		Name:     form.Name,
		Username: form.Username,
		Email:    form.Email,
		Role:     form.Role,
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.renderError(w, r, err)
			return
		}
		message, handled := formMessage(err)
		if !handled {
			h.logger.Error("update user", slog.Int64("id", id), slog.Any("error", err))
		}
		h.renderUserForm(w, r, "Edit User", "/admin/users/edit/"+strconv.FormatInt(id, 10), form, message, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/admin/users/", "success",
		fmt.Sprintf("User %s updated successfully!", username))
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	actor := authz.ActorFromContext(r.Context())
	username, err := h.service.Delete(r.Context(), actor.ID, id)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			h.renderError(w, r, err)
		case errors.Is(err, ErrOwnsAssets):
			h.redirectWithFlash(w, r, "/admin/users/", "warning",
				fmt.Sprintf("Cannot delete user %s as they have assets associated. Reassign or delete assets first.", username))
		case errors.Is(err, shared.ErrConflict):
			h.redirectWithFlash(w, r, "/admin/users/", "danger", err.Error())
		default:
			h.logger.Error("delete user", slog.Int64("id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/admin/users/", "danger", shared.UserSafeMessage(err))
		}
		return
	}
	h.redirectWithFlash(w, r, "/admin/users/", "success",
		fmt.Sprintf("User %s deleted successfully.", username))
}

// userForm holds re-renderable form values; passwords are never echoed back.
type userForm struct {
	Name     string
	Username string
	Email    string
	Role     string
}

func (h *Handler) renderUserForm(w http.ResponseWriter, r *http.Request, title, action string, form userForm, errorMessage string, status int) {
	h.render(w, r, "pages/user_form.html", title, map[string]any{
		"PageTitle": title,
		"Form":      form,
		"Error":     errorMessage,
		"ActionURL": action,
		"Roles":     []string{authz.RoleAdmin, authz.RoleRegular},
	}, status)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		h.render(w, r, "pages/notfound.html", "Not Found", nil, http.StatusNotFound)
		return
	}
	h.redirectWithFlash(w, r, "/admin/users/", "danger", shared.UserSafeMessage(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		Actor:       authz.ActorFromContext(r.Context()),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formMessage(err error) (string, bool) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return verr.Message, true
	}
	return shared.UserSafeMessage(err), false
}

// HandleDeleteUserForTest exposes the delete handler for tests.
func (h *Handler) HandleDeleteUserForTest(w http.ResponseWriter, r *http.Request) {
	h.handleDeleteUser(w, r)
}
