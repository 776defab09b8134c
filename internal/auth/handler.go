package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
	"github.com/tagvault/tagvault/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	guard          authz.Middleware
	validator      *validator.Validate
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
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/logout", h.handleLogout)
		r.Get("/profile/edit", h.showProfile)
		r.Post("/profile/edit", h.handleProfile)
	})
}

type registerForm struct {
	Name            string
	Username        string `validate:"required"`
	Email           string `validate:"omitempty,email"`
	Password        string
	ConfirmPassword string
	Role            string
}

type loginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type formErrors map[string]string

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	if authz.ActorFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/assets/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/register.html", "Register", map[string]any{"Form": registerForm{}, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if authz.ActorFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/assets/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Name:            r.PostFormValue("name"),
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
		Role:            r.PostFormValue("role"),
	}

	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Tag() == "email" {
					errs["email"] = "Enter a valid email address."
				}
			}
		}
	}
	if len(errs) == 0 {
		_, err := h.service.Register(r.Context(), RegisterInput{
			Name:            form.Name,
			Username:        form.Username,
			Email:           form.Email,
			Password:        form.Password,
			ConfirmPassword: form.ConfirmPassword,
			Role:            form.Role,
		})
		if err == nil {
			h.redirectWithFlash(w, r, "/auth/login", "success", "Registration successful! Please log in.")
			return
		}
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			errs[verr.Field] = verr.Message
		} else {
			h.logger.Error("register failed", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
	}
	h.render(w, r, "pages/register.html", "Register", map[string]any{"Form": form, "Errors": errs}, http.StatusBadRequest)
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if authz.ActorFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/assets/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/login.html", "Login", map[string]any{"Form": loginForm{}, "Errors": formErrors{}, "Next": r.URL.Query().Get("next")}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if authz.ActorFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/assets/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	next := r.PostFormValue("next")

	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		errs["general"] = "Invalid username or password."
	}
	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
		if err != nil {
			errs["general"] = "Invalid username or password."
		} else {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				h.logger.Error("session missing during login")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			sess.SetUser(strconv.FormatInt(user.ID, 10))
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Login successful!"})
			http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
			return
		}
	}
	h.render(w, r, "pages/login.html", "Login", map[string]any{"Form": form, "Errors": errs, "Next": next}, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.SetUser("")
		sess.Delete(shared.CSRFSessionKey)
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "You have been logged out."})
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	user, err := h.service.repo.FindByID(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("load profile", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/assets/", "danger", shared.UserSafeMessage(err))
		return
	}
	form := ProfileInput{Name: user.Name, Username: user.Username, Email: user.Email}
	h.render(w, r, "pages/profile_form.html", "Edit Profile", map[string]any{"Form": form, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor := authz.ActorFromContext(r.Context())
	form := ProfileInput{
		Name:               r.PostFormValue("name"),
		Username:           r.PostFormValue("username"),
		Email:              r.PostFormValue("email"),
		CurrentPassword:    r.PostFormValue("current_password"),
		NewPassword:        r.PostFormValue("new_password"),
		ConfirmNewPassword: r.PostFormValue("confirm_new_password"),
	}

	passwordChanged, err := h.service.UpdateProfile(r.Context(), actor.ID, form)
	if err != nil {
		errs := formErrors{}
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			errs[verr.Field] = verr.Message
		} else {
			h.logger.Error("update profile", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
		h.render(w, r, "pages/profile_form.html", "Edit Profile", map[string]any{"Form": form, "Errors": errs}, http.StatusBadRequest)
		return
	}

	message := "Your profile has been updated successfully!"
	if passwordChanged {
		message = "Your profile and password have been updated successfully!"
	}
	h.redirectWithFlash(w, r, "/assets/", "success", message)
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

// safeNext only allows same-site relative redirect targets.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/assets/"
	}
	return next
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleRegisterForTest exposes the POST handler for tests.
func (h *Handler) HandleRegisterForTest(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r)
}
