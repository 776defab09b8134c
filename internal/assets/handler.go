package assets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
	"github.com/tagvault/tagvault/internal/view"
)

// Handler wires HTTP endpoints for the asset registry.
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

// MountRoutes registers asset routes on the provided router. Every route
// requires an authenticated session; category mutation additionally requires
// the admin role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequireUser)

	r.Get("/", h.showDashboard)
	r.Get("/list", h.listAssets)
	r.Get("/add", h.showAddAsset)
	r.Post("/add", h.handleAddAsset)
	r.Get("/edit/{id}", h.showEditAsset)
	r.Post("/edit/{id}", h.handleEditAsset)
	r.Post("/delete/{id}", h.handleDeleteAsset)

	r.Get("/categories", h.listCategories)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ActionCategoryManage))
		r.Get("/categories/add", h.showAddCategory)
		r.Post("/categories/add", h.handleAddCategory)
		r.Get("/categories/edit/{id}", h.showEditCategory)
		r.Post("/categories/edit/{id}", h.handleEditCategory)
		r.Post("/categories/delete/{id}", h.handleDeleteCategory)
	})
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("load dashboard stats", slog.Any("error", err))
		h.renderError(w, r, err)
		return
	}
	greeting := actor.Username
	if actor.Name != "" {
		greeting = actor.Name
	}
	h.render(w, r, "pages/dashboard.html", "Dashboard", map[string]any{
		"PageTitle":    "Welcome, " + greeting,
		"PageSubtitle": "Your role is: " + actor.Role,
		"Stats":        stats,
	}, http.StatusOK)
}

func (h *Handler) listAssets(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	items, pagination, err := h.service.List(r.Context(), page)
	if err != nil {
		h.logger.Error("list assets", slog.Any("error", err))
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "pages/assets_list.html", "IT Assets", map[string]any{
		"PageTitle":    "Assets Overview",
		"PageSubtitle": "You can view and manage all your IT assets here",
		"Assets":       items,
		"Pagination":   pagination,
	}, http.StatusOK)
}

func (h *Handler) showAddAsset(w http.ResponseWriter, r *http.Request) {
	h.renderAssetForm(w, r, "Add Asset", "/assets/add", AssetInput{Status: StatusInUse}, "", http.StatusOK)
}

func (h *Handler) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor := authz.ActorFromContext(r.Context())
	form := assetFormInput(r)

	_, err := h.service.Create(r.Context(), actor.ID, form)
	if err != nil {
		message, handled := formMessage(err)
		if !handled {
			h.logger.Error("create asset", slog.Any("error", err))
		}
		h.renderAssetForm(w, r, "Add Asset", "/assets/add", form, message, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/assets/list", "success", "Asset added successfully!")
}

func (h *Handler) showEditAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	asset, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	form := AssetInput{
		Name:            asset.Name,
		Tag:             asset.Tag,
		SerialNumber:    asset.SerialNumber,
		Vendor:          asset.Vendor,
		StorageLocation: asset.StorageLocation,
		Status:          asset.Status,
		Description:     asset.Description,
		CategoryID:      strconv.FormatInt(asset.CategoryID, 10),
	}
	if asset.PurchaseDate != nil {
		form.PurchaseDate = asset.PurchaseDate.Format("2006-01-02")
	}
	if asset.PurchaseCost != nil {
		form.PurchaseCost = strconv.FormatFloat(*asset.PurchaseCost, 'f', 2, 64)
	}
	h.renderAssetForm(w, r, "Edit Asset", "/assets/edit/"+strconv.FormatInt(id, 10), form, "", http.StatusOK)
}

func (h *Handler) handleEditAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := assetFormInput(r)

	if err := h.service.Update(r.Context(), id, form); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.renderError(w, r, err)
			return
		}
		message, handled := formMessage(err)
		if !handled {
			h.logger.Error("update asset", slog.Int64("id", id), slog.Any("error", err))
		}
		h.renderAssetForm(w, r, "Edit Asset", "/assets/edit/"+strconv.FormatInt(id, 10), form, message, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/assets/list", "success", "Asset updated successfully!")
}

func (h *Handler) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if !authz.Can(actor, authz.ActionAssetDelete) {
		h.redirectWithFlash(w, r, "/assets/list", "danger", "You do not have permission to delete assets.")
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.renderError(w, r, err)
			return
		}
		h.logger.Error("delete asset", slog.Int64("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/assets/list", "danger", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/assets/list", "success", "Asset deleted successfully!")
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.CategoriesWithCounts(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "pages/categories_list.html", "Asset Categories", map[string]any{
		"PageTitle":    "Categories Overview",
		"PageSubtitle": "You can view and manage asset categories here",
		"Categories":   categories,
	}, http.StatusOK)
}

func (h *Handler) showAddCategory(w http.ResponseWriter, r *http.Request) {
	h.renderCategoryForm(w, r, "Add Category", "/assets/categories/add", CategoryInput{}, "", http.StatusOK)
}

func (h *Handler) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := CategoryInput{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
	}
	if _, err := h.service.CreateCategory(r.Context(), form); err != nil {
		message, handled := formMessage(err)
		if !handled {
			h.logger.Error("create category", slog.Any("error", err))
		}
		h.renderCategoryForm(w, r, "Add Category", "/assets/categories/add", form, message, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/assets/categories", "success", "Category added successfully!")
}

func (h *Handler) showEditCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	form := CategoryInput{Name: category.Name, Description: category.Description}
	h.renderCategoryForm(w, r, "Edit Category", "/assets/categories/edit/"+strconv.FormatInt(id, 10), form, "", http.StatusOK)
}

func (h *Handler) handleEditCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := CategoryInput{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
	}
	if err := h.service.UpdateCategory(r.Context(), id, form); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.renderError(w, r, err)
			return
		}
		message, handled := formMessage(err)
		if !handled {
			h.logger.Error("update category", slog.Int64("id", id), slog.Any("error", err))
		}
		h.renderCategoryForm(w, r, "Edit Category", "/assets/categories/edit/"+strconv.FormatInt(id, 10), form, message, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/assets/categories", "success", "Category updated successfully!")
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, shared.ErrConflict):
			h.redirectWithFlash(w, r, "/assets/categories", "danger", err.Error())
		case errors.Is(err, shared.ErrNotFound):
			h.renderError(w, r, err)
		default:
			h.logger.Error("delete category", slog.Int64("id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/assets/categories", "danger", shared.UserSafeMessage(err))
		}
		return
	}
	h.redirectWithFlash(w, r, "/assets/categories", "success", "Category deleted successfully!")
}

func (h *Handler) renderAssetForm(w http.ResponseWriter, r *http.Request, title, action string, form AssetInput, errorMessage string, status int) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.logger.Error("load categories for form", slog.Any("error", err))
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "pages/asset_form.html", title, map[string]any{
		"PageTitle":  title,
		"Form":       form,
		"Error":      errorMessage,
		"Categories": categories,
		"Statuses":   Statuses(),
		"ActionURL":  action,
	}, status)
}

func (h *Handler) renderCategoryForm(w http.ResponseWriter, r *http.Request, title, action string, form CategoryInput, errorMessage string, status int) {
	h.render(w, r, "pages/category_form.html", title, map[string]any{
		"PageTitle": title,
		"Form":      form,
		"Error":     errorMessage,
		"ActionURL": action,
	}, status)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		h.render(w, r, "pages/notfound.html", "Not Found", nil, http.StatusNotFound)
		return
	}
	h.redirectWithFlash(w, r, "/assets/", "danger", shared.UserSafeMessage(err))
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

func assetFormInput(r *http.Request) AssetInput {
	return AssetInput{
		Name:            r.PostFormValue("asset_name"),
		Tag:             r.PostFormValue("asset_tag"),
		SerialNumber:    r.PostFormValue("serial_number"),
		PurchaseDate:    r.PostFormValue("purchase_date"),
		PurchaseCost:    r.PostFormValue("purchase_cost"),
		Vendor:          r.PostFormValue("vendor"),
		StorageLocation: r.PostFormValue("location"),
		Status:          r.PostFormValue("status"),
		Description:     r.PostFormValue("description"),
		CategoryID:      r.PostFormValue("category"),
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// formMessage extracts the user-facing message from a validation error. The
// second return reports whether the error was an expected validation outcome.
func formMessage(err error) (string, bool) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return verr.Message, true
	}
	return shared.UserSafeMessage(err), false
}

// HandleDeleteAssetForTest exposes the delete handler for tests.
func (h *Handler) HandleDeleteAssetForTest(w http.ResponseWriter, r *http.Request) {
	h.handleDeleteAsset(w, r)
}
