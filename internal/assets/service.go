package assets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tagvault/tagvault/internal/shared"
)

const listPageSize = 20

// Service implements asset and category use cases on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// AssetInput carries the raw form values for creating or editing an asset.
// Parsing happens here so the handlers stay a thin translation layer.
type AssetInput struct {
	Name            string
	Tag             string
	SerialNumber    string
	PurchaseDate    string
	PurchaseCost    string
	Vendor          string
	StorageLocation string
	Status          string
	Description     string
	CategoryID      string
}

// CategoryInput carries the form values for creating or editing a category.
type CategoryInput struct {
	Name        string
	Description string
}

// Dashboard returns aggregate counters for the current UTC month.
func (s *Service) Dashboard(ctx context.Context) (DashboardStats, error) {
	now := s.now().UTC()
	return s.repo.Stats(ctx, now.Year(), now.Month())
}

// List returns one page of assets plus pagination metadata.
func (s *Service) List(ctx context.Context, page int) ([]Asset, shared.Pagination, error) {
	total, err := s.repo.CountAssets(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, listPageSize, total)
	items, err := s.repo.ListAssets(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, p, nil
}

// Get fetches one asset by id.
func (s *Service) Get(ctx context.Context, id int64) (*Asset, error) {
	return s.repo.GetAsset(ctx, id)
}

// Create validates and persists a new asset. createdBy records the acting
// user; validation surfaces the first failed rule only.
func (s *Service) Create(ctx context.Context, createdBy int64, in AssetInput) (int64, error) {
	purchaseDate, err := parsePurchaseDate(in.PurchaseDate,
		"Invalid purchase date format. Please use the date picker or YYYY-MM-DD format.")
	if err != nil {
		return 0, err
	}
	purchaseCost, err := parsePurchaseCost(in.PurchaseCost)
	if err != nil {
		return 0, err
	}

	categoryID, catOK := parseID(in.CategoryID)
	switch {
	case in.Name == "" || in.Tag == "" || in.Status == "" || !catOK:
		return 0, shared.Invalid("general", "Asset Name, Asset Tag, Status, and Category are required.")
	case !ValidStatus(in.Status):
		return 0, shared.Invalid("status", "Invalid status.")
	}

	if taken, err := s.repo.TagExists(ctx, in.Tag, 0); err != nil {
		return 0, err
	} else if taken {
		return 0, shared.Invalid("asset_tag", fmt.Sprintf("Asset Tag %s already exists.", in.Tag))
	}
	if in.SerialNumber != "" {
		if taken, err := s.repo.SerialExists(ctx, in.SerialNumber, 0); err != nil {
			return 0, err
		} else if taken {
			return 0, shared.Invalid("serial_number", fmt.Sprintf("Serial Number %s already exists.", in.SerialNumber))
		}
	}
	if _, err := s.repo.GetCategory(ctx, categoryID); err != nil {
		if err == shared.ErrNotFound {
			return 0, shared.Invalid("category", "Selected category does not exist.")
		}
		return 0, err
	}

	now := s.now().UTC()
	asset := Asset{
		Name:            in.Name,
		Tag:             in.Tag,
		SerialNumber:    in.SerialNumber,
		PurchaseDate:    purchaseDate,
		PurchaseCost:    purchaseCost,
		Vendor:          in.Vendor,
		StorageLocation: in.StorageLocation,
		Status:          in.Status,
		Description:     in.Description,
		AddedOn:         now,
		LastUpdatedOn:   now,
		CategoryID:      categoryID,
		CreatedBy:       &createdBy,
	}
	id, err := s.repo.CreateAsset(ctx, asset)
	if err != nil {
		return 0, mapAssetRace(err, in)
	}
	return id, nil
}

// Update validates and rewrites an existing asset. added_on and the creator
// are preserved; last_updated_on is refreshed even when no field changed.
func (s *Service) Update(ctx context.Context, id int64, in AssetInput) error {
	current, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return err
	}

	if in.Tag != current.Tag {
		if taken, err := s.repo.TagExists(ctx, in.Tag, id); err != nil {
			return err
		} else if taken {
			return shared.Invalid("asset_tag", fmt.Sprintf("Asset Tag %s already exists.", in.Tag))
		}
	}
	if in.SerialNumber != "" && in.SerialNumber != current.SerialNumber {
		if taken, err := s.repo.SerialExists(ctx, in.SerialNumber, id); err != nil {
			return err
		} else if taken {
			return shared.Invalid("serial_number", fmt.Sprintf("Serial Number %s already exists.", in.SerialNumber))
		}
	}

	purchaseDate, err := parsePurchaseDate(in.PurchaseDate,
		"Invalid purchase date. Please use the date picker or YYYY-MM-DD format.")
	if err != nil {
		return err
	}
	purchaseCost, err := parsePurchaseCost(in.PurchaseCost)
	if err != nil {
		return err
	}

	categoryID, catOK := parseID(in.CategoryID)
	switch {
	case in.Name == "" || in.Tag == "" || in.Status == "" || !catOK:
		return shared.Invalid("general", "Asset Name, Asset Tag, Status, and Category are required.")
	case !ValidStatus(in.Status):
		return shared.Invalid("status", "Invalid status.")
	}
	if _, err := s.repo.GetCategory(ctx, categoryID); err != nil {
		if err == shared.ErrNotFound {
			return shared.Invalid("category", "Selected category does not exist.")
		}
		return err
	}

	updated := *current
	updated.Name = in.Name
	updated.Tag = in.Tag
	updated.SerialNumber = in.SerialNumber
	updated.PurchaseDate = purchaseDate
	updated.PurchaseCost = purchaseCost
	updated.Vendor = in.Vendor
	updated.StorageLocation = in.StorageLocation
	updated.Status = in.Status
	updated.Description = in.Description
	updated.CategoryID = categoryID
	updated.LastUpdatedOn = s.now().UTC()

	if err := s.repo.UpdateAsset(ctx, updated); err != nil {
		return mapAssetRace(err, in)
	}
	return nil
}

// Delete removes an asset by id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteAsset(ctx, id)
}

// Categories lists all categories ordered by name.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CategoriesWithCounts lists categories with their asset counts.
func (s *Service) CategoriesWithCounts(ctx context.Context) ([]CategoryWithCount, error) {
	return s.repo.ListCategoriesWithCounts(ctx)
}

// GetCategory fetches one category by id.
func (s *Service) GetCategory(ctx context.Context, id int64) (*Category, error) {
	return s.repo.GetCategory(ctx, id)
}

// CreateCategory validates and persists a new category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (int64, error) {
	if in.Name == "" {
		return 0, shared.Invalid("name", "Category Name is required.")
	}
	if taken, err := s.repo.CategoryNameExists(ctx, in.Name, 0); err != nil {
		return 0, err
	} else if taken {
		return 0, shared.Invalid("name", fmt.Sprintf("Category %s already exists.", in.Name))
	}
	id, err := s.repo.CreateCategory(ctx, Category{Name: in.Name, Description: in.Description})
	if err != nil {
		if err == ErrCategoryNameTaken {
			return 0, shared.Invalid("name", fmt.Sprintf("Category %s already exists.", in.Name))
		}
		return 0, err
	}
	return id, nil
}

// UpdateCategory validates and rewrites an existing category.
func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) error {
	current, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if in.Name == "" {
		return shared.Invalid("name", "Category name is required.")
	}
	if in.Name != current.Name {
		if taken, err := s.repo.CategoryNameExists(ctx, in.Name, id); err != nil {
			return err
		} else if taken {
			return shared.Invalid("name", fmt.Sprintf("Category name %q already exists.", in.Name))
		}
	}
	if err := s.repo.UpdateCategory(ctx, Category{ID: id, Name: in.Name, Description: in.Description}); err != nil {
		if err == ErrCategoryNameTaken {
			return shared.Invalid("name", fmt.Sprintf("Category name %q already exists.", in.Name))
		}
		return err
	}
	return nil
}

// DeleteCategory removes a category; the repository rejects the delete with
// a conflict while any asset still references it.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

func parsePurchaseDate(raw, message string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, shared.Invalid("purchase_date", message)
	}
	return &t, nil
}

func parsePurchaseCost(raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return nil, shared.Invalid("purchase_cost", "Invalid purchase cost. Please enter a non-negative number.")
	}
	return &f, nil
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// mapAssetRace converts unique-constraint races into the same messages the
// pre-checks produce.
func mapAssetRace(err error, in AssetInput) error {
	switch err {
	case ErrTagTaken:
		return shared.Invalid("asset_tag", fmt.Sprintf("Asset Tag %s already exists.", in.Tag))
	case ErrSerialTaken:
		return shared.Invalid("serial_number", fmt.Sprintf("Serial Number %s already exists.", in.SerialNumber))
	}
	return err
}
