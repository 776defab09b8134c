package assets

import "time"

// Asset status values. The set is closed; anything else fails validation.
const (
	StatusInUse    = "In Use"
	StatusInRepair = "In Repair"
	StatusRetired  = "Retired"
)

// Statuses lists the valid status values in display order.
func Statuses() []string {
	return []string{StatusInUse, StatusInRepair, StatusRetired}
}

// ValidStatus reports whether s is one of the enumerated statuses.
func ValidStatus(s string) bool {
	return s == StatusInUse || s == StatusInRepair || s == StatusRetired
}

// Category is a named classification of assets.
type Category struct {
	ID          int64
	Name        string
	Description string
}

// CategoryWithCount pairs a category with the number of assets referencing
// it. Categories with zero assets report count 0.
type CategoryWithCount struct {
	Category
	AssetCount int
}

// Asset is a tracked physical or licensed item.
type Asset struct {
	ID              int64
	Name            string
	Tag             string
	SerialNumber    string // empty when not recorded
	PurchaseDate    *time.Time
	PurchaseCost    *float64
	Vendor          string
	StorageLocation string
	Status          string
	Description     string
	AddedOn         time.Time // immutable after creation
	LastUpdatedOn   time.Time // refreshed on every successful edit
	CategoryID      int64
	CategoryName    string // populated by list/get joins
	CreatedBy       *int64
	CreatorName     string // populated by list/get joins
}

// DashboardStats aggregates asset counts for the dashboard page.
type DashboardStats struct {
	Total        int
	InUse        int
	InRepair     int
	Retired      int
	NewThisMonth int
}
