package assets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagvault/tagvault/internal/platform/db"
	"github.com/tagvault/tagvault/internal/shared"
)

// Uniqueness races that slip past the pre-checks surface as these errors,
// raised from the DB constraints inside the insert/update transaction.
var (
	ErrTagTaken          = errors.New("assets: asset tag taken")
	ErrSerialTaken       = errors.New("assets: serial number taken")
	ErrCategoryNameTaken = errors.New("assets: category name taken")
)

// Repository defines persistence operations for assets and their categories.
type Repository interface {
	ListAssets(ctx context.Context, limit, offset int) ([]Asset, error)
	CountAssets(ctx context.Context) (int, error)
	GetAsset(ctx context.Context, id int64) (*Asset, error)
	CreateAsset(ctx context.Context, asset Asset) (int64, error)
	UpdateAsset(ctx context.Context, asset Asset) error
	DeleteAsset(ctx context.Context, id int64) error
	TagExists(ctx context.Context, tag string, excludeID int64) (bool, error)
	SerialExists(ctx context.Context, serial string, excludeID int64) (bool, error)
	Stats(ctx context.Context, year int, month time.Month) (DashboardStats, error)

	ListCategories(ctx context.Context) ([]Category, error)
	ListCategoriesWithCounts(ctx context.Context) ([]CategoryWithCount, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, category Category) (int64, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CategoryNameExists(ctx context.Context, name string, excludeID int64) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const assetSelect = `
	SELECT a.id, a.name, a.asset_tag, a.serial_number, a.purchase_date,
	       a.purchase_cost, a.vendor, a.storage_location, a.status,
	       a.description, a.added_on, a.last_updated_on, a.category_id,
	       c.name, a.created_by, COALESCE(u.name, '')
	  FROM assets a
	  JOIN asset_categories c ON c.id = a.category_id
	  LEFT JOIN users u ON u.id = a.created_by`

// ListAssets returns a page of assets, newest first, with category and
// creator names resolved.
func (r *PGRepository) ListAssets(ctx context.Context, limit, offset int) ([]Asset, error) {
	rows, err := r.pool.Query(ctx,
		assetSelect+` ORDER BY a.added_on DESC, a.id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *asset)
	}
	return out, rows.Err()
}

// CountAssets returns the total number of assets.
func (r *PGRepository) CountAssets(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assets`).Scan(&n)
	return n, err
}

// GetAsset fetches one asset by primary key.
func (r *PGRepository) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	return scanAsset(r.pool.QueryRow(ctx, assetSelect+` WHERE a.id = $1`, id))
}

// CreateAsset persists a new asset and returns its id.
func (r *PGRepository) CreateAsset(ctx context.Context, asset Asset) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO assets (name, asset_tag, serial_number, purchase_date,
		                     purchase_cost, vendor, storage_location, status,
		                     description, added_on, last_updated_on,
		                     category_id, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		asset.Name, asset.Tag, nullText(asset.SerialNumber),
		nullDate(asset.PurchaseDate), nullFloat(asset.PurchaseCost),
		asset.Vendor, asset.StorageLocation, asset.Status, asset.Description,
		pgtype.Timestamptz{Time: asset.AddedOn, Valid: true},
		pgtype.Timestamptz{Time: asset.LastUpdatedOn, Valid: true},
		asset.CategoryID, nullInt(asset.CreatedBy),
	).Scan(&id)
	if err != nil {
		return 0, mapAssetUniqueViolation(err)
	}
	return id, nil
}

// UpdateAsset rewrites every editable column. added_on and created_by are
// never touched after creation.
func (r *PGRepository) UpdateAsset(ctx context.Context, asset Asset) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assets
		    SET name = $1, asset_tag = $2, serial_number = $3,
		        purchase_date = $4, purchase_cost = $5, vendor = $6,
		        storage_location = $7, status = $8, description = $9,
		        last_updated_on = $10, category_id = $11
		  WHERE id = $12`,
		asset.Name, asset.Tag, nullText(asset.SerialNumber),
		nullDate(asset.PurchaseDate), nullFloat(asset.PurchaseCost),
		asset.Vendor, asset.StorageLocation, asset.Status, asset.Description,
		pgtype.Timestamptz{Time: asset.LastUpdatedOn, Valid: true},
		asset.CategoryID, asset.ID)
	if err != nil {
		return mapAssetUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteAsset removes an asset by id.
func (r *PGRepository) DeleteAsset(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TagExists reports whether another asset already holds the tag.
func (r *PGRepository) TagExists(ctx context.Context, tag string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assets WHERE asset_tag = $1 AND id <> $2)`,
		tag, excludeID).Scan(&exists)
	return exists, err
}

// SerialExists reports whether another asset already holds the serial
// number. Empty serials are not stored, so they never collide.
func (r *PGRepository) SerialExists(ctx context.Context, serial string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assets WHERE serial_number = $1 AND id <> $2)`,
		serial, excludeID).Scan(&exists)
	return exists, err
}

// Stats aggregates dashboard counters in one round trip. NewThisMonth counts
// assets added within the given UTC calendar month.
func (r *PGRepository) Stats(ctx context.Context, year int, month time.Month) (DashboardStats, error) {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	var stats DashboardStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(*) FILTER (WHERE status = $2),
		        COUNT(*) FILTER (WHERE status = $3),
		        COUNT(*) FILTER (WHERE added_on >= $4 AND added_on < $5)
		   FROM assets`,
		StatusInUse, StatusInRepair, StatusRetired,
		pgtype.Timestamptz{Time: monthStart, Valid: true},
		pgtype.Timestamptz{Time: nextMonth, Valid: true},
	).Scan(&stats.Total, &stats.InUse, &stats.InRepair, &stats.Retired, &stats.NewThisMonth)
	return stats, err
}

// ListCategories returns all categories ordered by name, for form selects.
func (r *PGRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, COALESCE(description, '') FROM asset_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCategoriesWithCounts returns all categories with their asset counts,
// including categories that no asset references yet.
func (r *PGRepository) ListCategoriesWithCounts(ctx context.Context) ([]CategoryWithCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, COALESCE(c.description, ''), COUNT(a.id)
		   FROM asset_categories c
		   LEFT JOIN assets a ON a.category_id = c.id
		  GROUP BY c.id, c.name, c.description
		  ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryWithCount
	for rows.Next() {
		var c CategoryWithCount
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.AssetCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategory fetches one category by primary key.
func (r *PGRepository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(description, '') FROM asset_categories WHERE id = $1`,
		id).Scan(&c.ID, &c.Name, &c.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateCategory persists a new category and returns its id.
func (r *PGRepository) CreateCategory(ctx context.Context, category Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO asset_categories (name, description) VALUES ($1, $2) RETURNING id`,
		category.Name, category.Description).Scan(&id)
	if err != nil {
		return 0, mapAssetUniqueViolation(err)
	}
	return id, nil
}

// UpdateCategory rewrites the category's name and description.
func (r *PGRepository) UpdateCategory(ctx context.Context, category Category) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE asset_categories SET name = $1, description = $2 WHERE id = $3`,
		category.Name, category.Description, category.ID)
	if err != nil {
		return mapAssetUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category unless any asset still references it.
// The check and the delete run in one transaction so a concurrent asset
// creation cannot orphan rows.
func (r *PGRepository) DeleteCategory(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var inUse bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM assets WHERE category_id = $1)`,
			id).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return shared.Conflict("Cannot delete category, it is currently associated with one or more assets")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM asset_categories WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// CategoryNameExists reports whether another category already holds the name.
func (r *PGRepository) CategoryNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM asset_categories WHERE name = $1 AND id <> $2)`,
		name, excludeID).Scan(&exists)
	return exists, err
}

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	var serial pgtype.Text
	var purchaseDate pgtype.Date
	var purchaseCost pgtype.Float8
	var vendor, location, description pgtype.Text
	var addedOn, updatedOn pgtype.Timestamptz
	var createdBy pgtype.Int8

	err := row.Scan(&a.ID, &a.Name, &a.Tag, &serial, &purchaseDate,
		&purchaseCost, &vendor, &location, &a.Status, &description,
		&addedOn, &updatedOn, &a.CategoryID, &a.CategoryName,
		&createdBy, &a.CreatorName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	a.SerialNumber = serial.String
	if purchaseDate.Valid {
		d := purchaseDate.Time
		a.PurchaseDate = &d
	}
	if purchaseCost.Valid {
		c := purchaseCost.Float64
		a.PurchaseCost = &c
	}
	a.Vendor = vendor.String
	a.StorageLocation = location.String
	a.Description = description.String
	a.AddedOn = addedOn.Time
	a.LastUpdatedOn = updatedOn.Time
	if createdBy.Valid {
		id := createdBy.Int64
		a.CreatedBy = &id
	}
	return &a, nil
}

// nullText maps "" to SQL NULL so the UNIQUE constraint on serial_number
// ignores blank values (NULLs never collide).
func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func nullFloat(f *float64) pgtype.Float8 {
	if f == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *f, Valid: true}
}

func nullInt(i *int64) pgtype.Int8 {
	if i == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *i, Valid: true}
}

func mapAssetUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "assets_asset_tag_key":
			return ErrTagTaken
		case "assets_serial_number_key":
			return ErrSerialTaken
		case "asset_categories_name_key":
			return ErrCategoryNameTaken
		}
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
