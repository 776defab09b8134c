package assets

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagvault/tagvault/internal/shared"
)

type mockRepository struct {
	assets      map[int64]*Asset
	categories  map[int64]*Category
	nextAssetID int64
	nextCatID   int64
	assetsByCat map[int64]int
	createError error
	updateError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		assets:      make(map[int64]*Asset),
		categories:  make(map[int64]*Category),
		assetsByCat: make(map[int64]int),
		nextAssetID: 1,
		nextCatID:   1,
	}
}

func (m *mockRepository) addCategory(name string) int64 {
	id := m.nextCatID
	m.nextCatID++
	m.categories[id] = &Category{ID: id, Name: name}
	return id
}

func (m *mockRepository) ListAssets(ctx context.Context, limit, offset int) ([]Asset, error) {
	var out []Asset
	for _, a := range m.assets {
		out = append(out, *a)
	}
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepository) CountAssets(ctx context.Context) (int, error) {
	return len(m.assets), nil
}

func (m *mockRepository) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	a, ok := m.assets[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockRepository) CreateAsset(ctx context.Context, asset Asset) (int64, error) {
	if m.createError != nil {
		return 0, m.createError
	}
	asset.ID = m.nextAssetID
	m.nextAssetID++
	m.assets[asset.ID] = &asset
	m.assetsByCat[asset.CategoryID]++
	return asset.ID, nil
}

func (m *mockRepository) UpdateAsset(ctx context.Context, asset Asset) error {
	if m.updateError != nil {
		return m.updateError
	}
	prev, ok := m.assets[asset.ID]
	if !ok {
		return shared.ErrNotFound
	}
	m.assetsByCat[prev.CategoryID]--
	m.assetsByCat[asset.CategoryID]++
	m.assets[asset.ID] = &asset
	return nil
}

func (m *mockRepository) DeleteAsset(ctx context.Context, id int64) error {
	a, ok := m.assets[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.assetsByCat[a.CategoryID]--
	delete(m.assets, id)
	return nil
}

func (m *mockRepository) TagExists(ctx context.Context, tag string, excludeID int64) (bool, error) {
	for _, a := range m.assets {
		if a.Tag == tag && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) SerialExists(ctx context.Context, serial string, excludeID int64) (bool, error) {
	for _, a := range m.assets {
		if a.SerialNumber == serial && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) Stats(ctx context.Context, year int, month time.Month) (DashboardStats, error) {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)
	var stats DashboardStats
	for _, a := range m.assets {
		stats.Total++
		switch a.Status {
		case StatusInUse:
			stats.InUse++
		case StatusInRepair:
			stats.InRepair++
		case StatusRetired:
			stats.Retired++
		}
		if !a.AddedOn.Before(monthStart) && a.AddedOn.Before(nextMonth) {
			stats.NewThisMonth++
		}
	}
	return stats, nil
}

func (m *mockRepository) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	for _, c := range m.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockRepository) ListCategoriesWithCounts(ctx context.Context) ([]CategoryWithCount, error) {
	var out []CategoryWithCount
	for _, c := range m.categories {
		out = append(out, CategoryWithCount{Category: *c, AssetCount: m.assetsByCat[c.ID]})
	}
	return out, nil
}

func (m *mockRepository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockRepository) CreateCategory(ctx context.Context, category Category) (int64, error) {
	category.ID = m.nextCatID
	m.nextCatID++
	m.categories[category.ID] = &category
	return category.ID, nil
}

func (m *mockRepository) UpdateCategory(ctx context.Context, category Category) error {
	if _, ok := m.categories[category.ID]; !ok {
		return shared.ErrNotFound
	}
	m.categories[category.ID] = &category
	return nil
}

func (m *mockRepository) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := m.categories[id]; !ok {
		return shared.ErrNotFound
	}
	if m.assetsByCat[id] > 0 {
		return shared.Conflict("Cannot delete category, it is currently associated with one or more assets")
	}
	delete(m.categories, id)
	return nil
}

func (m *mockRepository) CategoryNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	for _, c := range m.categories {
		if c.Name == name && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

var _ Repository = (*mockRepository)(nil)

func newTestService(repo *mockRepository, now time.Time) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return now }
	return svc
}

func validInput(catID int64) AssetInput {
	return AssetInput{
		Name:       "ThinkPad T14",
		Tag:        "IT-0001",
		Status:     StatusInUse,
		CategoryID: strconv.FormatInt(catID, 10),
	}
}

func TestCreateAssetRequiresFields(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())

	_, err := svc.Create(context.Background(), 1, AssetInput{Name: "Laptop"})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Asset Name, Asset Tag, Status, and Category are required.", verr.Message)
}

func TestCreateAssetRejectsBadPurchaseDate(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	in := validInput(repo.addCategory("Laptop"))
	in.PurchaseDate = "31-12-2024"

	_, err := svc.Create(context.Background(), 1, in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Invalid purchase date format. Please use the date picker or YYYY-MM-DD format.", verr.Message)
}

func TestCreateAssetRejectsNegativeCost(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	in := validInput(repo.addCategory("Laptop"))
	in.PurchaseCost = "-10"

	_, err := svc.Create(context.Background(), 1, in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "purchase_cost", verr.Field)
}

func TestCreateAssetDuplicateTag(t *testing.T) {
	repo := newMockRepository()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	catID := repo.addCategory("Laptop")

	_, err := svc.Create(context.Background(), 1, validInput(catID))
	require.NoError(t, err)

	dup := validInput(catID)
	dup.Name = "Different Laptop"
	_, err = svc.Create(context.Background(), 1, dup)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Asset Tag IT-0001 already exists.", verr.Message)
}

func TestCreateAssetDuplicateSerial(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	catID := repo.addCategory("Laptop")

	first := validInput(catID)
	first.SerialNumber = "SN-42"
	_, err := svc.Create(context.Background(), 1, first)
	require.NoError(t, err)

	second := validInput(catID)
	second.Tag = "IT-0002"
	second.SerialNumber = "SN-42"
	_, err = svc.Create(context.Background(), 1, second)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Serial Number SN-42 already exists.", verr.Message)
}

func TestCreateAssetSetsTimestampsAndCreator(t *testing.T) {
	repo := newMockRepository()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	in := validInput(repo.addCategory("Laptop"))
	in.PurchaseDate = "2026-01-15"
	in.PurchaseCost = "1299.99"

	id, err := svc.Create(context.Background(), 7, in)
	require.NoError(t, err)

	stored := repo.assets[id]
	require.NotNil(t, stored)
	assert.Equal(t, now, stored.AddedOn)
	assert.Equal(t, now, stored.LastUpdatedOn)
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, int64(7), *stored.CreatedBy)
	require.NotNil(t, stored.PurchaseDate)
	assert.Equal(t, "2026-01-15", stored.PurchaseDate.Format("2006-01-02"))
	require.NotNil(t, stored.PurchaseCost)
	assert.InDelta(t, 1299.99, *stored.PurchaseCost, 0.001)
}

func TestUpdateAssetBumpsLastUpdatedEvenWithoutChanges(t *testing.T) {
	repo := newMockRepository()
	created := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, created)
	catID := repo.addCategory("Laptop")
	in := validInput(catID)

	id, err := svc.Create(context.Background(), 1, in)
	require.NoError(t, err)

	later := created.Add(48 * time.Hour)
	svc.now = func() time.Time { return later }
	require.NoError(t, svc.Update(context.Background(), id, in))

	stored := repo.assets[id]
	assert.Equal(t, created, stored.AddedOn)
	assert.Equal(t, later, stored.LastUpdatedOn)
}

func TestUpdateAssetKeepsOwnTag(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	catID := repo.addCategory("Laptop")

	id, err := svc.Create(context.Background(), 1, validInput(catID))
	require.NoError(t, err)

	in := validInput(catID)
	in.Name = "Renamed"
	require.NoError(t, svc.Update(context.Background(), id, in))
	assert.Equal(t, "Renamed", repo.assets[id].Name)
}

func TestUpdateAssetDuplicateTag(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	catID := repo.addCategory("Laptop")

	_, err := svc.Create(context.Background(), 1, validInput(catID))
	require.NoError(t, err)

	other := validInput(catID)
	other.Tag = "IT-0002"
	id, err := svc.Create(context.Background(), 1, other)
	require.NoError(t, err)

	other.Tag = "IT-0001"
	err = svc.Update(context.Background(), id, other)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Asset Tag IT-0001 already exists.", verr.Message)
}

func TestUpdateAssetUnknownID(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())

	err := svc.Update(context.Background(), 99, validInput(repo.addCategory("Laptop")))
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDashboardCountsByStatusAndMonth(t *testing.T) {
	repo := newMockRepository()
	now := time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	catID := repo.addCategory("Laptop")

	seed := func(tag, status string, added time.Time) {
		id := repo.nextAssetID
		repo.nextAssetID++
		repo.assets[id] = &Asset{ID: id, Name: tag, Tag: tag, Status: status, AddedOn: added, CategoryID: catID}
	}
	seed("A-1", StatusInUse, now)
	seed("A-2", StatusInRepair, now.AddDate(0, -2, 0))
	seed("A-3", StatusRetired, now.AddDate(0, -1, 0))

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, 1, stats.InRepair)
	assert.Equal(t, 1, stats.Retired)
	assert.Equal(t, 1, stats.NewThisMonth)
}

func TestListPaginates(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	catID := repo.addCategory("Laptop")
	for i := 0; i < 45; i++ {
		id := repo.nextAssetID
		repo.nextAssetID++
		repo.assets[id] = &Asset{ID: id, Tag: strconv.Itoa(i), Status: StatusInUse, CategoryID: catID}
	}

	items, p, err := svc.List(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 45, p.Total)
	assert.True(t, p.HasPrev())
	assert.False(t, p.HasNext())
}

func TestCreateCategoryRequiresName(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())

	_, err := svc.CreateCategory(context.Background(), CategoryInput{Description: "no name"})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Category Name is required.", verr.Message)
}

func TestCreateCategoryDuplicateName(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	repo.addCategory("Laptop")

	_, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "Laptop"})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Category Laptop already exists.", verr.Message)
}

func TestUpdateCategoryDuplicateName(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	repo.addCategory("Laptop")
	id := repo.addCategory("Desktop")

	err := svc.UpdateCategory(context.Background(), id, CategoryInput{Name: "Laptop"})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, `Category name "Laptop" already exists.`, verr.Message)
}

func TestDeleteCategoryBlockedWhileInUse(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	catID := repo.addCategory("Laptop")

	_, err := svc.Create(context.Background(), 1, validInput(catID))
	require.NoError(t, err)

	err = svc.DeleteCategory(context.Background(), catID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "Cannot delete category, it is currently associated with one or more assets", err.Error())

	_, stillThere := repo.categories[catID]
	assert.True(t, stillThere)
}

func TestDeleteCategoryAfterAssetsRemoved(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())
	catID := repo.addCategory("Laptop")

	id, err := svc.Create(context.Background(), 1, validInput(catID))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), id))

	assert.NoError(t, svc.DeleteCategory(context.Background(), catID))
}
