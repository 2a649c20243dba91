package catalog

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	cats       []*entity.Category
	members    map[string][]*entity.Member
	membersErr map[string]error
	thumbs     map[string]string
	cards      map[string]string
}

func (f *fakeScanner) Categories() []*entity.Category {
	return f.cats
}

func (f *fakeScanner) Members(cat *entity.Category) ([]*entity.Member, error) {
	if err := f.membersErr[cat.Slug]; err != nil {
		return nil, err
	}

	return f.members[cat.Slug], nil
}

func (f *fakeScanner) MemberThumb(slug, memberID string) string {
	return f.thumbs[slug+"/"+memberID]
}

func (f *fakeScanner) CardImage(slug string) string {
	if img, ok := f.cards[slug]; ok {
		return img
	}

	return entity.PlaceholderImage
}

type fakeStore struct {
	ov      *entity.Overrides
	deleted []string
	purged  []string
}

func (f *fakeStore) Load() *entity.Overrides {
	if f.ov != nil {
		return f.ov
	}

	return emptyOverrides()
}

func (f *fakeStore) MarkDeleted(ids ...string) error {
	f.deleted = append(f.deleted, ids...)

	return nil
}

func (f *fakeStore) PurgeOverrides(ids ...string) error {
	f.purged = append(f.purged, ids...)

	return nil
}

func emptyOverrides() *entity.Overrides {
	return &entity.Overrides{
		Titles:       make(map[string]string),
		Prices:       make(map[string]float64),
		Descriptions: make(map[string]string),
		Categories:   make(map[string]string),
		Photos:       make(map[string]string),
		Deleted:      make(map[string]struct{}),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zgodyScanner() *fakeScanner {
	return &fakeScanner{
		cats: []*entity.Category{
			{
				Slug:        "zgody",
				Name:        "zgody",
				DisplayName: "Zgody",
				PriceFrom:   19,
				ShortDesc:   "Zgody na zabiegi",
				Kind:        entity.CategoryDir,
				SourcePath:  "/goods/zgody",
				CardImage:   entity.PlaceholderImage,
				Enabled:     true,
			},
		},
		members: map[string][]*entity.Member{
			"zgody": {
				{ID: "zgoda-pdf-c1cc6f482f", Display: "zgoda.pdf", Rel: "zgoda.pdf", Abs: "/goods/zgody/zgoda.pdf", Ext: ".pdf"},
			},
		},
	}
}

func TestMaterializeScannedCatalog(t *testing.T) {
	srv := NewCatalogService(zgodyScanner(), &fakeStore{}, testLogger())

	products := srv.Materialize()
	require.Len(t, products, 2)

	card := products[0]
	require.Equal(t, "dbcat:zgody", card.ID)
	require.Equal(t, entity.KindCategoryCard, card.Kind)
	require.Equal(t, "Zgody", card.Title)
	require.Equal(t, "DocuBeauty", card.Category)
	require.False(t, card.Purchasable())

	item := products[1]
	require.Equal(t, "dbitem:zgody:zgoda-pdf-c1cc6f482f", item.ID)
	require.Equal(t, entity.KindItem, item.Kind)
	require.Equal(t, "zgoda.pdf", item.Title)
	require.Equal(t, "Zgody", item.Category)
	require.Equal(t, float64(19), item.PricePLN)
	require.True(t, item.Purchasable())
}

func TestMaterializeUniqueIDs(t *testing.T) {
	scanner := zgodyScanner()
	store := &fakeStore{ov: emptyOverrides()}
	store.ov.CustomCategories = []string{"Pakiety"}
	store.ov.CustomProducts = []entity.CustomProductRecord{
		{ID: "custom:abc", Title: "Pakiet startowy", PricePLN: 49, File: "pakiet.zip"},
	}

	srv := NewCatalogService(scanner, store, testLogger())

	seen := make(map[string]struct{})
	for _, p := range srv.Materialize() {
		_, dup := seen[p.ID]
		require.False(t, dup, "duplicate id %s", p.ID)
		seen[p.ID] = struct{}{}
	}
}

func TestMaterializeKeepsCardWhenMembersFail(t *testing.T) {
	scanner := zgodyScanner()
	scanner.membersErr = map[string]error{"zgody": errors.New("boom")}

	srv := NewCatalogService(scanner, &fakeStore{}, testLogger())

	products := srv.Materialize()
	require.Len(t, products, 1)
	require.Equal(t, "dbcat:zgody", products[0].ID)
}

func TestMaterializeAppliesOverrides(t *testing.T) {
	itemID := "dbitem:zgody:zgoda-pdf-c1cc6f482f"

	ov := emptyOverrides()
	ov.Titles[itemID] = "Zgoda RODO (PDF)"
	ov.Prices[itemID] = 29
	ov.Descriptions[itemID] = "Gotowy wzór."
	ov.Categories[itemID] = "Dokumenty"
	ov.Photos[itemID] = "cards/custom/zgoda.png"

	srv := NewCatalogService(zgodyScanner(), &fakeStore{ov: ov}, testLogger())

	p, err := srv.ProductByID(itemID)
	require.NoError(t, err)
	require.Equal(t, "Zgoda RODO (PDF)", p.Title)
	require.Equal(t, float64(29), p.PricePLN)
	require.Equal(t, "Gotowy wzór.", p.Description)
	require.Equal(t, "Dokumenty", p.Category)
	require.Equal(t, []string{"cards/custom/zgoda.png"}, p.Images)
}

func TestMaterializeIgnoresBlankTitleOverride(t *testing.T) {
	itemID := "dbitem:zgody:zgoda-pdf-c1cc6f482f"

	ov := emptyOverrides()
	ov.Titles[itemID] = "   "

	srv := NewCatalogService(zgodyScanner(), &fakeStore{ov: ov}, testLogger())

	p, err := srv.ProductByID(itemID)
	require.NoError(t, err)
	require.Equal(t, "zgoda.pdf", p.Title)
}

func TestMaterializeFiltersDeleted(t *testing.T) {
	itemID := "dbitem:zgody:zgoda-pdf-c1cc6f482f"

	ov := emptyOverrides()
	ov.Deleted[itemID] = struct{}{}

	srv := NewCatalogService(zgodyScanner(), &fakeStore{ov: ov}, testLogger())

	for _, p := range srv.Materialize() {
		require.NotEqual(t, itemID, p.ID)
	}
}

func TestMaterializeCustomProducts(t *testing.T) {
	ov := emptyOverrides()
	ov.CustomProducts = []entity.CustomProductRecord{
		{ID: "custom:abc", Title: "Pakiet startowy", PricePLN: 49, File: "pakiet.zip"},
		{ID: "custom:def", Title: "Zgoda premium", Category: "Zgody", PricePLN: 29, File: "premium.pdf"},
	}

	srv := NewCatalogService(zgodyScanner(), &fakeStore{ov: ov}, testLogger())
	products := srv.Materialize()

	byID := make(map[string]*entity.Product)
	for _, p := range products {
		byID[p.ID] = p
	}

	// Uncategorized customs land in the default group and get its card.
	require.Equal(t, "Produkty", byID["custom:abc"].Category)
	require.Contains(t, byID, "cat:produkty")

	// A custom bound to a scanned category by name inherits its slug and
	// must not spawn a second card for it.
	require.Equal(t, "zgody", byID["custom:def"].CatSlug)
	require.NotContains(t, byID, "cat:zgody")
}

func TestDedupeCategoryCards(t *testing.T) {
	// The directory slug differs from the display name, so a custom category
	// slugifying to the same title passes the name block and collides in the
	// dedupe pass instead.
	scanner := &fakeScanner{
		cats: []*entity.Category{
			{
				Slug:        "laminacja",
				Name:        "laminacja",
				DisplayName: "Laminacja brwi",
				PriceFrom:   59,
				Kind:        entity.CategoryDir,
				SourcePath:  "/goods/laminacja",
				CardImage:   entity.PlaceholderImage,
				Enabled:     true,
			},
		},
		members: map[string][]*entity.Member{},
	}

	ov := emptyOverrides()
	ov.CustomCategories = []string{"Laminacja  brwi"}
	ov.Photos["cat:laminacja-brwi"] = "cards/custom/laminacja.png"

	srv := NewCatalogService(scanner, &fakeStore{ov: ov}, testLogger())
	products := srv.Materialize()

	var cards []*entity.Product
	for _, p := range products {
		if p.IsCategoryCard() {
			cards = append(cards, p)
		}
	}

	require.Len(t, cards, 1)
	require.Equal(t, "dbcat:laminacja", cards[0].ID, "scanned card wins the collision")
	require.Equal(t, "cards/custom/laminacja.png", cards[0].PrimaryImage(), "real image transfers from the dropped card")
}

func TestDeleteEntityCascades(t *testing.T) {
	store := &fakeStore{}
	srv := NewCatalogService(zgodyScanner(), store, testLogger())

	require.NoError(t, srv.DeleteEntity("dbcat:zgody"))

	want := []string{"dbcat:zgody", "dbitem:zgody:zgoda-pdf-c1cc6f482f"}
	require.Equal(t, want, store.deleted)
	require.Equal(t, want, store.purged)
}

func TestDeleteEntitySingleItem(t *testing.T) {
	store := &fakeStore{}
	srv := NewCatalogService(zgodyScanner(), store, testLogger())

	require.NoError(t, srv.DeleteEntity("dbitem:zgody:zgoda-pdf-c1cc6f482f"))

	require.Equal(t, []string{"dbitem:zgody:zgoda-pdf-c1cc6f482f"}, store.deleted)
}

func TestProductByIDNotFound(t *testing.T) {
	srv := NewCatalogService(zgodyScanner(), &fakeStore{}, testLogger())

	_, err := srv.ProductByID("dbitem:zgody:missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}
