package catalog

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/Stanislav-it/docubeauty/internal/util"
)

const (
	serviceName = "catalog"

	scannedCategoryGroup = "DocuBeauty"
	customCategoryGroup  = "Produkty"
)

type Scanner interface {
	Categories() []*entity.Category
	Members(cat *entity.Category) ([]*entity.Member, error)
	MemberThumb(slug, memberID string) string
	CardImage(slug string) string
}

type OverrideStore interface {
	Load() *entity.Overrides
	MarkDeleted(ids ...string) error
	PurgeOverrides(ids ...string) error
}

// CatalogService materializes the sellable-entity list from the scanned
// catalog, the override layers and the custom products.
type CatalogService struct {
	scanner Scanner
	store   OverrideStore
	log     *slog.Logger
}

func NewCatalogService(scanner Scanner, store OverrideStore, log *slog.Logger) *CatalogService {
	return &CatalogService{
		scanner: scanner,
		store:   store,
		log:     log.With(slog.String("service", serviceName)),
	}
}

// Materialize builds the ordered entity list. Every call re-reads the
// filesystem and the override documents, so the result is a consistent
// snapshot; it never fails, scan problems degrade to a smaller catalog.
func (s *CatalogService) Materialize() []*entity.Product {
	cats := s.scanner.Categories()
	ov := s.store.Load()

	var (
		cards []*entity.Product
		items []*entity.Product
	)
	scannedSlugs := make(map[string]struct{})
	scannedNames := make(map[string]struct{})

	for _, cat := range cats {
		members, err := s.scanner.Members(cat)
		if err != nil {
			// Keep the navigation card even when the file listing fails.
			s.log.Warn("Cannot list category members", slog.String("slug", cat.Slug), slog.Any("error", err))
			members = nil
		}

		img := cat.CardImage
		if len(members) > 0 {
			if thumb := s.scanner.MemberThumb(cat.Slug, members[0].ID); thumb != "" {
				img = thumb
			}
		}

		cards = append(cards, &entity.Product{
			ID:          entity.CategoryCardID(cat.Slug),
			Kind:        entity.KindCategoryCard,
			Title:       cat.DisplayName,
			Category:    scannedCategoryGroup,
			PricePLN:    0,
			Description: cat.ShortDesc,
			Images:      imageList(img),
			CatSlug:     cat.Slug,
		})
		scannedSlugs[cat.Slug] = struct{}{}
		scannedNames[strings.ToLower(cat.DisplayName)] = struct{}{}

		for _, m := range members {
			itemImg := img
			if thumb := s.scanner.MemberThumb(cat.Slug, m.ID); thumb != "" {
				itemImg = thumb
			}

			title := path.Base(m.Display)
			if title == "" || title == "." {
				title = m.ID
			}

			items = append(items, &entity.Product{
				ID:       entity.ItemID(cat.Slug, m.ID),
				Kind:     entity.KindItem,
				Title:    title,
				Category: cat.DisplayName,
				PricePLN: PriceFor(cat.PriceFrom, len(members), m.Rel),
				Images:   imageList(itemImg),
				CatSlug:  cat.Slug,
				ItemID:   m.ID,
			})
		}
	}

	sort.Slice(cards, func(i, j int) bool {
		return strings.ToLower(cards[i].Title) < strings.ToLower(cards[j].Title)
	})
	sort.Slice(items, func(i, j int) bool {
		ci, cj := strings.ToLower(items[i].Category), strings.ToLower(items[j].Category)
		if ci != cj {
			return ci < cj
		}

		return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
	})

	customs := buildCustomProducts(ov, scannedSlugs)
	customCards := s.buildCustomCategoryCards(ov, customs, scannedSlugs, scannedNames)

	products := make([]*entity.Product, 0, len(cards)+len(items)+len(customCards)+len(customs))
	products = append(products, cards...)
	products = append(products, items...)
	products = append(products, customCards...)
	products = append(products, customs...)

	applyOverrides(products, ov)
	products = filterDeleted(products, ov.Deleted)
	products = dedupeCategoryCards(products)

	return products
}

// ProductByID finds one materialized entity.
func (s *CatalogService) ProductByID(id string) (*entity.Product, error) {
	for _, p := range s.Materialize() {
		if p.ID == id {
			return p, nil
		}
	}

	return nil, fmt.Errorf("product %q: %w", id, common.ErrNotFound)
}

// DeleteEntity soft-deletes an entity. Deleting a scanned-category card
// cascades over every item of that category, and all override layers are
// purged for the removed ids so a later rescan cannot resurrect stale edits.
func (s *CatalogService) DeleteEntity(id string) error {
	products := s.Materialize()

	var target *entity.Product
	for _, p := range products {
		if p.ID == id {
			target = p

			break
		}
	}

	ids := []string{id}
	if target != nil && target.Kind == entity.KindCategoryCard && target.CatSlug != "" {
		for _, p := range products {
			if p.Kind == entity.KindItem && p.CatSlug == target.CatSlug {
				ids = append(ids, p.ID)
			}
		}
	}

	if err := s.store.MarkDeleted(ids...); err != nil {
		return fmt.Errorf("cannot mark deleted: %w", err)
	}
	if err := s.store.PurgeOverrides(ids...); err != nil {
		return fmt.Errorf("cannot purge overrides: %w", err)
	}

	s.log.Info("Deleted entity", slog.String("id", id), slog.Int("cascade", len(ids)-1))

	return nil
}

func buildCustomProducts(ov *entity.Overrides, scannedSlugs map[string]struct{}) []*entity.Product {
	var out []*entity.Product

	for _, rec := range ov.CustomProducts {
		category := strings.TrimSpace(rec.Category)
		if category == "" {
			category = customCategoryGroup
		}

		catSlug := strings.TrimSpace(rec.CatSlug)
		if catSlug == "" {
			// Bind to a scanned category when the name clearly matches one.
			if inferred := util.Slugify(category); hasKey(scannedSlugs, inferred) {
				catSlug = inferred
			}
		}

		out = append(out, &entity.Product{
			ID:           rec.ID,
			Kind:         entity.KindCustomProduct,
			Title:        rec.Title,
			Category:     category,
			PricePLN:     rec.PricePLN,
			Description:  rec.Description,
			Images:       imageList(rec.Image),
			CatSlug:      catSlug,
			DownloadFile: rec.File,
		})
	}

	return out
}

// buildCustomCategoryCards adds navigation cards for custom categories that
// are not already represented by a scanned category (matched by slug and by
// case-insensitive name), so the same logical group never gets two tiles.
func (s *CatalogService) buildCustomCategoryCards(ov *entity.Overrides, customs []*entity.Product,
	blockedSlugs, blockedNames map[string]struct{}) []*entity.Product {

	var names []string
	seen := make(map[string]struct{})
	add := func(n string) {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		names = append(names, n)
	}
	for _, n := range ov.CustomCategories {
		add(n)
	}
	for _, p := range customs {
		add(p.Category)
	}

	byCategory := make(map[string][]*entity.Product)
	for _, p := range customs {
		key := strings.ToLower(strings.TrimSpace(p.Category))
		byCategory[key] = append(byCategory[key], p)
	}

	var cards []*entity.Product
	for _, name := range names {
		slug := util.Slugify(name)
		if hasKey(blockedNames, strings.ToLower(name)) || hasKey(blockedSlugs, slug) {
			continue
		}

		id := entity.CustomCategoryCardID(slug)

		img := strings.TrimSpace(ov.Photos[id])
		if img == "" {
			// An independent prebuilt card image beats product thumbnails so
			// the tile does not follow the newest product photo.
			if card := s.scanner.CardImage(slug); card != entity.PlaceholderImage {
				img = card
			}
		}
		if img == "" {
			for _, p := range byCategory[strings.ToLower(name)] {
				if hero := overriddenImage(p, ov); hero != "" {
					img = hero

					break
				}
			}
		}

		cards = append(cards, &entity.Product{
			ID:     id,
			Kind:   entity.KindCustomCategoryCard,
			Title:  name,
			Images: imageList(img),
		})
	}

	return cards
}

// applyOverrides composes the layers in their fixed order: title, price,
// description, category, photo. Later layers may read attributes set by
// earlier ones; absence of an override is a no-op per id.
func applyOverrides(products []*entity.Product, ov *entity.Overrides) {
	for _, p := range products {
		if title, ok := ov.Titles[p.ID]; ok && strings.TrimSpace(title) != "" {
			p.Title = title
		}
		if price, ok := ov.Prices[p.ID]; ok {
			p.PricePLN = price
		}
		if desc, ok := ov.Descriptions[p.ID]; ok {
			p.Description = desc
		}
		if category, ok := ov.Categories[p.ID]; ok {
			p.Category = category
		}
		if photo, ok := ov.Photos[p.ID]; ok && strings.TrimSpace(photo) != "" {
			p.Images = imageList(strings.TrimSpace(photo))
		}
	}
}

func filterDeleted(products []*entity.Product, deleted map[string]struct{}) []*entity.Product {
	if len(deleted) == 0 {
		return products
	}

	out := products[:0]
	for _, p := range products {
		if _, gone := deleted[p.ID]; gone {
			continue
		}
		out = append(out, p)
	}

	return out
}

// dedupeCategoryCards keeps exactly one navigation card per slugified title.
// The scanned-category card wins over the custom one; a real image on the
// discarded card is transferred to the kept card when the kept card only has
// a placeholder.
func dedupeCategoryCards(products []*entity.Product) []*entity.Product {
	winners := make(map[string]*entity.Product)
	losers := make(map[string]struct{})

	for _, p := range products {
		if !p.IsCategoryCard() || strings.TrimSpace(p.Title) == "" {
			continue
		}

		key := util.Slugify(p.Title)

		prev, ok := winners[key]
		if !ok {
			winners[key] = p

			continue
		}

		keep, drop := prev, p
		if p.Kind == entity.KindCategoryCard && prev.Kind != entity.KindCategoryCard {
			keep, drop = p, prev
		}

		keepImg := keep.PrimaryImage()
		dropImg := drop.PrimaryImage()

		// An admin-uploaded custom-card image beats the scanned card's
		// default preview.
		preferDrop := drop.Kind == entity.KindCustomCategoryCard && dropImg != "" && !isPlaceholder(dropImg)

		if dropImg != "" && (preferDrop || keepImg == "" || isPlaceholder(keepImg)) {
			cp := *keep
			cp.Images = imageList(dropImg)
			keep = &cp
		}

		winners[key] = keep
		losers[drop.ID] = struct{}{}
	}

	if len(losers) == 0 {
		return products
	}

	out := make([]*entity.Product, 0, len(products))
	seenIDs := make(map[string]struct{})
	for _, p := range products {
		if _, gone := losers[p.ID]; gone {
			continue
		}
		if p.IsCategoryCard() {
			if w, ok := winners[util.Slugify(p.Title)]; ok && w.ID == p.ID {
				p = w
			}
		}
		if _, dup := seenIDs[p.ID]; dup {
			continue
		}
		seenIDs[p.ID] = struct{}{}
		out = append(out, p)
	}

	return out
}

func overriddenImage(p *entity.Product, ov *entity.Overrides) string {
	if v := strings.TrimSpace(ov.Photos[p.ID]); v != "" {
		return v
	}

	return p.PrimaryImage()
}

func isPlaceholder(img string) bool {
	return strings.HasSuffix(img, entity.PlaceholderImage)
}

func imageList(img string) []string {
	if img == "" {
		return nil
	}

	return []string{img}
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]

	return ok
}
