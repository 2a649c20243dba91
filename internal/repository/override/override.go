package override

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Stanislav-it/docubeauty/internal/config"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	titleFileName            = "title_overrides.json"
	priceFileName            = "price_overrides.json"
	descriptionFileName      = "description_overrides.json"
	categoryFileName         = "category_overrides.json"
	photoFileName            = "photo_overrides.json"
	deletedFileName          = "deleted_products.json"
	customCategoriesFileName = "custom_categories.json"
	customProductsFileName   = "custom_products.json"

	tmpSuffix = ".tmp"
)

// overrideStore persists the override layers as independent JSON documents.
// Reads fail open (a broken document means no overrides for that layer);
// writes always go through a temp file and an atomic rename so a concurrent
// reader never observes a partial document.
type overrideStore struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex // serializes read-modify-write cycles

	log *slog.Logger
}

func NewOverrideStore(cfg *config.StoreConfig, log *slog.Logger) *overrideStore {
	return NewOverrideStoreWithFS(afero.NewOsFs(), cfg, log)
}

func NewOverrideStoreWithFS(fs afero.Fs, cfg *config.StoreConfig, log *slog.Logger) *overrideStore {
	return &overrideStore{
		fs:  fs,
		dir: cfg.DataDir,
		log: log.With(slog.String("item", "OverrideStore")),
	}
}

// Load reads a fresh snapshot of every layer. Each call re-reads the
// documents; nothing is cached between calls.
func (s *overrideStore) Load() *entity.Overrides {
	ov := &entity.Overrides{
		Titles:       make(map[string]string),
		Prices:       make(map[string]float64),
		Descriptions: make(map[string]string),
		Categories:   make(map[string]string),
		Photos:       make(map[string]string),
		Deleted:      make(map[string]struct{}),
	}

	s.loadJSON(titleFileName, &ov.Titles)
	s.loadJSON(priceFileName, &ov.Prices)
	s.loadJSON(descriptionFileName, &ov.Descriptions)
	s.loadJSON(categoryFileName, &ov.Categories)
	s.loadJSON(photoFileName, &ov.Photos)

	var deleted []string
	s.loadJSON(deletedFileName, &deleted)
	for _, id := range deleted {
		if id = strings.TrimSpace(id); id != "" {
			ov.Deleted[id] = struct{}{}
		}
	}

	var names []string
	s.loadJSON(customCategoriesFileName, &names)
	seen := make(map[string]struct{})
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ov.CustomCategories = append(ov.CustomCategories, n)
	}

	var records []entity.CustomProductRecord
	s.loadJSON(customProductsFileName, &records)
	for _, rec := range records {
		rec.ID = strings.TrimSpace(rec.ID)
		rec.Title = strings.TrimSpace(rec.Title)
		if rec.ID == "" || rec.Title == "" {
			continue
		}
		rec.File = migrateGoodsPath(strings.ReplaceAll(rec.File, "\\", "/"))
		ov.CustomProducts = append(ov.CustomProducts, rec)
	}

	return ov
}

func (s *overrideStore) SetTitle(id, title string) error {
	return updateMapLayer(s, titleFileName, id, strings.TrimSpace(title), strings.TrimSpace(title) == "")
}

func (s *overrideStore) SetPrice(id string, price float64) error {
	return updateMapLayer(s, priceFileName, id, price, price < 0)
}

func (s *overrideStore) SetDescription(id, desc string) error {
	return updateMapLayer(s, descriptionFileName, id, desc, desc == "")
}

func (s *overrideStore) SetCategory(id, category string) error {
	return updateMapLayer(s, categoryFileName, id, category, category == "")
}

func (s *overrideStore) SetPhoto(id, rel string) error {
	rel = strings.ReplaceAll(strings.TrimSpace(rel), "\\", "/")

	return updateMapLayer(s, photoFileName, id, rel, rel == "")
}

// MarkDeleted adds the ids to the deletion set.
func (s *overrideStore) MarkDeleted(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []string
	s.loadJSON(deletedFileName, &existing)

	set := make(map[string]struct{}, len(existing)+len(ids))
	for _, id := range existing {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	// Sorted output keeps the document diffable across edits.
	sort.Strings(out)

	return s.saveJSON(deletedFileName, out)
}

// PurgeOverrides removes every layer entry for the given ids. Used by the
// deletion cascade so stale overrides do not resurrect with a future rescan.
func (s *overrideStore) PurgeOverrides(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	for _, name := range []string{titleFileName, descriptionFileName, categoryFileName, photoFileName} {
		m := make(map[string]string)
		s.loadJSON(name, &m)
		changed := false
		for id := range drop {
			if _, ok := m[id]; ok {
				delete(m, id)
				changed = true
			}
		}
		if changed {
			if err := s.saveJSON(name, m); err != nil {
				return err
			}
		}
	}

	prices := make(map[string]float64)
	s.loadJSON(priceFileName, &prices)
	changed := false
	for id := range drop {
		if _, ok := prices[id]; ok {
			delete(prices, id)
			changed = true
		}
	}
	if changed {
		return s.saveJSON(priceFileName, prices)
	}

	return nil
}

// SetCustomCategories replaces the free-standing custom category list.
func (s *overrideStore) SetCustomCategories(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveJSON(customCategoriesFileName, names)
}

// AppendCustomProduct appends a custom product record, assigning a
// custom:<uuid> id when the record carries none.
func (s *overrideStore) AppendCustomProduct(rec entity.CustomProductRecord) (entity.CustomProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = entity.CustomProductID(uuid.NewString())
	}

	var records []entity.CustomProductRecord
	s.loadJSON(customProductsFileName, &records)
	records = append(records, rec)

	if err := s.saveJSON(customProductsFileName, records); err != nil {
		return entity.CustomProductRecord{}, err
	}

	return rec, nil
}

// SaveCustomProducts replaces the custom product document.
func (s *overrideStore) SaveCustomProducts(records []entity.CustomProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveJSON(customProductsFileName, records)
}

// migrateGoodsPath rewrites file paths from old documents that still point
// into the public static area; the files themselves moved to the protected
// goods dir long ago.
func migrateGoodsPath(file string) string {
	for _, prefix := range []string{"static/digital_goods/", "digital_goods/"} {
		if strings.HasPrefix(file, prefix) {
			return strings.TrimPrefix(file, prefix)
		}
	}

	return file
}

func updateMapLayer[T any](s *overrideStore, name, id string, value T, remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]T)
	s.loadJSON(name, &m)

	if remove {
		delete(m, id)
	} else {
		m[id] = value
	}

	return s.saveJSON(name, m)
}

func (s *overrideStore) loadJSON(name string, v any) {
	p := filepath.Join(s.dir, name)

	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn("Broken override document, treating as empty", slog.String("file", name), slog.Any("error", err))
	}
}

func (s *overrideStore) saveJSON(name string, v any) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("cannot create data dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal %s: %w", name, err)
	}

	p := filepath.Join(s.dir, name)
	tmp := p + tmpSuffix

	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", name, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		return fmt.Errorf("cannot replace %s: %w", name, err)
	}

	return nil
}
