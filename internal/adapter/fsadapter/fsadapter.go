package fsadapter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/config"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/Stanislav-it/docubeauty/internal/util"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"go.abhg.dev/goldmark/frontmatter"
	"gopkg.in/yaml.v2"
)

const (
	zipSuffix          = ".zip"
	macosxPrefix       = "__MACOSX/"
	dsStoreSuffix      = ".ds_store"
	cardFileExt        = ".png"
	cardsSubdir        = "cards"
	itemThumbSubdir    = "items"
	zipMemberSeparator = "/"
)

// CategoryMeta is one entry of the category metadata document, keyed by slug.
type CategoryMeta struct {
	Name      string  `yaml:"name"`
	PriceFrom float64 `yaml:"price_from"`
	ShortDesc string  `yaml:"short_desc"`
}

// Frontmatter is the optional YAML header of a category's description.md.
// Values set here win over the metadata document.
type Frontmatter struct {
	Title     string  `yaml:"title"`
	PriceFrom float64 `yaml:"price_from"`
	Summary   string  `yaml:"summary"`
	Enabled   *bool   `yaml:"enabled"`
}

type fsAdapter struct {
	fs        afero.Fs
	cfg       *config.ScannerConfig
	skipFiles map[string]struct{}
	md        goldmark.Markdown

	log *slog.Logger
}

func NewFSAdapter(cfg *config.ScannerConfig, log *slog.Logger) *fsAdapter {
	return NewFSAdapterWithFS(afero.NewOsFs(), cfg, log)
}

func NewFSAdapterWithFS(fs afero.Fs, cfg *config.ScannerConfig, log *slog.Logger) *fsAdapter {
	skipFilesMap := make(map[string]struct{})
	skipFilesMap[cfg.DescFileName] = struct{}{}
	for _, file := range cfg.SkipFiles {
		skipFilesMap[file] = struct{}{}
	}

	md := goldmark.New(
		goldmark.WithExtensions(&frontmatter.Extender{}),
	)

	return &fsAdapter{
		fs:        fs,
		cfg:       cfg,
		skipFiles: skipFilesMap,
		md:        md,
		log:       log.With(slog.String("item", "FSAdapter")),
	}
}

// Categories scans the products root. Every immediate child that is a
// directory or a zip archive becomes a category; everything else is ignored.
// Scan errors degrade to an empty result, a single unreadable category never
// breaks the rest. Slug collisions keep the first category in scan order.
func (a *fsAdapter) Categories() []*entity.Category {
	meta := a.loadMeta()

	entries, err := afero.ReadDir(a.fs, a.cfg.ProductsRoot)
	if err != nil {
		a.log.Error("Cannot read products root", slog.String("root", a.cfg.ProductsRoot), slog.Any("error", err))

		return nil
	}

	seen := make(map[string]struct{})
	var cats []*entity.Category

	for _, entry := range entries {
		name := entry.Name()
		if name == "" || strings.HasPrefix(name, ".") {
			continue
		}

		full := filepath.Join(a.cfg.ProductsRoot, name)

		var (
			kind entity.CategoryKind
			base string
		)
		switch {
		case entry.IsDir():
			kind = entity.CategoryDir
			base = name
		case strings.HasSuffix(strings.ToLower(name), zipSuffix):
			kind = entity.CategoryZip
			base = name[:len(name)-len(zipSuffix)]
		default:
			continue
		}

		slug := util.Slugify(base)
		if _, dup := seen[slug]; dup {
			a.log.Warn("Duplicate category slug, first scan wins", slog.String("slug", slug), slog.String("path", full))

			continue
		}

		cat := &entity.Category{
			Slug:       slug,
			Name:       base,
			Kind:       kind,
			SourcePath: full,
			Enabled:    true,
		}

		if m, ok := meta[slug]; ok {
			cat.DisplayName = strings.TrimSpace(m.Name)
			cat.PriceFrom = m.PriceFrom
			cat.ShortDesc = strings.TrimSpace(m.ShortDesc)
		}
		if cat.DisplayName == "" {
			cat.DisplayName = strings.TrimSpace(base)
		}

		if kind == entity.CategoryDir {
			if err := a.applyDescription(cat); err != nil {
				a.log.Warn("Cannot parse category description", slog.String("slug", slug), slog.Any("error", err))
			}
		}

		if !cat.Enabled {
			a.log.Info("Skip disabled category", slog.String("slug", slug))

			continue
		}

		cat.CardImage = a.cardImage(slug)

		seen[slug] = struct{}{}
		cats = append(cats, cat)

		if len(cats) >= a.cfg.MaxCategories {
			break
		}
	}

	sort.Slice(cats, func(i, j int) bool {
		return strings.ToLower(cats[i].DisplayName) < strings.ToLower(cats[j].DisplayName)
	})

	return cats
}

// Category finds a scanned category by slug.
func (a *fsAdapter) Category(slug string) (*entity.Category, error) {
	for _, cat := range a.Categories() {
		if cat.Slug == slug {
			return cat, nil
		}
	}

	return nil, fmt.Errorf("category %q: %w", slug, common.ErrNotFound)
}

// Members lists the files of a category, uniformly over both backings.
// Directory members carry an absolute path; archive members carry the zip
// entry name as their relative path.
func (a *fsAdapter) Members(cat *entity.Category) ([]*entity.Member, error) {
	var (
		members []*entity.Member
		err     error
	)

	switch cat.Kind {
	case entity.CategoryDir:
		members, err = a.dirMembers(cat)
	case entity.CategoryZip:
		members, err = a.zipMembers(cat)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Display) < strings.ToLower(members[j].Display)
	})

	return members, nil
}

// MemberByID finds one member of a category by its stable id.
func (a *fsAdapter) MemberByID(cat *entity.Category, memberID string) (*entity.Member, error) {
	members, err := a.Members(cat)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		if m.ID == memberID {
			return m, nil
		}
	}

	return nil, fmt.Errorf("member %q: %w", memberID, common.ErrNotFound)
}

// MemberThumb returns the static-relative thumbnail path for a member if a
// prebuilt one exists, "" otherwise.
func (a *fsAdapter) MemberThumb(slug, memberID string) string {
	rel := path.Join(cardsSubdir, itemThumbSubdir, slug, memberID+cardFileExt)
	if a.fileExists(filepath.Join(a.cfg.StaticDir, filepath.FromSlash(rel))) {
		return rel
	}

	return ""
}

// CardImage returns the static-relative card image for a slug, falling back
// to the shared placeholder.
func (a *fsAdapter) CardImage(slug string) string {
	return a.cardImage(slug)
}

func (a *fsAdapter) dirMembers(cat *entity.Category) ([]*entity.Member, error) {
	var members []*entity.Member

	err := afero.Walk(a.fs, cat.SourcePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			a.log.Warn("Skip unreadable entry", slog.String("path", p), slog.Any("error", err))

			return nil
		}
		if info.IsDir() {
			return nil
		}
		if _, skip := a.skipFiles[info.Name()]; skip {
			return nil
		}

		rel, err := filepath.Rel(cat.SourcePath, p)
		if err != nil {
			return nil
		}
		display := filepath.ToSlash(rel)

		members = append(members, &entity.Member{
			ID:      util.MemberID(display),
			Display: display,
			Rel:     display,
			Abs:     p,
			Ext:     strings.ToLower(filepath.Ext(info.Name())),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot walk category dir: %w", err)
	}

	return members, nil
}

func (a *fsAdapter) zipMembers(cat *entity.Category) ([]*entity.Member, error) {
	f, err := a.fs.Open(cat.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("cannot open archive: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat archive: %w", err)
	}

	zr, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("cannot read archive: %w", err)
	}

	var members []*entity.Member
	for _, zf := range zr.File {
		name := zf.Name
		if name == "" || strings.HasSuffix(name, zipMemberSeparator) || zf.FileInfo().IsDir() {
			continue
		}

		display := strings.ReplaceAll(name, "\\", "/")
		if strings.HasPrefix(display, macosxPrefix) || strings.HasSuffix(strings.ToLower(display), dsStoreSuffix) {
			continue
		}

		members = append(members, &entity.Member{
			ID:      util.MemberID(name),
			Display: display,
			Rel:     name,
			Ext:     strings.ToLower(path.Ext(display)),
		})
	}

	return members, nil
}

func (a *fsAdapter) applyDescription(cat *entity.Category) error {
	descPath := filepath.Join(cat.SourcePath, a.cfg.DescFileName)
	if !a.fileExists(descPath) {
		return nil
	}

	content, err := afero.ReadFile(a.fs, descPath)
	if err != nil {
		return fmt.Errorf("cannot read description file: %w", err)
	}

	var buf bytes.Buffer
	ctx := parser.NewContext()
	if err := a.md.Convert(content, &buf, parser.WithContext(ctx)); err != nil {
		return fmt.Errorf("cannot convert description markdown: %w", err)
	}
	cat.Description = buf.String()

	fm := frontmatter.Get(ctx)
	if fm == nil {
		return nil
	}

	var meta Frontmatter
	if err := fm.Decode(&meta); err != nil {
		return fmt.Errorf("cannot decode frontmatter: %w", err)
	}

	if title := strings.TrimSpace(meta.Title); title != "" {
		cat.DisplayName = title
	}
	if meta.PriceFrom > 0 {
		cat.PriceFrom = meta.PriceFrom
	}
	if summary := strings.TrimSpace(meta.Summary); summary != "" {
		cat.ShortDesc = summary
	}
	if meta.Enabled != nil {
		cat.Enabled = *meta.Enabled
	}

	return nil
}

func (a *fsAdapter) loadMeta() map[string]CategoryMeta {
	if a.cfg.MetaFileName == "" {
		return nil
	}

	content, err := afero.ReadFile(a.fs, a.cfg.MetaFileName)
	if err != nil {
		if !os.IsNotExist(err) {
			a.log.Warn("Cannot read category meta", slog.String("path", a.cfg.MetaFileName), slog.Any("error", err))
		}

		return nil
	}

	meta := make(map[string]CategoryMeta)
	if err := yaml.Unmarshal(content, &meta); err != nil {
		a.log.Warn("Cannot parse category meta", slog.String("path", a.cfg.MetaFileName), slog.Any("error", err))

		return nil
	}

	return meta
}

func (a *fsAdapter) cardImage(slug string) string {
	rel := path.Join(cardsSubdir, slug+cardFileExt)
	if a.fileExists(filepath.Join(a.cfg.StaticDir, filepath.FromSlash(rel))) {
		return rel
	}

	return entity.PlaceholderImage
}

func (a *fsAdapter) fileExists(p string) bool {
	if p == "" {
		return false
	}

	_, err := a.fs.Stat(p)

	return err == nil
}
