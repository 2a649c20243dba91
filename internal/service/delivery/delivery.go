package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/config"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "delivery"

	manifestDefaultKey = "default"
)

// PaymentVerifier is the external payment collaborator. It returns the
// entitlement for a paid session and an error for anything else; the result
// is never cached and never trusted from client state.
type PaymentVerifier interface {
	Verify(ctx context.Context, sessionID string) (*entity.Entitlement, error)
}

type TokenService interface {
	Mint(sessionID string, claim *entity.Claim, ent *entity.Entitlement) (string, error)
	Verify(token string) (string, *entity.Claim, error)
}

type Catalog interface {
	Materialize() []*entity.Product
}

type Scanner interface {
	Category(slug string) (*entity.Category, error)
	MemberByID(cat *entity.Category, memberID string) (*entity.Member, error)
}

type Bundler interface {
	BundleForDirectory(cat *entity.Category) (string, error)
	ExtractMember(cat *entity.Category, m *entity.Member) (string, error)
}

type CounterRepository interface {
	Inc(ctx context.Context, id string) (int64, error)
}

// Delivery is a resolved deliverable: a concrete file plus the filename to
// suggest to the client.
type Delivery struct {
	Path     string
	Filename string
}

type deliveryService struct {
	fs       afero.Fs
	cfg      *config.DeliveryConfig
	verifier PaymentVerifier
	tokens   TokenService
	catalog  Catalog
	scanner  Scanner
	bundler  Bundler
	counters CounterRepository // optional, stats only

	log *slog.Logger
}

func NewDeliveryService(cfg *config.DeliveryConfig, verifier PaymentVerifier, tokens TokenService,
	catalog Catalog, scanner Scanner, bundler Bundler, counters CounterRepository, log *slog.Logger) *deliveryService {
	return NewDeliveryServiceWithFS(afero.NewOsFs(), cfg, verifier, tokens, catalog, scanner, bundler, counters, log)
}

func NewDeliveryServiceWithFS(fs afero.Fs, cfg *config.DeliveryConfig, verifier PaymentVerifier, tokens TokenService,
	catalog Catalog, scanner Scanner, bundler Bundler, counters CounterRepository, log *slog.Logger) *deliveryService {
	return &deliveryService{
		fs:       fs,
		cfg:      cfg,
		verifier: verifier,
		tokens:   tokens,
		catalog:  catalog,
		scanner:  scanner,
		bundler:  bundler,
		counters: counters,
		log:      log.With(slog.String("service", serviceName)),
	}
}

// Grants verifies a purchase session and returns one signed download per
// deliverable the session paid for. Mirrors what redemption will re-check
// later; a token is a convenience, not a substitute for the entitlement.
func (d *deliveryService) Grants(ctx context.Context, sessionID string) ([]entity.GrantedDownload, string, error) {
	ent, err := d.verifyPayment(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	byID := make(map[string]*entity.Product)
	for _, p := range d.catalog.Materialize() {
		byID[p.ID] = p
	}

	var (
		grants    []entity.GrantedDownload
		legacyIDs []string
	)

	mint := func(name string, claim *entity.Claim) {
		tok, err := d.tokens.Mint(sessionID, claim, ent)
		if err != nil {
			d.log.Error("Cannot mint download token", slog.String("name", name), slog.Any("error", err))

			return
		}
		grants = append(grants, entity.GrantedDownload{Name: name, Token: tok})
	}

	for _, pid := range ent.ProductIDs {
		p, ok := byID[pid]
		if !ok {
			legacyIDs = append(legacyIDs, pid)

			continue
		}

		switch p.Kind {
		case entity.KindItem:
			mint(p.Category+" / "+p.Title, &entity.Claim{
				Kind:         entity.ClaimSingleItem,
				CategorySlug: p.CatSlug,
				MemberID:     p.ItemID,
			})
		case entity.KindCategoryCard:
			bundleName := p.CatSlug + ".zip"
			if cat, err := d.scanner.Category(p.CatSlug); err == nil {
				bundleName = filepath.Base(cat.SourcePath)
			}
			mint(p.Title+" — "+bundleName, &entity.Claim{
				Kind:         entity.ClaimCategoryBundle,
				CategorySlug: p.CatSlug,
			})
		case entity.KindCustomProduct:
			if strings.TrimSpace(p.DownloadFile) == "" {
				continue
			}
			mint(p.Title, &entity.Claim{
				Kind:      entity.ClaimCustomFile,
				ProductID: p.ID,
			})
		default:
			// Navigation-only cards have nothing to deliver.
		}
	}

	for _, rel := range d.resolveLegacyFiles(legacyIDs) {
		mint(path.Base(rel), &entity.Claim{
			Kind:       entity.ClaimLegacyFile,
			LegacyPath: rel,
		})
	}

	return grants, ent.CustomerEmail, nil
}

// Redeem resolves a download token to a concrete file. Every call re-runs
// the full chain: signature, expiry, payment, membership, file resolution.
// Nothing is consumed; a valid grant redeems repeatedly.
func (d *deliveryService) Redeem(ctx context.Context, token string) (*Delivery, error) {
	sessionID, claim, err := d.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	ent, err := d.verifyPayment(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !ent.Covers(claim) {
		return nil, fmt.Errorf("entity not part of the purchase: %w", common.ErrAccessDenied)
	}

	var delivery *Delivery
	switch claim.Kind {
	case entity.ClaimSingleItem:
		delivery, err = d.resolveItem(claim)
	case entity.ClaimCategoryBundle:
		delivery, err = d.resolveBundle(claim)
	case entity.ClaimCustomFile:
		delivery, err = d.resolveCustom(claim)
	case entity.ClaimLegacyFile:
		delivery, err = d.resolveLegacy(claim)
	default:
		return nil, fmt.Errorf("unknown claim kind %q: %w", claim.Kind, common.ErrInvalidLink)
	}
	if err != nil {
		return nil, err
	}

	d.countDownload(ctx, claim)

	return delivery, nil
}

func (d *deliveryService) verifyPayment(ctx context.Context, sessionID string) (*entity.Entitlement, error) {
	ent, err := d.verifier.Verify(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrPaymentNotConfirmed) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %v", common.ErrPaymentNotConfirmed, err)
	}
	if ent == nil || ent.SessionID != sessionID {
		return nil, fmt.Errorf("session mismatch: %w", common.ErrPaymentNotConfirmed)
	}

	return ent, nil
}

func (d *deliveryService) resolveItem(claim *entity.Claim) (*Delivery, error) {
	cat, err := d.scanner.Category(claim.CategorySlug)
	if err != nil {
		return nil, err
	}

	m, err := d.scanner.MemberByID(cat, claim.MemberID)
	if err != nil {
		return nil, err
	}

	if cat.Kind == entity.CategoryDir {
		if m.Abs == "" || !d.fileExists(m.Abs) {
			return nil, fmt.Errorf("member file: %w", common.ErrNotFound)
		}

		return &Delivery{Path: m.Abs, Filename: path.Base(m.Display)}, nil
	}

	p, err := d.bundler.ExtractMember(cat, m)
	if err != nil {
		return nil, err
	}

	return &Delivery{Path: p, Filename: filepath.Base(p)}, nil
}

func (d *deliveryService) resolveBundle(claim *entity.Claim) (*Delivery, error) {
	cat, err := d.scanner.Category(claim.CategorySlug)
	if err != nil {
		return nil, err
	}

	if cat.Kind == entity.CategoryZip {
		if !d.fileExists(cat.SourcePath) {
			return nil, fmt.Errorf("category archive: %w", common.ErrNotFound)
		}

		return &Delivery{Path: cat.SourcePath, Filename: filepath.Base(cat.SourcePath)}, nil
	}

	p, err := d.bundler.BundleForDirectory(cat)
	if err != nil {
		return nil, err
	}

	return &Delivery{Path: p, Filename: cat.Slug + ".zip"}, nil
}

func (d *deliveryService) resolveCustom(claim *entity.Claim) (*Delivery, error) {
	var prod *entity.Product
	for _, p := range d.catalog.Materialize() {
		if p.ID == claim.ProductID && p.Kind == entity.KindCustomProduct {
			prod = p

			break
		}
	}
	if prod == nil || strings.TrimSpace(prod.DownloadFile) == "" {
		return nil, fmt.Errorf("custom product file: %w", common.ErrNotFound)
	}

	abs, err := d.safeGoodsPath(prod.DownloadFile)
	if err != nil {
		return nil, err
	}
	if !d.fileExists(abs) {
		return nil, fmt.Errorf("custom product file: %w", common.ErrNotFound)
	}

	return &Delivery{Path: abs, Filename: filepath.Base(abs)}, nil
}

func (d *deliveryService) resolveLegacy(claim *entity.Claim) (*Delivery, error) {
	abs, err := d.safeGoodsPath(claim.LegacyPath)
	if err != nil {
		return nil, err
	}
	if !d.fileExists(abs) {
		return nil, fmt.Errorf("legacy file: %w", common.ErrNotFound)
	}

	return &Delivery{Path: abs, Filename: filepath.Base(abs)}, nil
}

// safeGoodsPath maps a goods-dir relative path to an absolute one, rejecting
// any traversal attempt before any filesystem access.
func (d *deliveryService) safeGoodsPath(rel string) (string, error) {
	rel = strings.TrimLeft(strings.ReplaceAll(rel, "\\", "/"), "/")
	if rel == "" {
		return "", fmt.Errorf("empty path: %w", common.ErrInvalidPath)
	}

	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("traversal segment: %w", common.ErrInvalidPath)
		}
	}

	base := filepath.Clean(d.cfg.GoodsDir)
	abs := filepath.Join(base, filepath.FromSlash(rel))
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes goods dir: %w", common.ErrInvalidPath)
	}

	return abs, nil
}

// resolveLegacyFiles maps product ids through the digital-goods manifest,
// falling back to the manifest's default entry, de-duplicating while keeping
// order.
func (d *deliveryService) resolveLegacyFiles(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	manifest := d.loadManifest()
	if len(manifest) == 0 {
		return nil
	}

	var files []string
	seen := make(map[string]struct{})
	add := func(rel string) {
		rel = strings.TrimSpace(rel)
		if rel == "" {
			return
		}
		if _, dup := seen[rel]; dup {
			return
		}
		seen[rel] = struct{}{}
		files = append(files, rel)
	}

	defaultEntry := manifest[manifestDefaultKey]

	for _, id := range ids {
		entry, ok := manifest[id]
		if !ok {
			entry = defaultEntry
		}

		switch v := entry.(type) {
		case string:
			add(v)
		case []any:
			for _, x := range v {
				if s, ok := x.(string); ok {
					add(s)
				}
			}
		}
	}

	return files
}

func (d *deliveryService) loadManifest() map[string]any {
	p := filepath.Join(d.cfg.GoodsDir, d.cfg.ManifestFileName)

	data, err := afero.ReadFile(d.fs, p)
	if err != nil {
		return nil
	}

	var manifest map[string]any
	if err := json.Unmarshal(data, &manifest); err != nil {
		d.log.Warn("Broken digital-goods manifest", slog.String("path", p), slog.Any("error", err))

		return nil
	}

	return manifest
}

func (d *deliveryService) countDownload(ctx context.Context, claim *entity.Claim) {
	if d.counters == nil {
		return
	}

	id := counterID(claim)
	n, err := d.counters.Inc(ctx, id)
	if err != nil {
		d.log.Warn("Cannot count download", slog.String("id", id), slog.Any("error", err))

		return
	}

	d.log.Info("Download", slog.String("id", id), slog.Int64("counter", n))
}

func counterID(claim *entity.Claim) string {
	switch claim.Kind {
	case entity.ClaimSingleItem:
		return entity.ItemID(claim.CategorySlug, claim.MemberID)
	case entity.ClaimCategoryBundle:
		return entity.CategoryCardID(claim.CategorySlug)
	case entity.ClaimCustomFile:
		return claim.ProductID
	default:
		return "legacy:" + claim.LegacyPath
	}
}

func (d *deliveryService) fileExists(p string) bool {
	stat, err := d.fs.Stat(p)

	return err == nil && !stat.IsDir()
}
