package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/Stanislav-it/docubeauty/internal/service/delivery"
	"github.com/Stanislav-it/docubeauty/internal/util"
)

const maxTokenLen = 4096

var (
	entityIDRegexp = regexp.MustCompile(`^[a-zA-Z0-9:._-]{1,200}$`)
	tokenRegexp    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

type CatalogService interface {
	Materialize() []*entity.Product
	DeleteEntity(id string) error
}

type DeliveryService interface {
	Grants(ctx context.Context, sessionID string) ([]entity.GrantedDownload, string, error)
	Redeem(ctx context.Context, token string) (*delivery.Delivery, error)
}

type CounterService interface {
	Get(ctx context.Context, id string) (int64, error)
	All(ctx context.Context) (map[string]int64, error)
}

type OverrideService interface {
	SetTitle(id, title string) error
	SetPrice(id string, price float64) error
	SetDescription(id, desc string) error
	SetCategory(id, category string) error
	SetPhoto(id, rel string) error
	SetCustomCategories(names []string) error
	AppendCustomProduct(rec entity.CustomProductRecord) (entity.CustomProductRecord, error)
}

type productView struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Title        string   `json:"title"`
	Category     string   `json:"category,omitempty"`
	PricePLN     float64  `json:"price_pln"`
	PriceDisplay string   `json:"price_display"`
	Description  string   `json:"description,omitempty"`
	Images       []string `json:"images,omitempty"`
	Purchasable  bool     `json:"purchasable"`
}

func NewCatalogHandler(srv CatalogService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CatalogHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		products := srv.Materialize()

		views := make([]productView, 0, len(products))
		for _, p := range products {
			views = append(views, productView{
				ID:           p.ID,
				Kind:         p.Kind.String(),
				Title:        p.Title,
				Category:     p.Category,
				PricePLN:     p.PricePLN,
				PriceDisplay: util.FormatPLN(p.PricePLN),
				Description:  p.Description,
				Images:       p.Images,
				Purchasable:  p.Purchasable(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(views); err != nil {
			log.Error("Cannot encode catalog", slog.Any("error", err))
		}
	}
}

func NewGrantsHandler(srv DeliveryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "GrantsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		grants, email, err := srv.Grants(r.Context(), req.SessionID)
		if err != nil {
			log.Warn("Cannot grant downloads", slog.Any("error", err))
			writeError(w, err)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"downloads":      grants,
			"customer_email": email,
		}); err != nil {
			log.Error("Cannot encode grants", slog.Any("error", err))
		}
	}
}

func NewDownloadHandler(srv DeliveryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DownloadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		if len(token) > maxTokenLen || !tokenRegexp.MatchString(token) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		d, err := srv.Redeem(r.Context(), token)
		if err != nil {
			log.Warn("Redemption failed", slog.Any("error", err))
			writeError(w, err)

			return
		}

		log.Info("Serve download", slog.String("filename", d.Filename))

		w.Header().Set("Content-Disposition", `attachment; filename="`+d.Filename+`"`)
		http.ServeFile(w, r, d.Path)
	}
}

func NewStatsHandler(srv CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !entityIDRegexp.MatchString(id) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		n, err := srv.Get(r.Context(), id)
		if err != nil {
			log.Error("Cannot get counter", slog.String("id", id), slog.Any("error", err))
			http.Error(w, "Cannot get stats", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]int64{"downloads": n}); err != nil {
			log.Error("Cannot encode stats", slog.Any("error", err))
		}
	}
}

func NewStatsListHandler(srv CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatsListHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		all, err := srv.All(r.Context())
		if err != nil {
			log.Error("Cannot get counters", slog.Any("error", err))
			http.Error(w, "Cannot get stats", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(all); err != nil {
			log.Error("Cannot encode stats", slog.Any("error", err))
		}
	}
}

// NewOverrideHandler applies one admin edit to one override layer.
func NewOverrideHandler(srv OverrideService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "OverrideHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Layer string   `json:"layer"`
			ID    string   `json:"id"`
			Value string   `json:"value"`
			Price *float64 `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !entityIDRegexp.MatchString(req.ID) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		var err error
		switch req.Layer {
		case "title":
			err = srv.SetTitle(req.ID, req.Value)
		case "price":
			if req.Price == nil {
				http.Error(w, "Bad request", http.StatusBadRequest)

				return
			}
			err = srv.SetPrice(req.ID, *req.Price)
		case "description":
			err = srv.SetDescription(req.ID, req.Value)
		case "category":
			err = srv.SetCategory(req.ID, req.Value)
		case "photo":
			err = srv.SetPhoto(req.ID, req.Value)
		default:
			http.Error(w, "Unknown layer", http.StatusBadRequest)

			return
		}
		if err != nil {
			log.Error("Cannot save override", slog.String("layer", req.Layer), slog.Any("error", err))
			http.Error(w, "Cannot save override", http.StatusInternalServerError)

			return
		}

		w.Write([]byte("ok"))
	}
}

// NewCustomCategoriesHandler replaces the free-standing custom category list.
func NewCustomCategoriesHandler(srv OverrideService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CustomCategoriesHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Names []string `json:"names"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.SetCustomCategories(req.Names); err != nil {
			log.Error("Cannot save custom categories", slog.Any("error", err))
			http.Error(w, "Cannot save custom categories", http.StatusInternalServerError)

			return
		}

		w.Write([]byte("ok"))
	}
}

// NewCustomProductHandler appends one custom product record.
func NewCustomProductHandler(srv OverrideService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CustomProductHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var rec entity.CustomProductRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || strings.TrimSpace(rec.Title) == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		saved, err := srv.AppendCustomProduct(rec)
		if err != nil {
			log.Error("Cannot save custom product", slog.Any("error", err))
			http.Error(w, "Cannot save custom product", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(saved); err != nil {
			log.Error("Cannot encode custom product", slog.Any("error", err))
		}
	}
}

// NewDeleteHandler soft-deletes an entity (cascading over category items).
func NewDeleteHandler(srv CatalogService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DeleteHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !entityIDRegexp.MatchString(req.ID) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.DeleteEntity(req.ID); err != nil {
			log.Error("Cannot delete entity", slog.String("id", req.ID), slog.Any("error", err))
			http.Error(w, "Cannot delete entity", http.StatusInternalServerError)

			return
		}

		w.Write([]byte("ok"))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrExpiredLink):
		http.Error(w, "Link expired", http.StatusGone)
	case errors.Is(err, common.ErrInvalidLink), errors.Is(err, common.ErrInvalidPath):
		http.Error(w, "Invalid link", http.StatusBadRequest)
	case errors.Is(err, common.ErrPaymentNotConfirmed):
		http.Error(w, "Payment not confirmed", http.StatusForbidden)
	case errors.Is(err, common.ErrAccessDenied):
		http.Error(w, "Access denied", http.StatusForbidden)
	case errors.Is(err, common.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		http.Error(w, "Cannot serve request", http.StatusInternalServerError)
	}
}
