package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Stanislav-it/docubeauty/internal/adapter/fsadapter"
	"github.com/Stanislav-it/docubeauty/internal/adapter/payment"
	"github.com/Stanislav-it/docubeauty/internal/config"
	httphandler "github.com/Stanislav-it/docubeauty/internal/handler/http"
	"github.com/Stanislav-it/docubeauty/internal/repository/counter"
	"github.com/Stanislav-it/docubeauty/internal/repository/override"
	"github.com/Stanislav-it/docubeauty/internal/service/bundle"
	"github.com/Stanislav-it/docubeauty/internal/service/catalog"
	"github.com/Stanislav-it/docubeauty/internal/service/delivery"
	"github.com/Stanislav-it/docubeauty/internal/service/token"
	"github.com/Stanislav-it/docubeauty/internal/util"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	catalog *catalog.CatalogService
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	// Download stats are optional. Without redis the shop still sells,
	// it just does not count.
	var counters *counter.CounterRepository
	if a.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			panic(err)
		}

		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			panic(err)
		}

		counters = counter.NewCounterRepository(rdb, log)
	}

	scanner := fsadapter.NewFSAdapter(&a.cfg.Scanner, log)
	overrides := override.NewOverrideStore(&a.cfg.Store, log)
	a.catalog = catalog.NewCatalogService(scanner, overrides, log)

	bundler := bundle.NewBundleService(&a.cfg.Cache, log)
	tokens := token.NewTokenService(a.cfg.Delivery.SecretKey, a.cfg.Delivery.TokenTTL(), log)
	verifier := payment.NewHTTPVerifier(a.cfg.Delivery.PaymentVerifyURL, log)

	var counterDep delivery.CounterRepository
	if counters != nil {
		counterDep = counters
	}
	dSrv := delivery.NewDeliveryService(&a.cfg.Delivery, verifier, tokens, a.catalog, scanner, bundler, counterDep, log)

	http.Handle("GET /catalog/{$}", httphandler.NewCatalogHandler(a.catalog, log))
	http.Handle("POST /grants/{$}", httphandler.NewGrantsHandler(dSrv, log))
	http.Handle("GET /download/{token}/{$}", httphandler.NewDownloadHandler(dSrv, log))
	http.Handle("POST /admin/override/{$}", httphandler.NewOverrideHandler(overrides, log))
	http.Handle("POST /admin/custom-categories/{$}", httphandler.NewCustomCategoriesHandler(overrides, log))
	http.Handle("POST /admin/custom-products/{$}", httphandler.NewCustomProductHandler(overrides, log))
	http.Handle("POST /admin/delete/{$}", httphandler.NewDeleteHandler(a.catalog, log))
	if counters != nil {
		http.Handle("GET /stats/{$}", httphandler.NewStatsListHandler(counters, log))
		http.Handle("GET /stats/{id}/{$}", httphandler.NewStatsHandler(counters, log))
	}

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

// Summary prints the materialized catalog to stdout. Wired to SIGUSR1 so an
// operator can see what the scanner found without hitting the API.
func (a *App) Summary() {
	fmt.Println("Materializing...")

	products := a.catalog.Materialize()
	for i, p := range products {
		fmt.Printf("%d. [%s] %s (%s)\n", i+1, p.Kind, p.Title, util.FormatPLN(p.PricePLN))
	}

	fmt.Printf("Done, %d products.\n", len(products))
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.srv.Shutdown(ctx)
}
