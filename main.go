package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/xenastore/storefront/internal/api"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/realtime"
	"github.com/xenastore/storefront/internal/services"
	"github.com/xenastore/storefront/internal/session"
	"github.com/xenastore/storefront/pkg/config"
	"github.com/xenastore/storefront/pkg/logger"
	"github.com/xenastore/storefront/pkg/shutdown"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()

	log := logger.New(logger.Options{
		Service: cfg.OTELServiceName,
		Version: cfg.OTELServiceVersion,
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	if cfg.IsProduction() && cfg.SessionSecret == "dev-only-change-me" {
		return errors.New("SESSION_SECRET must be set in production")
	}

	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("error shutting down meter provider", "error", err)
		}
	}()

	database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	schemaSQL, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		log.Warn("could not read schema, assuming it already exists", "path", cfg.SchemaPath, "error", err)
	} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
		log.Warn("could not initialize schema, assuming it already exists", "error", err)
	}

	sessions := session.NewManager(cfg.SessionSecret)
	hub := realtime.NewHub(cfg.CORSOrigin)
	defer hub.Close()

	categoryService := services.NewCategoryService(database, appMetrics)
	productService := services.NewProductService(database, appMetrics)
	cartService := services.NewCartService(database, appMetrics)
	customerService := services.NewCustomerService(database, appMetrics)
	checkoutService := services.NewCheckoutService(database, appMetrics, cartService, customerService, hub, services.CheckoutConfig{
		StoreName:      cfg.StoreName,
		CurrencySymbol: cfg.CurrencySymbol,
		WhatsAppPhone:  cfg.WhatsAppPhone,
	})
	adminService := services.NewAdminService(database, appMetrics)
	mediaService, err := services.NewMediaService(services.MediaConfig{
		CloudinaryURL: cfg.CloudinaryURL,
		UploadPreset:  cfg.MediaUploadPreset,
		Folder:        cfg.MediaFolder,
		MaxBytes:      cfg.MediaMaxBytes,
	}, appMetrics)
	if err != nil {
		return err
	}

	if err := adminService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	app := api.NewApp(cfg, database, appMetrics, sessions, hub, api.Services{
		Categories: categoryService,
		Products:   productService,
		Carts:      cartService,
		Customers:  customerService,
		Checkout:   checkoutService,
		Admins:     adminService,
		Media:      mediaService,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "port", cfg.AppPort, "otlp_endpoint", cfg.OTELExporterOTLPEndpoint)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return cartService.MonitorActiveCarts(gctx, 30*time.Second)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}
