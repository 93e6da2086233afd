// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/docstore/memory"
	"github.com/natours/natours/internal/docstore/postgres"
	"github.com/natours/natours/internal/httpapi"
	"github.com/natours/natours/internal/mail"
	"github.com/natours/natours/internal/observability"
	"github.com/natours/natours/internal/resource"
	"github.com/natours/natours/internal/store"
	"github.com/natours/natours/internal/tours"
)

// Collection names, matching the migrated table names.
const (
	usersCollection   = "users"
	toursCollection   = "tours"
	reviewsCollection = "reviews"
)

// backend is the document store behind the collections.
type backend struct {
	collections tours.Collections
	// ready reports whether the store answers.
	ready observability.ReadinessChecker
	close func()
}

// openBackend connects the configured store. With auto-migrate set, pending
// migrations are applied before the collections are opened.
func openBackend(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*backend, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return memoryBackend(), nil
	case config.StorePostgres:
	default:
		return nil, oops.Code("CONFIG_INVALID").With("store", cfg.Kind).Errorf("unknown store kind %q", cfg.Kind)
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, store.ConnectOptions{
		MaxConns: cfg.MaxConns,
		Attempts: cfg.ConnectAttempts,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return postgresBackend(pool), nil
}

func memoryBackend() *backend {
	return &backend{
		collections: tours.Collections{
			Users:   memory.New(usersCollection, memory.WithUnique(auth.FieldEmail)),
			Tours:   memory.New(toursCollection, memory.WithUnique(tours.FieldName)),
			Reviews: memory.New(reviewsCollection),
		},
		ready: func(context.Context) bool { return true },
		close: func() {},
	}
}

func postgresBackend(pool *pgxpool.Pool) *backend {
	return &backend{
		collections: tours.Collections{
			Users:   postgres.NewCollection(pool, usersCollection),
			Tours:   postgres.NewCollection(pool, toursCollection),
			Reviews: postgres.NewCollection(pool, reviewsCollection),
		},
		ready: func(ctx context.Context) bool { return pool.Ping(ctx) == nil },
		close: pool.Close,
	}
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("closing migrator failed", "error", err)
		}
	}()
	pending, err := m.Pending()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		return err
	}
	logger.Info("migrations applied", "count", len(pending))
	return nil
}

func newMailer(cfg config.MailConfig, logger *slog.Logger) (mail.Mailer, error) {
	if cfg.Driver == config.MailSMTP {
		return mail.NewSMTPMailer(cfg.SMTP)
	}
	return mail.NewLogMailer(logger), nil
}

func newHasher(cfg config.AuthConfig) *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(cfg.Argon2)
}

// newAPI assembles the services over coll and returns the router config.
// metrics may be nil.
func newAPI(cfg config.Config, coll tours.Collections, logger *slog.Logger, metrics *observability.Metrics) (httpapi.Config, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return httpapi.Config{}, err
	}
	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return httpapi.Config{}, err
	}
	appURL := ""
	if cfg.HTTP.PublicURL != "" {
		appURL = strings.TrimSuffix(cfg.HTTP.PublicURL, "/") + httpapi.Prefix + "/users/me"
	}
	svc, err := auth.NewService(auth.ServiceConfig{
		Store:  auth.NewIdentityStore(coll.Users),
		Hasher: newHasher(cfg.Auth),
		Tokens: tokens,
		Mailer: mailer,
		Logger: logger,
		AppURL: appURL,
	})
	if err != nil {
		return httpapi.Config{}, err
	}

	users, err := resource.NewHandler(auth.UserDescriptor(coll.Users))
	if err != nil {
		return httpapi.Config{}, err
	}
	tourHandler, err := resource.NewHandler(tours.TourDescriptor(coll))
	if err != nil {
		return httpapi.Config{}, err
	}
	reviews, err := resource.NewHandler(tours.ReviewDescriptor(coll))
	if err != nil {
		return httpapi.Config{}, err
	}

	return httpapi.Config{
		Auth:       svc,
		Users:      users,
		Tours:      tourHandler,
		Reviews:    reviews,
		Reports:    tours.NewReports(coll.Tours),
		Logger:     logger,
		Metrics:    metrics,
		Production: cfg.Production(),
		CookieTTL:  cfg.Auth.CookieTTL,
		PublicURL:  cfg.HTTP.PublicURL,
		RateLimit:  cfg.HTTP.RateLimit,
	}, nil
}
