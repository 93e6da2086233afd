// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/internal/tours"
)

// Default timeout for seed command.
const defaultSeedTimeout = 2 * time.Minute

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout time.Duration
	delete  bool
}

// seedData is the content of a seed file. JSON files parse as YAML.
type seedData struct {
	Users   []map[string]any `yaml:"users"`
	Tours   []map[string]any `yaml:"tours"`
	Reviews []map[string]any `yaml:"reviews"`
}

// seedCounts reports how many documents each collection received.
type seedCounts struct {
	Users, Tours, Reviews int
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Import or delete development data",
		Long: `Imports users, tours and reviews from a YAML or JSON file with top-level
"users", "tours" and "reviews" lists. Documents keep their ids, so reviews
can reference the tours and users of the same file. User passwords are
given in plain text and hashed on import.

With --delete every document of the three collections is removed instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if cfg.delete {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().BoolVar(&cfg.delete, "delete", false, "delete all users, tours and reviews")

	return cmd
}

func runSeed(cmd *cobra.Command, args []string, cfg *seedConfig) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(appCfg)

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	var data seedData
	if !cfg.delete {
		if data, err = loadSeed(args[0]); err != nil {
			return err
		}
	}

	be, err := openBackend(ctx, appCfg.Store, logger)
	if err != nil {
		return oops.Code("SEED_STORE_FAILED").With("store", appCfg.Store.Kind).Wrap(err)
	}
	defer be.close()

	if cfg.delete {
		n, err := deleteAll(ctx, be.collections)
		if err != nil {
			return err
		}
		cmd.Printf("Deleted %d documents\n", n)
		return nil
	}

	counts, err := importSeed(ctx, be.collections, newHasher(appCfg.Auth), data)
	if err != nil {
		return err
	}
	cmd.Printf("Imported %d users, %d tours and %d reviews\n", counts.Users, counts.Tours, counts.Reviews)
	return nil
}

// loadSeed parses the seed file at path.
func loadSeed(path string) (seedData, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return seedData{}, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	var data seedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return seedData{}, oops.Code("SEED_PARSE_FAILED").With("path", path).Wrap(err)
	}
	return data, nil
}

// prepare validates doc against s with its system fields set aside and
// returns the document to insert.
func prepare(s *schema.Schema, doc map[string]any) (docstore.Document, error) {
	body := docstore.Clone(doc)
	system := docstore.Document{}
	for _, k := range []string{schema.IDField, schema.CreatedAtField} {
		if v, ok := body[k]; ok {
			system[k] = v
			delete(body, k)
		}
	}
	s.ApplyDefaults(body)
	if err := s.Validate(body); err != nil {
		return nil, err
	}
	s.Normalize(body)
	for k, v := range system {
		body[k] = v
	}
	return body, nil
}

// importSeed inserts data in dependency order and recomputes the ratings
// of every reviewed tour.
func importSeed(ctx context.Context, c tours.Collections, hasher auth.PasswordHasher, data seedData) (seedCounts, error) {
	var counts seedCounts
	fail := func(kind string, i int, err error) error {
		return oops.Code("SEED_IMPORT_FAILED").With("kind", kind).With("index", i).Wrap(err)
	}

	for i, u := range data.Users {
		doc := docstore.Clone(u)
		password, _ := doc[auth.FieldPassword].(string)
		if password == "" {
			return counts, fail("user", i, errors.New("password is required"))
		}
		hash, err := hasher.Hash(password)
		if err != nil {
			return counts, fail("user", i, err)
		}
		doc[auth.FieldPassword] = hash
		delete(doc, "passwordConfirm")
		if email, ok := doc[auth.FieldEmail].(string); ok {
			doc[auth.FieldEmail] = auth.NormalizeEmail(email)
		}
		if doc, err = prepare(auth.UserSchema, doc); err != nil {
			return counts, fail("user", i, err)
		}
		if _, err := c.Users.Insert(ctx, doc); err != nil {
			return counts, fail("user", i, err)
		}
		counts.Users++
	}

	for i, t := range data.Tours {
		doc := docstore.Clone(t)
		delete(doc, tours.FieldSlug)
		doc, err := prepare(tours.TourSchema, doc)
		if err != nil {
			return counts, fail("tour", i, err)
		}
		if name, ok := doc[tours.FieldName].(string); ok {
			doc[tours.FieldSlug] = tours.Slugify(name)
		}
		if _, err := c.Tours.Insert(ctx, doc); err != nil {
			return counts, fail("tour", i, err)
		}
		counts.Tours++
	}

	reviewed := map[string]bool{}
	for i, r := range data.Reviews {
		doc, err := prepare(tours.ReviewSchema, r)
		if err != nil {
			return counts, fail("review", i, err)
		}
		if _, err := c.Reviews.Insert(ctx, doc); err != nil {
			return counts, fail("review", i, err)
		}
		if id, ok := doc[tours.FieldTour].(string); ok {
			reviewed[id] = true
		}
		counts.Reviews++
	}
	for id := range reviewed {
		if err := tours.UpdateTourRatings(ctx, c.Tours, c.Reviews, id); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// deleteAll removes every document of the three collections and returns
// how many were removed.
func deleteAll(ctx context.Context, c tours.Collections) (int, error) {
	n := 0
	for _, coll := range []docstore.Collection{c.Reviews, c.Tours, c.Users} {
		docs, err := coll.Find(ctx, &query.Descriptor{})
		if err != nil {
			return n, oops.Code("SEED_DELETE_FAILED").With("collection", coll.Name()).Wrap(err)
		}
		for _, doc := range docs {
			id, _ := doc[schema.IDField].(string)
			if err := coll.DeleteByID(ctx, id); err != nil && !errors.Is(err, docstore.ErrNotFound) {
				return n, oops.Code("SEED_DELETE_FAILED").With("collection", coll.Name()).With("id", id).Wrap(err)
			}
			n++
		}
	}
	return n, nil
}
