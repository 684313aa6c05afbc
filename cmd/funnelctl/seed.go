package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/campus"
	"leadfunnel_backend/internal/objection"
	"leadfunnel_backend/platform/validator"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type advisorFile struct {
	Advisors []booking.Advisor `yaml:"advisors"`
}

type objectionFile struct {
	Objections []objection.Entry `yaml:"objections"`
}

// LocationChecker reports whether a location id is configured.
type LocationChecker interface {
	Get(locationID string) (campus.Campus, bool)
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data from YAML files",
	}

	cmd.AddCommand(seedAdvisorsCmd())
	cmd.AddCommand(seedObjectionsCmd())

	return cmd
}

func seedAdvisorsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "advisors",
		Short: "Upsert the advisor roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			registry, err := campus.Load(cfg.GetCampusConfigPath())
			if err != nil {
				return err
			}
			advisors, err := parseAdvisors(data, validator.New(), registry)
			if err != nil {
				return err
			}

			n, err := upsertAdvisors(cmd.Context(), booking.NewRepository(pool), advisors)
			if err != nil {
				return err
			}
			newLogger().Info("advisors seeded", "count", n, "file", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "config/advisors.yaml", "advisor roster file")
	return cmd
}

func seedObjectionsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "objections",
		Short: "Upsert the objection playbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			entries, err := parseObjections(data, validator.New())
			if err != nil {
				return err
			}

			_, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := objection.NewRepository(pool)
			for _, e := range entries {
				if err := repo.Upsert(cmd.Context(), e); err != nil {
					return fmt.Errorf("upsert objection %q: %w", e.Category, err)
				}
			}
			newLogger().Info("objections seeded", "count", len(entries), "file", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "config/objections.yaml", "objection playbook file")
	return cmd
}

// parseAdvisors decodes and validates a roster. Every advisor must belong to
// a configured location.
func parseAdvisors(data []byte, val *validator.Validator, locations LocationChecker) ([]booking.Advisor, error) {
	var f advisorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse advisors: %w", err)
	}
	if len(f.Advisors) == 0 {
		return nil, fmt.Errorf("advisor file has no advisors")
	}
	for i, a := range f.Advisors {
		if err := val.Struct(a); err != nil {
			return nil, fmt.Errorf("advisor %d (%s): %s", i+1, a.Name, strings.Join(validator.Describe(err), "; "))
		}
		if _, ok := locations.Get(a.LocationID); !ok {
			return nil, fmt.Errorf("advisor %d (%s): unknown location_id %q", i+1, a.Name, a.LocationID)
		}
	}
	return f.Advisors, nil
}

// parseObjections decodes and validates a playbook. Categories are unique.
func parseObjections(data []byte, val *validator.Validator) ([]objection.Entry, error) {
	var f objectionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse objections: %w", err)
	}
	seen := make(map[string]bool, len(f.Objections))
	for i, e := range f.Objections {
		if err := val.Struct(e); err != nil {
			return nil, fmt.Errorf("objection %d (%s): %s", i+1, e.Category, strings.Join(validator.Describe(err), "; "))
		}
		if seen[e.Category] {
			return nil, fmt.Errorf("objection %d: duplicate category %q", i+1, e.Category)
		}
		seen[e.Category] = true
	}
	return f.Objections, nil
}

type advisorUpserter interface {
	Upsert(ctx context.Context, a booking.Advisor) (booking.Advisor, error)
}

func upsertAdvisors(ctx context.Context, store advisorUpserter, advisors []booking.Advisor) (int, error) {
	for i, a := range advisors {
		if _, err := store.Upsert(ctx, a); err != nil {
			return i, fmt.Errorf("upsert advisor %q: %w", a.Name, err)
		}
	}
	return len(advisors), nil
}
