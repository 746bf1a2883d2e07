// repflow-import loads an exercise and routine catalog from a YAML file.
// Imports are idempotent: exercises match by name and re-imported
// routines have their slots replaced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/claude/repflow/internal/config"
	"github.com/claude/repflow/internal/models"
	"github.com/claude/repflow/internal/storage"
)

type catalogFile struct {
	Exercises []struct {
		Name      string `yaml:"name"`
		Equipment string `yaml:"equipment"`
	} `yaml:"exercises"`
	Routines []struct {
		Name      string `yaml:"name"`
		Exercises []struct {
			Exercise       string `yaml:"exercise"`
			Sets           int    `yaml:"sets"`
			DefaultRestSec int    `yaml:"default_rest_sec"`
		} `yaml:"exercises"`
	} `yaml:"routines"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	filePath := flag.String("file", "", "path to catalog YAML (required)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *filePath == "" {
		fmt.Fprintf(os.Stderr, "Usage: repflow-import -config config.yaml -file catalog.yaml\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Error("failed to read catalog file", "error", err)
		os.Exit(1)
	}
	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		log.Error("failed to parse catalog file", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var store storage.Store
	switch cfg.Database.Driver {
	case "postgres":
		store, err = storage.OpenPostgres(ctx, cfg.Database.DSN())
	default:
		store, err = storage.OpenSQLite(cfg.Database.Path)
	}
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Exercises first so routines can reference them by name.
	byName := make(map[string]models.Exercise)
	for _, e := range catalog.Exercises {
		ex := &models.Exercise{Name: e.Name, Equipment: e.Equipment}
		if err := store.UpsertExercise(ctx, ex); err != nil {
			log.Error("exercise import failed", "exercise", e.Name, "error", err)
			os.Exit(1)
		}
		byName[ex.Name] = *ex
	}
	log.Info("exercises imported", "count", len(catalog.Exercises))

	for _, r := range catalog.Routines {
		routine := &models.Routine{Name: r.Name}
		for i, slot := range r.Exercises {
			ex, ok := byName[slot.Exercise]
			if !ok {
				log.Error("routine references unknown exercise", "routine", r.Name, "exercise", slot.Exercise)
				os.Exit(1)
			}
			sets := slot.Sets
			if sets < 1 {
				sets = 3
			}
			routine.Exercises = append(routine.Exercises, models.RoutineExercise{
				Exercise:       ex,
				Position:       i + 1,
				PlannedSets:    sets,
				DefaultRestSec: slot.DefaultRestSec,
			})
		}
		if err := store.ReplaceRoutine(ctx, routine); err != nil {
			log.Error("routine import failed", "routine", r.Name, "error", err)
			os.Exit(1)
		}
		log.Info("routine imported", "routine", r.Name, "exercises", len(routine.Exercises))
	}
}
