package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Gumbees/homebase-intake/internal/config"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	pg "github.com/Gumbees/homebase-intake/internal/infra/db/postgres"
)

// Seeds a handful of evaluation subjects so the scheduler has work to do on
// a fresh database.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	subjects := pg.NewSubjectRepo(pool)

	existing, err := subjects.FindDue(ctx, nil, time.Now().AddDate(1, 0, 0), 1)
	if err != nil {
		log.Fatalf("check subjects: %v", err)
	}
	if len(existing) > 0 {
		fmt.Println("subjects already present. No changes.")
		return
	}

	names := []string{
		"lawn mower",
		"espresso machine",
		"cordless drill",
		"road bike",
		"air purifier",
	}
	due := time.Now().Add(-time.Hour)
	for _, name := range names {
		s := &model.Subject{
			ID:                 uuid.NewString(),
			Name:               name,
			NextEvaluationDate: &due,
			CreatedAt:          time.Now(),
			UpdatedAt:          time.Now(),
		}
		if err := subjects.Save(ctx, nil, s); err != nil {
			log.Fatalf("seed subject %q: %v", name, err)
		}
		fmt.Printf("seeded: %s (id=%s)\n", s.Name, s.ID)
	}

	fmt.Println("✅ Seeding complete.")
}
