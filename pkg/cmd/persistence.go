package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/orchestrix/orchestrix/pkg/persistence"
	"github.com/orchestrix/orchestrix/pkg/persistence/memory"
	"github.com/orchestrix/orchestrix/pkg/persistence/postgresql"
)

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgresql persistence: %w", err))
		}

		return p
	default:
		return memory.NewPersistence()
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	if provider == "postgres" || provider == "postgresql" {
		return "postgresql"
	}

	return "memory"
}
