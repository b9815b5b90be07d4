package main

import (
	"context"

	"obralog/internal/db"
	"obralog/internal/problems"
	"obralog/internal/store"
	"obralog/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// connectProblems opens the pool and builds the problems service on top of
// it. The caller closes the pool.
func connectProblems(ctx context.Context, config *types.Config, logger *logrus.Logger) (*pgxpool.Pool, *problems.Service, error) {
	pool, err := db.Connect(ctx, config)
	if err != nil {
		return nil, nil, err
	}

	svc := problems.NewService(
		logger,
		store.NewProblemRepository(pool),
		store.NewPhotoRepository(pool),
		store.NewPlanRepository(pool),
	)

	return pool, svc, nil
}

// userFlag resolves the --user flag, falling back to the development login
// account.
func userFlag(value string, config *types.Config) string {
	if value != "" {
		return value
	}
	return problems.DevUserID(config.DevLoginEmail)
}
