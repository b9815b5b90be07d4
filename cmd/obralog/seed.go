package main

import (
	"fmt"

	"obralog/internal/seed"

	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Insert demo problems for a user",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Usage: "Number of demo problems to create",
			Value: 7,
		},
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "Delete earlier demo problems of the user first",
		},
		&cli.StringFlag{
			Name:  "user",
			Usage: "Owner user id, defaults to the development login account",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c, true)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger := newLogger(cfg)

		pool, svc, err := connectProblems(c.Context, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		userID := userFlag(c.String("user"), cfg)
		return seed.SeedProblems(c.Context, logger, svc, userID, c.Int("count"), c.Bool("reset"))
	},
}
