package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"obralog/internal/problems"
	"obralog/internal/report"
	"obralog/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var exportCommand = &cli.Command{
	Name:      "export",
	Usage:     "Write a report of a user's problems to a file",
	ArgsUsage: "<" + strings.Join(kindNames(), "|") + ">",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "user",
			Usage: "Owner user id, defaults to the development login account",
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Output directory",
			Value:   ".",
		},
	},
	Action: func(c *cli.Context) error {
		kind, err := report.ParseKind(c.Args().First())
		if err != nil {
			return fmt.Errorf("choose one of %s: %w", strings.Join(kindNames(), ", "), err)
		}

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
		ctx := problems.WithUser(c.Context, &types.User{ID: userID})

		list, err := svc.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list problems: %w", err)
		}

		awsConfig, err := loadAWSConfig(c.Context)
		if err != nil {
			return err
		}

		blob, err := openBlob(cfg, awsConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to open photo storage: %w", err)
		}

		in := report.Collect(ctx, logger, photoFetcher(cfg, blob), list, cfg.PhotoFetchConcurrency, time.Now())
		artifact, err := report.Render(kind, in)
		if err != nil {
			return err
		}

		path := filepath.Join(c.String("out"), artifact.Filename)
		if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"kind":     kind,
			"problems": len(list),
			"path":     path,
			"bytes":    len(artifact.Data),
		}).Info("report written")

		return nil
	},
}

func kindNames() []string {
	names := make([]string, 0, len(report.Kinds))
	for _, k := range report.Kinds {
		names = append(names, string(k))
	}
	return names
}
