package main

import (
	"fmt"
	"os"

	"obralog/internal/board"
	"obralog/internal/format"
	"obralog/internal/problems"
	"obralog/internal/report"
	"obralog/pkg/types"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var problemsCommand = &cli.Command{
	Name:  "problems",
	Usage: "List a user's problems",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "user",
			Usage: "Owner user id, defaults to the development login account",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Dump the full records",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the records as JSON",
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

		ctx := problems.WithUser(c.Context, &types.User{ID: userFlag(c.String("user"), cfg)})

		list, err := svc.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list problems: %w", err)
		}

		switch {
		case c.Bool("json"):
			data, err := report.JSON(list)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(append(data, '\n'))
			return err

		case c.Bool("pretty"):
			printer := pp.New()
			printer.SetOutput(os.Stdout)
			printer.SetColoringEnabled(false)
			for _, p := range list {
				printer.Println(p)
			}
			return nil
		}

		b := board.New(list)
		for _, p := range b.Snapshot() {
			fmt.Printf("%s  %-9s  %-8s  %s\n", format.ProblemCode(p.ProblemNumber), format.StatusLabel(p.Status), format.SeverityLabel(p.Severity), p.Title)
		}

		stats := b.Stats()
		fmt.Printf("\n%d problemas, %d pendentes, %d resolvidos\n", stats.Total, stats.Pending, stats.Resolved)
		return nil
	},
}
