// Package seed fills a development database with demo problems.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"obralog/internal/problems"
	"obralog/internal/utils"
	"obralog/pkg/types"

	"github.com/sirupsen/logrus"
)

// TitlePrefix marks seeded rows so a reset only removes demo data.
const TitlePrefix = "[seed] "

type demoProblem struct {
	Title           string
	Description     string
	Tags            []string
	Location        string
	Recommendations string
	LatitudeGMS     string
	LongitudeGMS    string
	Latitude        float64
	Longitude       float64
	Resolution      string
	Plan            *types.PlanPatch
}

var demoProblems = []demoProblem{
	{
		Title:           "Andaime sem guarda-corpo",
		Description:     "Andaime da fachada norte montado sem guarda-corpo e rodapé no terceiro nível.",
		Tags:            []string{"seguranca"},
		Location:        "Bloco A, fachada norte",
		Recommendations: "Interditar o nível até a instalação do guarda-corpo.",
		LatitudeGMS:     "23°33'01\"S",
		LongitudeGMS:    "46°38'02\"W",
		Latitude:        -23.550278,
		Longitude:       -46.633889,
		Resolution:      "Guarda-corpo e rodapé instalados e vistoriados pelo técnico de segurança.",
		Plan: &types.PlanPatch{
			What:     utils.StringPtr("Instalar guarda-corpo e rodapé"),
			Why:      utils.StringPtr("Risco de queda de altura"),
			WhenPlan: utils.StringPtr("Imediato"),
			Who:      utils.StringPtr("Equipe de montagem de andaimes"),
			HowMuch:  utils.StringPtr("R$ 1.800,00"),
		},
	},
	{
		Title:       "Vazamento de óleo do gerador",
		Description: "Mancha de óleo no solo ao redor do gerador do canteiro, sem bacia de contenção.",
		Tags:        []string{"meio_ambiente"},
		Location:    "Canteiro, área de utilidades",
		Resolution:  "Bacia de contenção instalada e solo contaminado removido.",
		Plan: &types.PlanPatch{
			What: utils.StringPtr("Instalar bacia de contenção"),
			How:  utils.StringPtr("Bacia metálica com capacidade de 110% do tanque"),
		},
	},
	{
		Title:           "Poeira excessiva no acesso",
		Description:     "Tráfego de caminhões levanta poeira no acesso principal e atinge a vizinhança.",
		Tags:            []string{"meio_ambiente", "saude"},
		Location:        "Portão 1",
		Recommendations: "Umectar a via três vezes ao dia.",
	},
	{
		Title:       "Trabalhadores sem protetor auricular",
		Description: "Operadores da serra circular trabalhando sem protetor auricular.",
		Tags:        []string{"saude", "seguranca"},
		Location:    "Central de carpintaria",
		Resolution:  "EPIs entregues e registro de treinamento assinado.",
	},
	{
		Title:        "Entulho acumulado junto à caçamba",
		Description:  "Resíduos de demolição fora da caçamba, misturados com material reciclável.",
		Tags:         []string{"meio_ambiente", "outros"},
		Location:     "Bloco B, térreo",
		LatitudeGMS:  "23°33'05\"S",
		LongitudeGMS: "46°38'10\"W",
		Latitude:     -23.551389,
		Longitude:    -46.636111,
	},
	{
		Title:       "Extintor vencido no almoxarifado",
		Description: "Extintor de pó químico com carga vencida há dois meses.",
		Tags:        []string{"seguranca"},
		Location:    "Almoxarifado",
	},
	{
		Title:       "Placa de licença ausente",
		Description: "Placa com número da licença de instalação não está visível no tapume.",
		Tags:        []string{"outros"},
		Location:    "Tapume frontal",
	},
}

type weightedSeverity struct {
	Severity types.Severity
	Weight   int
}

var weightedSeverities = []weightedSeverity{
	{Severity: types.SeverityCritical, Weight: 15},
	{Severity: types.SeverityHigh, Weight: 30},
	{Severity: types.SeverityMedium, Weight: 35},
	{Severity: types.SeverityLow, Weight: 20},
}

// SeedProblems creates count demo problems for userID, cycling through the
// catalogue above. Problems with a resolution text are resolved after
// creation. With reset, earlier demo problems of the user are deleted first.
func SeedProblems(ctx context.Context, logger *logrus.Logger, svc *problems.Service, userID string, count int, reset bool) error {
	ctx = problems.WithUser(ctx, &types.User{ID: userID})

	if reset {
		existing, err := svc.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list problems for reset: %w", err)
		}

		deleted := 0
		for _, p := range existing {
			if !strings.HasPrefix(p.Title, TitlePrefix) {
				continue
			}
			if err := svc.Delete(ctx, p.ID); err != nil {
				return fmt.Errorf("failed to delete seeded problem %s: %w", p.ID, err)
			}
			deleted++
		}
		logger.WithField("deleted", deleted).Info("reset seeded problems")
	}

	if count <= 0 {
		logger.Info("skipping problem seed because count <= 0")
		return nil
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	created, resolved := 0, 0
	for i := 0; i < count; i++ {
		demo := demoProblems[i%len(demoProblems)]

		problem, err := svc.Create(ctx, demo.newProblem(pickWeightedSeverity(rng)))
		if err != nil {
			return fmt.Errorf("failed to create demo problem %d: %w", i+1, err)
		}
		created++

		if demo.Plan != nil {
			if _, err := svc.SavePrimaryPlan(ctx, problem.ID, *demo.Plan); err != nil {
				return fmt.Errorf("failed to create plan for demo problem %s: %w", problem.ID, err)
			}
		}

		// leave roughly a third of the resolvable ones pending
		if demo.Resolution != "" && rng.Intn(3) > 0 {
			if _, err := svc.Resolve(ctx, problem.ID, demo.Resolution, nil); err != nil {
				return fmt.Errorf("failed to resolve demo problem %s: %w", problem.ID, err)
			}
			resolved++
		}
	}

	logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"created":  created,
		"resolved": resolved,
	}).Info("demo problems seeded")

	return nil
}

func (d demoProblem) newProblem(severity types.Severity) types.NewProblem {
	in := types.NewProblem{
		Title:           TitlePrefix + d.Title,
		Description:     d.Description,
		Tags:            types.NewTagSet(d.Tags),
		Severity:        severity,
		Location:        d.Location,
		Recommendations: d.Recommendations,
		LatitudeGMS:     d.LatitudeGMS,
		LongitudeGMS:    d.LongitudeGMS,
	}
	if d.Latitude != 0 || d.Longitude != 0 {
		in.LatitudeDecimal = utils.Float64Ptr(d.Latitude)
		in.LongitudeDecimal = utils.Float64Ptr(d.Longitude)
	}
	return in
}

func pickWeightedSeverity(rng *rand.Rand) types.Severity {
	total := 0
	for _, item := range weightedSeverities {
		total += item.Weight
	}

	roll := rng.Intn(total)
	running := 0
	for _, item := range weightedSeverities {
		running += item.Weight
		if roll < running {
			return item.Severity
		}
	}

	return types.SeverityMedium
}
