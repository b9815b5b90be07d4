package problems

import (
	"testing"

	"obralog/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSavePrimaryPlanUpserts(t *testing.T) {
	svc, db := newTestService()
	ctx := userCtx("u1")

	p, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	created, err := svc.SavePrimaryPlan(ctx, p.ID, types.PlanPatch{What: strPtr("Cercar a vala"), Who: strPtr("Equipe A")})
	require.NoError(t, err)
	assert.Equal(t, "Cercar a vala", *created.What)

	updated, err := svc.SavePrimaryPlan(ctx, p.ID, types.PlanPatch{What: strPtr("Fechar a vala"), HowMuch: strPtr("  ")})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Fechar a vala", *updated.What)
	assert.Equal(t, "Equipe A", *updated.Who)
	assert.Nil(t, updated.HowMuch)
	assert.Len(t, db.plans, 1)
}

func TestPlanCRUD(t *testing.T) {
	svc, db := newTestService()
	ctx := userCtx("u1")

	p, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.CreatePlan(userCtx("u2"), p.ID, types.PlanPatch{})
	assert.ErrorIs(t, err, types.ErrProblemNotFound)

	first, err := svc.CreatePlan(ctx, p.ID, types.PlanPatch{What: strPtr("a")})
	require.NoError(t, err)
	second, err := svc.CreatePlan(ctx, p.ID, types.PlanPatch{What: strPtr("b")})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	done := true
	got, err := svc.UpdatePlan(ctx, second.ID, types.PlanPatch{Resolved: &done, Observations: strPtr("concluído")})
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, "concluído", *got.Observations)
	assert.Equal(t, "b", *got.What)

	_, err = svc.UpdatePlan(userCtx("u2"), second.ID, types.PlanPatch{Resolved: &done})
	assert.ErrorIs(t, err, types.ErrPlanNotFound)

	require.NoError(t, svc.DeletePlan(ctx, first.ID))
	assert.ErrorIs(t, svc.DeletePlan(ctx, first.ID), types.ErrPlanNotFound)
	assert.Len(t, db.plans, 1)

	problem, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, problem.PrimaryPlan())
	assert.Equal(t, second.ID, problem.PrimaryPlan().ID)
}
