package problems

import (
	"context"

	"obralog/pkg/types"

	"github.com/sirupsen/logrus"
)

// SavePrimaryPlan updates the problem's first plan, or creates it when the
// problem has none.
func (s *Service) SavePrimaryPlan(ctx context.Context, problemID string, patch types.PlanPatch) (*types.RemediationPlan, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	problem, err := s.get(ctx, user.ID, problemID)
	if err != nil {
		return nil, err
	}

	if primary := problem.PrimaryPlan(); primary != nil {
		return s.updatePlan(ctx, user.ID, primary.ID, patch)
	}

	return s.createPlan(ctx, user.ID, problemID, patch)
}

// CreatePlan adds another plan next to the primary one.
func (s *Service) CreatePlan(ctx context.Context, problemID string, patch types.PlanPatch) (*types.RemediationPlan, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.problems.Problem(ctx, user.ID, problemID); err != nil {
		return nil, err
	}

	return s.createPlan(ctx, user.ID, problemID, patch)
}

func (s *Service) UpdatePlan(ctx context.Context, planID string, patch types.PlanPatch) (*types.RemediationPlan, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	return s.updatePlan(ctx, user.ID, planID, patch)
}

func (s *Service) DeletePlan(ctx context.Context, planID string) error {
	user, err := UserFromContext(ctx)
	if err != nil {
		return err
	}

	if err := s.plans.DeletePlan(ctx, user.ID, planID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{"plan_id": planID, "user_id": user.ID}).Info("plan deleted")
	return nil
}

func (s *Service) createPlan(ctx context.Context, userID, problemID string, patch types.PlanPatch) (*types.RemediationPlan, error) {
	plan := &types.RemediationPlan{
		ProblemID: problemID,
		UserID:    userID,
	}
	applyPlanPatch(plan, patch)

	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}

	return s.plans.Plan(ctx, userID, plan.ID)
}

func (s *Service) updatePlan(ctx context.Context, userID, planID string, patch types.PlanPatch) (*types.RemediationPlan, error) {
	if patch.Empty() {
		return s.plans.Plan(ctx, userID, planID)
	}

	if err := s.plans.UpdatePlan(ctx, userID, planID, planFields(patch)); err != nil {
		return nil, err
	}

	return s.plans.Plan(ctx, userID, planID)
}

func applyPlanPatch(plan *types.RemediationPlan, patch types.PlanPatch) {
	set := func(dst **string, src *string) {
		if src != nil {
			*dst = optional(*src)
		}
	}

	set(&plan.What, patch.What)
	set(&plan.Why, patch.Why)
	set(&plan.WhenPlan, patch.WhenPlan)
	set(&plan.WherePlan, patch.WherePlan)
	set(&plan.Who, patch.Who)
	set(&plan.How, patch.How)
	set(&plan.HowMuch, patch.HowMuch)
	set(&plan.Observations, patch.Observations)
	if patch.Resolved != nil {
		plan.Resolved = *patch.Resolved
	}
}

func planFields(patch types.PlanPatch) map[string]any {
	fields := map[string]any{}
	put := func(column string, v *string) {
		if v != nil {
			fields[column] = optional(*v)
		}
	}

	put("what", patch.What)
	put("why", patch.Why)
	put("when_plan", patch.WhenPlan)
	put("where_plan", patch.WherePlan)
	put("who", patch.Who)
	put("how", patch.How)
	put("how_much", patch.HowMuch)
	put("observations", patch.Observations)
	if patch.Resolved != nil {
		fields["resolved"] = *patch.Resolved
	}

	return fields
}
