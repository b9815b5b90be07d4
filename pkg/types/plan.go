package types

import "time"

// RemediationPlan is a 5W2H action plan for a problem.
type RemediationPlan struct {
	ID           string    `db:"id" json:"id"`
	ProblemID    string    `db:"problem_id" json:"problem_id"`
	UserID       string    `db:"user_id" json:"-"`
	What         *string   `db:"what" json:"what" form:"what"`
	Why          *string   `db:"why" json:"why" form:"why"`
	WhenPlan     *string   `db:"when_plan" json:"when_plan" form:"when"`
	WherePlan    *string   `db:"where_plan" json:"where_plan" form:"where"`
	Who          *string   `db:"who" json:"who" form:"who"`
	How          *string   `db:"how" json:"how" form:"how"`
	HowMuch      *string   `db:"how_much" json:"how_much" form:"howMuch"`
	Resolved     bool      `db:"resolved" json:"resolved"`
	Observations *string   `db:"observations" json:"observations"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (p *RemediationPlan) Clone() *RemediationPlan {
	if p == nil {
		return nil
	}

	out := *p
	out.What = cloneString(p.What)
	out.Why = cloneString(p.Why)
	out.WhenPlan = cloneString(p.WhenPlan)
	out.WherePlan = cloneString(p.WherePlan)
	out.Who = cloneString(p.Who)
	out.How = cloneString(p.How)
	out.HowMuch = cloneString(p.HowMuch)
	out.Observations = cloneString(p.Observations)
	return &out
}

// PlanField is one labelled 5W2H entry, in display order.
type PlanField struct {
	Label string
	Value string
}

func (p *RemediationPlan) Fields() []PlanField {
	return []PlanField{
		{Label: "O QUE (What)", Value: deref(p.What)},
		{Label: "POR QUE (Why)", Value: deref(p.Why)},
		{Label: "QUANDO (When)", Value: deref(p.WhenPlan)},
		{Label: "ONDE (Where)", Value: deref(p.WherePlan)},
		{Label: "QUEM (Who)", Value: deref(p.Who)},
		{Label: "COMO (How)", Value: deref(p.How)},
		{Label: "QUANTO (How Much)", Value: deref(p.HowMuch)},
	}
}

// PlanPatch is a partial plan update. Nil fields are left untouched.
type PlanPatch struct {
	What         *string `form:"what"`
	Why          *string `form:"why"`
	WhenPlan     *string `form:"when"`
	WherePlan    *string `form:"where"`
	Who          *string `form:"who"`
	How          *string `form:"how"`
	HowMuch      *string `form:"howMuch"`
	Resolved     *bool   `form:"resolved"`
	Observations *string `form:"observations"`
}

func (p *PlanPatch) Empty() bool {
	return p.What == nil && p.Why == nil && p.WhenPlan == nil && p.WherePlan == nil &&
		p.Who == nil && p.How == nil && p.HowMuch == nil && p.Resolved == nil && p.Observations == nil
}
