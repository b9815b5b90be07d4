package types

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critico"
	SeverityHigh     Severity = "alto"
	SeverityMedium   Severity = "medio"
	SeverityLow      Severity = "baixo"
)

var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pendente"
	StatusResolved Status = "resolvido"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusResolved
}

// Problem is the canonical shape of a tracked site problem. Rows written by
// older schema versions are normalized into this struct by the store.
type Problem struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	ProblemNumber   int64    `json:"problem_number"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Recommendations *string  `json:"recommendations"`
	Tags            TagSet   `json:"type"`
	Severity        Severity `json:"severity"`
	Location        string   `json:"location"`

	LatitudeGMS      *string  `json:"latitude_gms"`
	LongitudeGMS     *string  `json:"longitude_gms"`
	LatitudeDecimal  *float64 `json:"latitude_decimal"`
	LongitudeDecimal *float64 `json:"longitude_decimal"`

	Status          Status     `json:"status"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	ResolutionNotes *string    `json:"resolution_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Photos []*Photo           `json:"problem_photos"`
	Plans  []*RemediationPlan `json:"w5h2_plans"`
}

// Clone returns a deep copy so report code can work on a snapshot without
// touching the caller's records.
func (p *Problem) Clone() *Problem {
	if p == nil {
		return nil
	}

	out := *p
	out.Tags = append(TagSet(nil), p.Tags...)
	out.Recommendations = cloneString(p.Recommendations)
	out.LatitudeGMS = cloneString(p.LatitudeGMS)
	out.LongitudeGMS = cloneString(p.LongitudeGMS)
	out.ResolutionNotes = cloneString(p.ResolutionNotes)
	if p.LatitudeDecimal != nil {
		v := *p.LatitudeDecimal
		out.LatitudeDecimal = &v
	}
	if p.LongitudeDecimal != nil {
		v := *p.LongitudeDecimal
		out.LongitudeDecimal = &v
	}
	if p.ResolvedAt != nil {
		v := *p.ResolvedAt
		out.ResolvedAt = &v
	}

	out.Photos = make([]*Photo, 0, len(p.Photos))
	for _, photo := range p.Photos {
		if photo == nil {
			continue
		}
		c := *photo
		out.Photos = append(out.Photos, &c)
	}

	out.Plans = make([]*RemediationPlan, 0, len(p.Plans))
	for _, plan := range p.Plans {
		out.Plans = append(out.Plans, plan.Clone())
	}

	return &out
}

func (p *Problem) IsResolved() bool {
	return p.Status == StatusResolved
}

// ProblemPhotos returns the evidence photos, legacy rows without a photo type
// included.
func (p *Problem) ProblemPhotos() []*Photo {
	return p.photosOfType(PhotoTypeProblem)
}

func (p *Problem) ResolutionPhotos() []*Photo {
	return p.photosOfType(PhotoTypeResolution)
}

func (p *Problem) photosOfType(t PhotoType) []*Photo {
	out := make([]*Photo, 0, len(p.Photos))
	for _, photo := range p.Photos {
		if photo != nil && photo.Type() == t {
			out = append(out, photo)
		}
	}
	return out
}

// PrimaryPlan is the first remediation plan, or nil when none exists.
func (p *Problem) PrimaryPlan() *RemediationPlan {
	for _, plan := range p.Plans {
		if plan != nil {
			return plan
		}
	}
	return nil
}

func (p *Problem) HasCoordinates() bool {
	return strings.TrimSpace(deref(p.LatitudeGMS)) != "" && strings.TrimSpace(deref(p.LongitudeGMS)) != ""
}

// CanTransitionTo reports whether moving to next is allowed. Resolving needs
// non-empty notes, either supplied now or already on record.
func (p *Problem) CanTransitionTo(next Status, notes string) error {
	if !next.Valid() {
		return ErrInvalidTransition
	}

	if next == StatusResolved && strings.TrimSpace(notes) == "" && strings.TrimSpace(deref(p.ResolutionNotes)) == "" {
		return ErrResolutionNotesRequired
	}

	return nil
}

// NewProblem is the validated input of the create action.
type NewProblem struct {
	Title            string
	Description      string
	Tags             TagSet
	Severity         Severity
	Location         string
	Recommendations  string
	LatitudeGMS      string
	LongitudeGMS     string
	// Decimal degrees are supplied independently of the GMS strings.
	LatitudeDecimal  *float64
	LongitudeDecimal *float64
	Photos           []PhotoRef
}

func (n *NewProblem) Validate() error {
	errs := ValidationError{}

	if strings.TrimSpace(n.Title) == "" {
		errs["title"] = "Título é obrigatório."
	}
	if strings.TrimSpace(n.Description) == "" {
		errs["description"] = "Descrição é obrigatória."
	}
	if len(n.Tags) == 0 {
		errs["type"] = "Selecione ao menos um tipo."
	}
	if !n.Severity.Valid() {
		errs["severity"] = "Severidade inválida."
	}
	if strings.TrimSpace(n.Location) == "" {
		errs["location"] = "Local é obrigatório."
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ProblemPatch carries a partial update; nil fields are left untouched.
type ProblemPatch struct {
	Title               *string
	Description         *string
	Tags                TagSet
	Severity            *Severity
	Location            *string
	Recommendations     *string
	LatitudeGMS         *string
	LongitudeGMS        *string
	// Set* mark the decimal fields as present, so a nil value clears them.
	LatitudeDecimal     *float64
	LongitudeDecimal    *float64
	SetLatitudeDecimal  bool
	SetLongitudeDecimal bool

	// Photos, when non-nil, replaces the photo set of PhotoType.
	Photos    []PhotoRef
	PhotoType PhotoType
}

func (p *ProblemPatch) Validate() error {
	errs := ValidationError{}

	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		errs["title"] = "Título é obrigatório."
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		errs["description"] = "Descrição é obrigatória."
	}
	if p.Tags != nil && len(p.Tags) == 0 {
		errs["type"] = "Selecione ao menos um tipo."
	}
	if p.Severity != nil && !p.Severity.Valid() {
		errs["severity"] = "Severidade inválida."
	}
	if p.Location != nil && strings.TrimSpace(*p.Location) == "" {
		errs["location"] = "Local é obrigatório."
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
