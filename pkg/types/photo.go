package types

import "time"

type PhotoType string

const (
	PhotoTypeProblem    PhotoType = "problem"
	PhotoTypeResolution PhotoType = "resolution"
)

func (t PhotoType) Valid() bool {
	return t == PhotoTypeProblem || t == PhotoTypeResolution
}

// Photo is an uploaded image attached to exactly one problem.
type Photo struct {
	ID        string    `db:"id" json:"id"`
	ProblemID string    `db:"problem_id" json:"problem_id"`
	UserID    string    `db:"user_id" json:"-"`
	PhotoURL  string    `db:"photo_url" json:"photo_url"`
	Filename  string    `db:"filename" json:"filename"`
	PhotoType PhotoType `db:"photo_type" json:"photo_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Type treats rows stored before the discriminator existed as problem
// evidence.
func (p *Photo) Type() PhotoType {
	if p.PhotoType == "" {
		return PhotoTypeProblem
	}
	return p.PhotoType
}

// PhotoRef is an uploaded blob that has not been attached to a problem yet.
type PhotoRef struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}
