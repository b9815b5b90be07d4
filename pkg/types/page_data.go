package types

type NavbarData struct {
	IsAuthenticated bool
	UserID          string
	UserEmail       string
	DevLogin        bool
}

type NavbarDataSetter interface {
	SetNavbarData(data NavbarData)
}

type BasePageData struct {
	Title  string
	Notice string
	Error  string
	Navbar NavbarData
}

func (d *BasePageData) SetNavbarData(data NavbarData) {
	d.Navbar = data
}

// Option is one entry of a select or checkbox group.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

type StatCard struct {
	Label string
	Value int
	Color string
}

type HomePageData struct {
	BasePageData
	Problems     []*ProblemCard
	Stats        []StatCard
	Filters      HomeFilters
	FilterActive bool
	Total        int
	UploadsOn    bool
	ExportKinds  []Option
}

type HomeFilters struct {
	Search     string
	Severities []Option
	Types      []Option
	Statuses   []Option
}

// ProblemCard is a problem with its display strings resolved.
type ProblemCard struct {
	Problem         *Problem
	Code            string
	TypeLabel       string
	SeverityLabel   string
	SeverityColor   string
	StatusLabel     string
	CreatedAt       string
	Coordinates     string
	Decimal         string
	PhotoCount      int
	ResolutionCount int
	HasPlan         bool
}

type LoginPageData struct {
	BasePageData
	Message string
	Email   string
}

type RegisterPageData struct {
	BasePageData
	GivenName   string
	FamilyName  string
	Email       string
	FieldErrors map[string]string
}

type ConfirmRegisterPageData struct {
	BasePageData
	Email   string
	Message string
}

type SetupPageData struct {
	BasePageData
	Missing []string
}

// ProblemForm is the create and edit form. Photos already uploaded through
// the upload endpoint arrive as parallel url and filename lists.
type ProblemForm struct {
	Title            string   `form:"title"`
	Description      string   `form:"description"`
	Recommendations  string   `form:"recommendations"`
	Types            []string `form:"type"`
	Severity         string   `form:"severity"`
	Location         string   `form:"location"`
	LatitudeGMS      string   `form:"latitude_gms"`
	LongitudeGMS     string   `form:"longitude_gms"`
	LatitudeDecimal  string   `form:"latitude_decimal"`
	LongitudeDecimal string   `form:"longitude_decimal"`
	PhotoURLs        []string `form:"photo_url"`
	PhotoFilenames   []string `form:"photo_filename"`
	ReplacePhotos    bool     `form:"replace_photos"`
}

type ProblemFormPageData struct {
	BasePageData
	Action      string
	Editing     bool
	Problem     *Problem
	Form        ProblemForm
	Types       []Option
	Severities  []Option
	FieldErrors map[string]string
	UploadsOn   bool
	MaxPhotos   int
	MaxUploadMB int64
}

type ResolveForm struct {
	Notes          string   `form:"resolution_notes"`
	PhotoURLs      []string `form:"photo_url"`
	PhotoFilenames []string `form:"photo_filename"`
}

type ProblemDetailPageData struct {
	BasePageData
	Card             *ProblemCard
	ProblemPhotos    []*Photo
	ResolutionPhotos []*Photo
	Plans            []*RemediationPlan
	PlanFields       [][]PlanField
	UploadsOn        bool
	MaxPhotos        int
	FieldErrors      map[string]string
}

type PlanFormPageData struct {
	BasePageData
	Problem *Problem
	Plan    *RemediationPlan
	Action  string
}

type PhotosFormPageData struct {
	BasePageData
	Problem   *Problem
	PhotoType PhotoType
	Photos    []*Photo
	UploadsOn bool
	MaxPhotos int
}
