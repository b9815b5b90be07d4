package report

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"obralog/internal/format"
	"obralog/internal/imaging"
	"obralog/pkg/types"
)

//go:embed templates
var templateFS embed.FS

var printTemplate = template.Must(template.ParseFS(templateFS, "templates/print.html"))

const (
	printPhotoQuality = 0.8
	printDelayMS      = 500
)

type printPage struct {
	Title        string
	Subtitle     string
	Date         string
	Empty        string
	Total        int
	Pending      int
	Resolved     int
	Problems     []printProblem
	PrintDelayMS int
}

type printProblem struct {
	Code            string
	Title           string
	Severity        string
	SeverityColor   template.CSS
	Type            string
	Status          string
	Date            string
	Location        string
	Coordinates     string
	Description     string
	Recommendations string
	Photos          []printPhoto
	Plan            []types.PlanField
}

type printPhoto struct {
	Src     template.URL
	Caption string
}

// PrintHTML renders a self-contained page that opens the print dialog once
// loaded. Fetched photos are inlined as JPEG data URIs; the rest keep their
// remote URL.
func PrintHTML(in Input) ([]byte, error) {
	in = in.snapshot()

	total, pending, resolved := in.stats()
	page := printPage{
		Title:        Title,
		Subtitle:     Subtitle,
		Date:         format.Date(in.GeneratedAt),
		Empty:        EmptyText,
		Total:        total,
		Pending:      pending,
		Resolved:     resolved,
		PrintDelayMS: printDelayMS,
	}

	for _, p := range in.Problems {
		page.Problems = append(page.Problems, in.printProblem(p))
	}

	var buf bytes.Buffer
	if err := printTemplate.ExecuteTemplate(&buf, "print", page); err != nil {
		return nil, fmt.Errorf("failed to execute print template: %w", err)
	}

	return buf.Bytes(), nil
}

func (in Input) printProblem(p *types.Problem) printProblem {
	out := printProblem{
		Code:            fmt.Sprintf("%03d", p.ProblemNumber),
		Title:           p.Title,
		Severity:        strings.ToUpper(format.SeverityLabel(p.Severity)),
		SeverityColor:   template.CSS("#" + strings.ToLower(format.SeverityColor(p.Severity))),
		Type:            format.RenderTagSet(p.Tags),
		Status:          format.StatusLabel(p.Status),
		Date:            format.Date(p.CreatedAt),
		Location:        orPlaceholder(p.Location),
		Coordinates:     format.Coordinates(p.LatitudeGMS, p.LongitudeGMS),
		Description:     orPlaceholder(p.Description),
		Recommendations: format.OrDefault(p.Recommendations, ""),
	}
	if p.IsResolved() {
		out.Status = format.StatusLabel(types.StatusResolved)
	}

	for _, photo := range orderedPhotos(p) {
		out.Photos = append(out.Photos, printPhoto{
			Src:     in.inlineSrc(photo.PhotoURL),
			Caption: photo.Filename,
		})
	}

	if plan := p.PrimaryPlan(); plan != nil {
		for _, field := range plan.Fields() {
			if strings.TrimSpace(field.Value) == "" {
				field.Value = NotFilled
			}
			out.Plan = append(out.Plan, field)
		}
	}

	return out
}

func (in Input) inlineSrc(url string) template.URL {
	fetched, ok := in.photo(url)
	if !ok {
		return template.URL(url)
	}

	data, err := imaging.ToJPEG(fetched.Data, printPhotoQuality)
	if err != nil {
		return template.URL(url)
	}

	return template.URL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data))
}
