// Package report turns a list of problems into downloadable artifacts: a
// slide deck, a spreadsheet, a printable HTML page, a PDF and a JSON dump.
// Assemblers work on a copy of their input and substitute placeholder text
// for absent fields.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"obralog/internal/format"
	"obralog/internal/photos"
	"obralog/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	Title     = "Relatório de Problemas de Obra"
	Subtitle  = "Documentação de problemas de segurança e ambientais"
	EmptyText = "Nenhum problema registrado"
	NotFilled = "Não preenchido"

	colorPending  = "DC2626"
	colorResolved = "16A34A"
	colorText     = "363636"
	colorMuted    = "666666"
)

type Kind string

const (
	KindSlides      Kind = "pptx"
	KindSpreadsheet Kind = "xlsx"
	KindPrint       Kind = "print"
	KindPDF         Kind = "pdf"
	KindJSON        Kind = "json"
)

var Kinds = []Kind{KindSlides, KindSpreadsheet, KindPrint, KindPDF, KindJSON}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown report kind %q", s)
}

// Input is everything an assembler reads. Photos holds the prefetched image
// bytes keyed by photo URL; a missing or failed entry renders a fallback.
type Input struct {
	Problems    []*types.Problem
	Photos      map[string]photos.Fetched
	GeneratedAt time.Time
	// Logger receives photos that could not be placed. Nil discards them.
	Logger logrus.FieldLogger
}

func (in Input) snapshot() Input {
	out := Input{
		Problems:    make([]*types.Problem, 0, len(in.Problems)),
		Photos:      in.Photos,
		GeneratedAt: in.GeneratedAt,
		Logger:      in.Logger,
	}
	for _, p := range in.Problems {
		if p != nil {
			out.Problems = append(out.Problems, p.Clone())
		}
	}
	if out.Photos == nil {
		out.Photos = map[string]photos.Fetched{}
	}
	if out.GeneratedAt.IsZero() {
		out.GeneratedAt = time.Now()
	}
	return out
}

func (in Input) photo(url string) (photos.Fetched, bool) {
	f, ok := in.Photos[url]
	if !ok || !f.OK() {
		return f, false
	}
	return f, true
}

func (in Input) stats() (total, pending, resolved int) {
	for _, p := range in.Problems {
		total++
		if p.IsResolved() {
			resolved++
		} else {
			pending++
		}
	}
	return total, pending, resolved
}

func (in Input) log() logrus.FieldLogger {
	if in.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		return discard
	}
	return in.Logger
}

// Collect prefetches every photo referenced by problems. Failed downloads
// are logged and left in the result so assemblers render their fallback.
func Collect(ctx context.Context, logger logrus.FieldLogger, fetcher photos.Fetcher, problems []*types.Problem, limit int, now time.Time) Input {
	fetched := photos.Prefetch(ctx, fetcher, PhotoURLs(problems), limit)

	in := Input{
		Problems:    problems,
		Photos:      photos.Index(fetched),
		GeneratedAt: now,
		Logger:      logger,
	}

	for _, f := range fetched {
		if f.Err != nil {
			in.log().WithError(f.Err).WithField("photo_url", f.URL).Warn("skipping photo in report")
		}
	}

	return in
}

// PhotoURLs lists photo URLs in the order the reports show them.
func PhotoURLs(problems []*types.Problem) []string {
	var urls []string
	for _, p := range problems {
		for _, photo := range orderedPhotos(p) {
			urls = append(urls, photo.PhotoURL)
		}
	}
	return urls
}

// orderedPhotos puts problem evidence before resolution evidence.
func orderedPhotos(p *types.Problem) []*types.Photo {
	return append(p.ProblemPhotos(), p.ResolutionPhotos()...)
}

type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

func Render(kind Kind, in Input) (*Artifact, error) {
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now()
	}
	date := format.ISODate(in.GeneratedAt)

	var (
		data []byte
		err  error
		a    = &Artifact{}
	)

	switch kind {
	case KindSlides:
		data, err = SlideDeck(in)
		a.Filename = "relatorio-problemas-" + date + ".pptx"
		a.ContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case KindSpreadsheet:
		data, err = Spreadsheet(in)
		a.Filename = "problemas-" + date + ".xlsx"
		a.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case KindPrint:
		data, err = PrintHTML(in)
		a.Filename = "relatorio-problemas-" + date + ".html"
		a.ContentType = "text/html; charset=utf-8"
	case KindPDF:
		data, err = PDF(in)
		a.Filename = "relatorio-problemas-" + date + ".pdf"
		a.ContentType = "application/pdf"
	case KindJSON:
		data, err = JSON(in.Problems)
		a.Filename = "problemas-obra-" + date + ".json"
		a.ContentType = "application/json"
	default:
		return nil, fmt.Errorf("unknown report kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s report: %w", kind, err)
	}

	a.Data = data
	return a, nil
}

func statusColor(p *types.Problem) string {
	if p.IsResolved() {
		return colorResolved
	}
	return colorPending
}
