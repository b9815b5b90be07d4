package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"obralog/internal/format"
	"obralog/internal/imaging"
	"obralog/pkg/types"

	"github.com/go-pdf/fpdf"
)

// Page geometry in millimetres on portrait A4.
const (
	pdfMargin       = 15.0
	pdfLineHeight   = 6.0
	pdfPhotoWidth   = 56.0
	pdfPhotoHeight  = 42.0
	pdfPhotoGap     = 4.0
	pdfPhotoRow     = pdfPhotoHeight + 8
	pdfPhotosPerRow = 3
)

type pdfDoc struct {
	in         Input
	pdf        *fpdf.Fpdf
	tr         func(string) string
	registered map[string]string
}

// PDF renders the same content as the print page: a cover with totals and
// one page per problem with its photos and 5W2H plan.
func PDF(in Input) ([]byte, error) {
	in = in.snapshot()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(Title, true)
	pdf.SetCreationDate(in.GeneratedAt)
	pdf.AliasNbPages("")

	d := &pdfDoc{
		in:         in,
		pdf:        pdf,
		tr:         pdf.UnicodeTranslatorFromDescriptor(""),
		registered: make(map[string]string),
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin + 3)
		pdf.SetFont("Helvetica", "", 8)
		d.setColor(colorMuted)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	d.cover()
	for _, p := range in.Problems {
		d.problem(p)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to build pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *pdfDoc) cover() {
	pdf := d.pdf
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	d.setColor(colorText)
	pdf.CellFormat(0, 12, d.tr(Title), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	d.setColor(colorMuted)
	pdf.CellFormat(0, pdfLineHeight, d.tr(Subtitle), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, pdfLineHeight, d.tr("Data de geração: "+format.Date(d.in.GeneratedAt)), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	total, pending, resolved := d.in.stats()
	colW := (210 - 2*pdfMargin) / 3
	stats := []struct {
		label string
		value int
		color string
	}{
		{"Total de Problemas", total, colorText},
		{"Não Resolvidos", pending, colorPending},
		{"Resolvidos", resolved, colorResolved},
	}

	pdf.SetFillColor(245, 245, 245)
	y := pdf.GetY()
	for i, s := range stats {
		pdf.SetXY(pdfMargin+float64(i)*colW, y)
		pdf.SetFont("Helvetica", "B", 22)
		d.setColor(s.color)
		pdf.CellFormat(colW, 12, strconv.Itoa(s.value), "", 2, "C", true, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		d.setColor(colorMuted)
		pdf.CellFormat(colW, 6, d.tr(s.label), "", 0, "C", true, 0, "")
	}
	pdf.SetXY(pdfMargin, y+24)

	if len(d.in.Problems) == 0 {
		pdf.Ln(20)
		pdf.SetFont("Helvetica", "I", 12)
		d.setColor(colorMuted)
		pdf.CellFormat(0, 10, d.tr(EmptyText), "", 1, "C", false, 0, "")
	}
}

func (d *pdfDoc) problem(p *types.Problem) {
	pdf := d.pdf
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 15)
	d.setColor(colorText)
	pdf.CellFormat(140, 9, d.tr(fmt.Sprintf("Problema #%03d", p.ProblemNumber)), "", 0, "L", false, 0, "")

	d.setFill(format.SeverityColor(p.Severity))
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(0, 7, d.tr(strings.ToUpper(format.SeverityLabel(p.Severity))), "", 1, "C", true, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 12)
	d.setColor(colorText)
	pdf.MultiCell(0, 7, d.tr(format.ProblemTitle(p)), "", "L", false)
	pdf.Ln(2)

	d.field("Tipo", format.RenderTagSet(p.Tags))
	d.statusField(p)
	d.field("Data", format.Date(p.CreatedAt))
	d.field("Local", orPlaceholder(p.Location))
	if c := format.Coordinates(p.LatitudeGMS, p.LongitudeGMS); c != "" {
		d.field("Coordenadas", c)
	}
	if c := format.DecimalCoordinates(p.LatitudeDecimal, p.LongitudeDecimal); c != "" {
		d.field("Decimal", c)
	}

	d.section("Descrição", orPlaceholder(p.Description))
	if r := format.OrDefault(p.Recommendations, ""); r != "" {
		d.section("Recomendações", r)
	}
	if p.IsResolved() {
		if notes := format.OrDefault(p.ResolutionNotes, ""); notes != "" {
			d.section("Resolução", notes)
		}
	}

	if list := orderedPhotos(p); len(list) > 0 {
		d.heading("Fotos do Problema")
		d.photos(list)
	}

	if plan := p.PrimaryPlan(); plan != nil {
		d.heading("Plano de Ação 5W2H")
		for _, f := range plan.Fields() {
			value := strings.TrimSpace(f.Value)
			if value == "" {
				value = NotFilled
			}
			d.field(f.Label, value)
		}
	}
}

func (d *pdfDoc) field(label, value string) {
	d.pdf.SetFont("Helvetica", "B", 10)
	d.setColor(colorText)
	d.pdf.Write(pdfLineHeight, d.tr(label+": "))
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.Write(pdfLineHeight, d.tr(value))
	d.pdf.Ln(pdfLineHeight)
}

func (d *pdfDoc) statusField(p *types.Problem) {
	d.pdf.SetFont("Helvetica", "B", 10)
	d.setColor(colorText)
	d.pdf.Write(pdfLineHeight, d.tr("Status: "))
	d.setColor(statusColor(p))
	d.pdf.Write(pdfLineHeight, d.tr(format.StatusLabel(p.Status)))
	d.pdf.Ln(pdfLineHeight)
}

func (d *pdfDoc) heading(text string) {
	d.pdf.Ln(3)
	d.pdf.SetFont("Helvetica", "B", 12)
	d.setColor(colorText)
	d.pdf.CellFormat(0, 8, d.tr(text), "B", 1, "L", false, 0, "")
	d.pdf.Ln(2)
}

func (d *pdfDoc) section(title, text string) {
	d.heading(title)
	d.pdf.SetFont("Helvetica", "", 10)
	d.setColor(colorText)
	d.pdf.MultiCell(0, 5, d.tr(text), "", "L", false)
}

// photos lays images out in rows of three, each contained in a fixed box.
func (d *pdfDoc) photos(list []*types.Photo) {
	pdf := d.pdf
	_, pageH := pdf.GetPageSize()

	rowY := pdf.GetY()
	for i, photo := range list {
		col := i % pdfPhotosPerRow
		if col == 0 && i > 0 {
			rowY += pdfPhotoRow
		}
		if col == 0 && rowY+pdfPhotoRow > pageH-pdfMargin {
			pdf.AddPage()
			rowY = pdf.GetY()
		}

		x := pdfMargin + float64(col)*(pdfPhotoWidth+pdfPhotoGap)
		d.photo(photo, x, rowY)
	}

	pdf.SetXY(pdfMargin, rowY+pdfPhotoRow)
}

func (d *pdfDoc) photo(photo *types.Photo, x, y float64) {
	pdf := d.pdf

	name, fetched := d.register(photo.PhotoURL)
	if name == "" {
		pdf.SetXY(x, y+pdfPhotoHeight/2-3)
		pdf.SetFont("Helvetica", "I", 8)
		d.setColor("999999")
		pdf.CellFormat(pdfPhotoWidth, 6, d.tr(fmt.Sprintf("[Foto: %s]", photo.Filename)), "", 0, "C", false, 0, "")
	} else {
		cw, ch, ox, oy := imaging.Contain(fetched.Width, fetched.Height, pdfPhotoWidth, pdfPhotoHeight)
		pdf.ImageOptions(name, x+ox, y+oy, cw, ch, false, fpdf.ImageOptions{}, 0, "")
	}

	pdf.SetXY(x, y+pdfPhotoHeight+1)
	pdf.SetFont("Helvetica", "", 7)
	d.setColor(colorMuted)
	pdf.CellFormat(pdfPhotoWidth, 4, d.tr(photo.Filename), "", 0, "C", false, 0, "")
	pdf.SetXY(x, y)
}

// register loads a fetched photo into the document once and returns its
// image name. An empty name means the photo is unusable.
func (d *pdfDoc) register(url string) (string, imageSize) {
	fetched, ok := d.in.photo(url)
	if !ok {
		return "", imageSize{}
	}
	size := imageSize{Width: fetched.Width, Height: fetched.Height}

	if name, ok := d.registered[url]; ok {
		return name, size
	}

	// Everything except JPEG is flattened to JPEG; the PNG reader rejects
	// interlaced and 16-bit files.
	data, kind := fetched.Data, "JPG"
	if fetched.ContentType != "image/jpeg" {
		converted, err := imaging.ToJPEG(fetched.Data, 0.85)
		if err != nil {
			return "", imageSize{}
		}
		data = converted
	}

	name := fmt.Sprintf("photo-%d", len(d.registered)+1)
	info := d.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: kind}, bytes.NewReader(data))
	if info == nil || d.pdf.Err() {
		d.pdf.ClearError()
		return "", imageSize{}
	}

	d.registered[url] = name
	return name, size
}

type imageSize struct {
	Width, Height int
}

func (d *pdfDoc) setColor(hex string) {
	r, g, b := rgb(hex)
	d.pdf.SetTextColor(r, g, b)
}

func (d *pdfDoc) setFill(hex string) {
	r, g, b := rgb(hex)
	d.pdf.SetFillColor(r, g, b)
}

func rgb(hex string) (int, int, int) {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil || len(strings.TrimPrefix(hex, "#")) != 6 {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}
