package report

import (
	"fmt"

	"obralog/internal/format"
	"obralog/internal/imaging"
	"obralog/pkg/types"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName      = "Problemas"
	rowHeight      = 80
	thumbnailMax   = 100
	colPhotoBefore = 9
	colPhotoAfter  = 10
	zebraColor     = "F8F9FA"
	headerColor    = "366092"
)

type column struct {
	header string
	width  float64
}

var sheetColumns = []column{
	{"Número", 10},
	{"Título", 30},
	{"Descrição", 40},
	{"Tipo", 15},
	{"Severidade", 12},
	{"Local", 25},
	{"Status", 12},
	{"Data Criação", 15},
	{"Foto Antes", 15},
	{"Foto Depois", 15},
	{"Recomendações", 40},
	{"Coordenadas", 25},
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}

// Spreadsheet writes one styled header row and one row per problem. The
// first problem photo and first resolution photo are embedded in the photo
// columns, scaled into 100x100 px.
func Spreadsheet(in Input) ([]byte, error) {
	in = in.snapshot()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerColor}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	dataAlign := &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true}

	plainStyle, err := f.NewStyle(&excelize.Style{Alignment: dataAlign, Border: thinBorder()})
	if err != nil {
		return nil, fmt.Errorf("failed to create row style: %w", err)
	}

	zebraStyle, err := f.NewStyle(&excelize.Style{
		Alignment: dataAlign,
		Border:    thinBorder(),
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{zebraColor}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create zebra style: %w", err)
	}

	for i, col := range sheetColumns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheetName, name, name, col.width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
		if err := f.SetCellValue(sheetName, name+"1", col.header); err != nil {
			return nil, err
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(sheetColumns))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	if len(in.Problems) == 0 {
		if err := f.SetCellValue(sheetName, "A2", EmptyText); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheetName, "A2", lastCol+"2", plainStyle); err != nil {
			return nil, err
		}
	}

	for i, p := range in.Problems {
		row := i + 2

		if err := writeProblemRow(f, row, p); err != nil {
			return nil, err
		}

		style := plainStyle
		if row%2 == 0 {
			style = zebraStyle
		}
		if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), style); err != nil {
			return nil, fmt.Errorf("failed to style row %d: %w", row, err)
		}
		if err := f.SetRowHeight(sheetName, row, rowHeight); err != nil {
			return nil, err
		}

		if before := p.ProblemPhotos(); len(before) > 0 {
			embedCellImage(f, in, colPhotoBefore, row, before[0])
		}
		if after := p.ResolutionPhotos(); len(after) > 0 {
			embedCellImage(f, in, colPhotoAfter, row, after[0])
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	return buf.Bytes(), nil
}

func writeProblemRow(f *excelize.File, row int, p *types.Problem) error {
	status := "Pendente"
	if p.IsResolved() {
		status = "Resolvido"
	}

	values := []any{
		p.ProblemNumber,
		p.Title,
		p.Description,
		format.RenderTagSet(p.Tags),
		format.SeverityLabel(p.Severity),
		p.Location,
		status,
		format.Date(p.CreatedAt),
		photoFlag(len(p.ProblemPhotos()) > 0),
		photoFlag(len(p.ResolutionPhotos()) > 0),
		format.OrDefault(p.Recommendations, ""),
		format.Coordinates(p.LatitudeGMS, p.LongitudeGMS),
	}

	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("failed to write cell %s: %w", cell, err)
		}
	}

	return nil
}

func photoFlag(ok bool) string {
	if ok {
		return "Imagem inserida"
	}
	return "Sem foto"
}

// embedCellImage skips photos that were not fetched or cannot be placed;
// the row keeps its text.
func embedCellImage(f *excelize.File, in Input, col, row int, photo *types.Photo) {
	fetched, ok := in.photo(photo.PhotoURL)
	if !ok {
		return
	}

	data, ext := fetched.Data, ""
	switch fetched.ContentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	default:
		converted, err := imaging.ToJPEG(fetched.Data, 0.85)
		if err != nil {
			in.log().WithError(err).WithField("photo_url", photo.PhotoURL).Warn("failed to convert photo for spreadsheet")
			return
		}
		data, ext = converted, ".jpg"
	}

	w, h := imaging.FitWithin(fetched.Width, fetched.Height, thumbnailMax)
	scaleX, scaleY := 1.0, 1.0
	if fetched.Width > 0 && fetched.Height > 0 {
		scaleX = float64(w) / float64(fetched.Width)
		scaleY = float64(h) / float64(fetched.Height)
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return
	}

	err = f.AddPictureFromBytes(sheetName, cell, &excelize.Picture{
		Extension: ext,
		File:      data,
		Format: &excelize.GraphicOptions{
			AltText:         photo.Filename,
			ScaleX:          scaleX,
			ScaleY:          scaleY,
			OffsetX:         2,
			OffsetY:         2,
			LockAspectRatio: true,
		},
	})
	if err != nil {
		in.log().WithError(err).WithField("photo_url", photo.PhotoURL).Warn("failed to embed photo in spreadsheet")
	}
}
