// Package format turns stored problem values into display text.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"obralog/pkg/types"
)

const Unspecified = "Não especificado"

var typeLabels = map[types.Tag]string{
	types.TagEnvironment: "Meio Ambiente",
	types.TagHealth:      "Saúde",
	types.TagSafety:      "Segurança",
	types.TagOther:       "Outros",
}

var severityLabels = map[types.Severity]string{
	types.SeverityCritical: "Crítico",
	types.SeverityHigh:     "Alto",
	types.SeverityMedium:   "Médio",
	types.SeverityLow:      "Baixo",
}

var severityColors = map[types.Severity]string{
	types.SeverityCritical: "DC2626",
	types.SeverityHigh:     "EA580C",
	types.SeverityMedium:   "D97706",
	types.SeverityLow:      "65A30D",
}

// RenderTypes maps each comma-separated token through the label table.
// Unknown tokens, such as values from the single-type schema, are shown as
// they are.
func RenderTypes(tagString string) string {
	tokens := strings.Split(tagString, ",")
	labels := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		labels = append(labels, TypeLabel(types.Tag(token)))
	}

	if len(labels) == 0 {
		return Unspecified
	}
	return strings.Join(labels, ", ")
}

func RenderTagSet(tags types.TagSet) string {
	return RenderTypes(tags.String())
}

func TypeLabel(t types.Tag) string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return string(t)
}

func SeverityLabel(s types.Severity) string {
	if label, ok := severityLabels[s]; ok {
		return label
	}
	if s == "" {
		return Unspecified
	}
	return string(s)
}

// SeverityColor is a hex RGB value without the leading '#'.
func SeverityColor(s types.Severity) string {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return "6B7280"
}

func StatusLabel(s types.Status) string {
	if s == types.StatusResolved {
		return "Resolvido"
	}
	return "Não Resolvido"
}

// Coordinates joins the GMS pair verbatim. Both halves must be present.
func Coordinates(latGMS, lonGMS *string) string {
	lat := strings.TrimSpace(deref(latGMS))
	lon := strings.TrimSpace(deref(lonGMS))
	if lat == "" || lon == "" {
		return ""
	}
	return lat + ", " + lon
}

// DecimalCoordinates formats decimal degrees with six fractional digits.
func DecimalCoordinates(lat, lon *float64) string {
	if lat == nil || lon == nil || *lat == 0 || *lon == 0 {
		return ""
	}
	return fmt.Sprintf("%s°, %s°", strconv.FormatFloat(*lat, 'f', 6, 64), strconv.FormatFloat(*lon, 'f', 6, 64))
}

// ProblemCode renders a sequence number as "PROBLEMA #007".
func ProblemCode(number int64) string {
	return fmt.Sprintf("PROBLEMA #%03d", number)
}

// ProblemTitle prefers the title and falls back to the sequence code.
func ProblemTitle(p *types.Problem) string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return ProblemCode(p.ProblemNumber)
}

// Date formats as dd/mm/yyyy.
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// ISODate is used in download file names.
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}

func FileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	sizes := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}

	v := float64(bytes) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64) + " " + sizes[i]
}

// OrDefault substitutes placeholder text for empty values.
func OrDefault(s *string, placeholder string) string {
	if v := strings.TrimSpace(deref(s)); v != "" {
		return v
	}
	return placeholder
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
