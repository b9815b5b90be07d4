package format

import (
	"strings"
	"testing"
	"time"

	"obralog/pkg/types"

	"github.com/stretchr/testify/assert"
)

func TestRenderTypes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", Unspecified},
		{"only commas", " , ,", Unspecified},
		{"single", "seguranca", "Segurança"},
		{"multiple", "seguranca,saude", "Segurança, Saúde"},
		{"spaces", " meio_ambiente , outros ", "Meio Ambiente, Outros"},
		{"legacy value", "desmatamento", "desmatamento"},
		{"mixed legacy", "saude,infraestrutura", "Saúde, infraestrutura"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderTypes(tt.input))
		})
	}
}

func TestRenderTypesIdempotentOnCanonicalInput(t *testing.T) {
	inputs := []string{"seguranca", "seguranca,saude", "meio_ambiente,outros,saude", "poluicao"}

	for _, in := range inputs {
		tokens := strings.Split(in, ",")
		for i := range tokens {
			tokens[i] = strings.TrimSpace(tokens[i])
		}
		canonical := strings.Join(tokens, ", ")

		assert.Equal(t, RenderTypes(in), RenderTypes(canonical), in)
	}
}

func TestRenderTagSet(t *testing.T) {
	tags := types.NewTagSet([]string{"seguranca", "saude"})
	assert.Equal(t, "seguranca,saude", tags.String())
	assert.Equal(t, "Segurança, Saúde", RenderTagSet(tags))
}

func TestCoordinates(t *testing.T) {
	lat := "02 30 50 S"
	lon := "47 44 39 W"
	empty := " "

	assert.Equal(t, "02 30 50 S, 47 44 39 W", Coordinates(&lat, &lon))
	assert.Equal(t, "", Coordinates(&lat, nil))
	assert.Equal(t, "", Coordinates(&empty, &lon))
}

func TestDecimalCoordinates(t *testing.T) {
	lat := -2.513889
	lon := -47.744167

	assert.Equal(t, "-2.513889°, -47.744167°", DecimalCoordinates(&lat, &lon))
	assert.Equal(t, "", DecimalCoordinates(&lat, nil))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Crítico", SeverityLabel(types.SeverityCritical))
	assert.Equal(t, "Baixo", SeverityLabel(types.SeverityLow))
	assert.Equal(t, Unspecified, SeverityLabel(""))
	assert.Equal(t, "Resolvido", StatusLabel(types.StatusResolved))
	assert.Equal(t, "Não Resolvido", StatusLabel(types.StatusPending))
	assert.Equal(t, "PROBLEMA #007", ProblemCode(7))
	assert.Equal(t, "PROBLEMA #1234", ProblemCode(1234))
}

func TestProblemTitle(t *testing.T) {
	assert.Equal(t, "Vala aberta", ProblemTitle(&types.Problem{Title: "Vala aberta", ProblemNumber: 3}))
	assert.Equal(t, "PROBLEMA #003", ProblemTitle(&types.Problem{ProblemNumber: 3}))
}

func TestDate(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, "05/03/2024", Date(ts))
	assert.Equal(t, "2024-03-05", ISODate(ts))
	assert.Equal(t, "", Date(time.Time{}))
}

func TestFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10 MB"},
		{12_900_000, "12.3 MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FileSize(tt.bytes))
	}
}

func TestOrDefault(t *testing.T) {
	v := "  texto "
	blank := ""
	assert.Equal(t, "texto", OrDefault(&v, "-"))
	assert.Equal(t, "-", OrDefault(&blank, "-"))
	assert.Equal(t, "-", OrDefault(nil, "-"))
}
