package seed

import (
	"math/rand"
	"strings"
	"testing"

	"obralog/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoProblemsAreValid(t *testing.T) {
	for _, demo := range demoProblems {
		t.Run(demo.Title, func(t *testing.T) {
			in := demo.newProblem(types.SeverityHigh)
			require.NoError(t, in.Validate())
			assert.True(t, strings.HasPrefix(in.Title, TitlePrefix))

			for _, tag := range in.Tags {
				assert.True(t, tag.Known(), "unknown tag %s", tag)
			}

			if demo.Latitude != 0 {
				require.NotNil(t, in.LatitudeDecimal)
				assert.InDelta(t, demo.Latitude, *in.LatitudeDecimal, 1e-9)
			} else {
				assert.Nil(t, in.LatitudeDecimal)
			}
		})
	}
}

func TestPickWeightedSeverity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	seen := map[types.Severity]int{}
	for i := 0; i < 2000; i++ {
		sev := pickWeightedSeverity(rng)
		require.True(t, sev.Valid())
		seen[sev]++
	}

	for _, sev := range types.AllSeverities {
		assert.Positive(t, seen[sev], "severity %s never picked", sev)
	}
	assert.Greater(t, seen[types.SeverityMedium], seen[types.SeverityCritical])
}
