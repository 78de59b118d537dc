package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SwarnimWalavalkar/conjure/pkg/config"
)

func TestFactoryLayersOverrides(t *testing.T) {
	three, five, zero := 3, 5, 0
	f := &Factory{
		LLM:          newFakeLLM(t),
		Search:       &fakeSearch{},
		Defaults:     config.ResearchOverrides{MaxResearcherIterations: &three, SearchAPIMaxQueries: &three},
		DefaultModel: "default-model",
	}

	e, err := f.New(config.ResearchOverrides{MaxResearcherIterations: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, e.Config.MaxResearcherIterations)
	assert.Equal(t, 3, e.Config.SearchAPIMaxQueries)
	assert.Equal(t, "default-model", e.Config.ResearchModel)
	assert.NotNil(t, e.Logger)

	_, err = f.New(config.ResearchOverrides{MaxResearcherIterations: &zero})
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_researcher_iterations", verr.Violations[0].Field)
}
