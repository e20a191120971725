package prompt

import (
	"testing"

	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []models.PromptStatus{
		models.StatusDraft, models.StatusTesting, models.StatusPublished,
		models.StatusDeprecated, models.StatusArchived,
	}
	allowed := map[[2]models.PromptStatus]bool{
		{models.StatusDraft, models.StatusTesting}:        true,
		{models.StatusDraft, models.StatusPublished}:      true,
		{models.StatusTesting, models.StatusDraft}:        true,
		{models.StatusTesting, models.StatusPublished}:    true,
		{models.StatusPublished, models.StatusDeprecated}: true,
		{models.StatusDeprecated, models.StatusArchived}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]models.PromptStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestArchivedIsTerminal(t *testing.T) {
	assert.Empty(t, transitions[models.StatusArchived])
	assert.False(t, CanTransition(models.StatusArchived, models.StatusDraft))
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(models.StatusTesting))
	assert.False(t, ValidStatus("LIVE"))
}
