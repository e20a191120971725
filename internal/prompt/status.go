package prompt

import "github.com/nikhilbhutani/promptforge/internal/models"

var transitions = map[models.PromptStatus][]models.PromptStatus{
	models.StatusDraft:      {models.StatusTesting, models.StatusPublished},
	models.StatusTesting:    {models.StatusDraft, models.StatusPublished},
	models.StatusPublished:  {models.StatusDeprecated},
	models.StatusDeprecated: {models.StatusArchived},
	models.StatusArchived:   {},
}

// CanTransition reports whether a prompt may move from one status to another.
// Staying in the same status is not a transition and is not covered here.
func CanTransition(from, to models.PromptStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ValidStatus(s models.PromptStatus) bool {
	_, ok := transitions[s]
	return ok
}
