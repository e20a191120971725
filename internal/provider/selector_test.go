package provider

import (
	"testing"

	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/llm"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSelectModel(t *testing.T) {
	textPrompt := &models.Prompt{Variables: []models.Variable{{Name: "q", Type: models.VariableString}}}
	imagePrompt := &models.Prompt{Variables: []models.Variable{{Name: "img", Type: models.VariableImage}}}
	def := &models.Provider{Name: "openai", DefaultModel: "gpt-4o-mini", DefaultMultimodalModel: "gpt-4o"}
	noVision := &models.Provider{Name: "local", DefaultModel: "llama3"}

	tests := []struct {
		name     string
		prompt   *models.Prompt
		explicit string
		def      *models.Provider
		want     string
		reason   apperr.Reason
	}{
		{name: "explicit wins", prompt: imagePrompt, explicit: "my-model", def: nil, want: "my-model"},
		{name: "text uses default", prompt: textPrompt, def: def, want: "gpt-4o-mini"},
		{name: "image uses multimodal", prompt: imagePrompt, def: def, want: "gpt-4o"},
		{name: "no default", prompt: textPrompt, reason: apperr.ReasonNoDefaultProvider},
		{name: "image without multimodal", prompt: imagePrompt, def: noVision, reason: apperr.ReasonNoMultimodalModel},
		{name: "image without any default", prompt: imagePrompt, reason: apperr.ReasonNoMultimodalModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectModel(tt.prompt, tt.explicit, tt.def)
			if tt.reason != "" {
				assert.True(t, apperr.HasReason(err, tt.reason), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKind(t *testing.T) {
	tests := map[string]string{
		"anthropic":        llm.KindAnthropic,
		"Claude-Prod":      llm.KindAnthropic,
		"ollama-local":     llm.KindOllama,
		"llama-box":        llm.KindOllama,
		"openai":           llm.KindOpenAI,
		"azure-gateway":    llm.KindOpenAI,
		"together.ai-prod": llm.KindOpenAI,
		"groq-llama":       llm.KindOpenAI,
		"my-claude-proxy":  llm.KindOpenAI,
		"vllm-ollama-port": llm.KindOpenAI,
	}
	for name, want := range tests {
		assert.Equal(t, want, Kind(&models.Provider{Name: name}), name)
	}
}
