package queue

const (
	TypeRunExecute = "run:execute"
)

// RunExecutePayload carries a run request through the queue.
type RunExecutePayload struct {
	PromptID         string            `json:"prompt_id"`
	ProjectID        string            `json:"project_id,omitempty"`
	InputVariables   map[string]string `json:"input_variables"`
	Model            string            `json:"model,omitempty"`
	StructuredOutput bool              `json:"structured_output"`
	Version          int               `json:"version,omitempty"`
}

// RunExecuteResult is written to the task result once the run is stored.
type RunExecuteResult struct {
	RunID string `json:"run_id"`
}
