package llm

import (
	"strings"
	"testing"
)

// Tools are offered only on the first model call of a turn, so the prompt must
// not promise a follow-up call that uses listed ids.
func TestSystemPromptAsksInsteadOfChainingTools(t *testing.T) {
	if strings.Contains(SystemPrompt, "same turn") {
		t.Error("prompt should not ask for a second tool call in the same turn")
	}
	if !strings.Contains(SystemPrompt, "ask the user which one they mean") {
		t.Error("prompt should tell the model to ask the user to pick a task")
	}
	for _, tool := range AgentTools {
		if !strings.Contains(SystemPrompt, tool.Name) {
			t.Errorf("prompt does not mention %s", tool.Name)
		}
	}
}
