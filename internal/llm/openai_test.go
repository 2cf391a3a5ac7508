package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [
        {"id": "call_1", "type": "function", "function": {"name": "add_task", "arguments": "{\"title\":\"Buy milk\"}"}},
        {"id": "call_2", "type": "function", "function": {"name": "list_tasks", "arguments": "{not json"}}
      ]
    }
  }]
}`

const textCompletion = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Done."}}]
}`

type capturedRequest struct {
	Model    string           `json:"model"`
	Messages []map[string]any `json:"messages"`
	Tools    []map[string]any `json:"tools"`
}

func newTestServer(t *testing.T, status int, body string, got *capturedRequest) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			if err := json.Unmarshal(raw, got); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-4o"})
}

func TestOpenAIChat_ToolCalls(t *testing.T) {
	var req capturedRequest
	c := newTestServer(t, http.StatusOK, toolCallCompletion, &req)

	resp, err := c.Chat(context.Background(), SystemPrompt, []Message{{Role: RoleUser, Content: "add buy milk"}}, AgentTools)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	first := resp.ToolCalls[0]
	if first.ID != "call_1" || first.Name != ToolAddTask || first.Params["title"] != "Buy milk" {
		t.Errorf("unexpected first tool call: %+v", first)
	}
	if resp.ToolCalls[1].Params != nil {
		t.Errorf("expected nil params for malformed arguments, got %v", resp.ToolCalls[1].Params)
	}

	if req.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", req.Model)
	}
	if len(req.Tools) != len(AgentTools) {
		t.Errorf("expected %d tools sent, got %d", len(AgentTools), len(req.Tools))
	}
	if len(req.Messages) != 2 || req.Messages[0]["role"] != "system" || req.Messages[1]["role"] != "user" {
		t.Errorf("unexpected messages sent: %v", req.Messages)
	}
}

func TestOpenAIChat_NoToolsAndToolResults(t *testing.T) {
	var req capturedRequest
	c := newTestServer(t, http.StatusOK, textCompletion, &req)

	history := []Message{
		{Role: RoleUser, Content: "add buy milk"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: ToolAddTask, Params: map[string]any{"title": "Buy milk"}}}},
		{Role: RoleTool, ToolCallID: "call_1", Content: `{"task_id":1}`},
	}
	resp, err := c.Chat(context.Background(), SystemPrompt, history, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Done." || len(resp.ToolCalls) != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	if len(req.Tools) != 0 {
		t.Errorf("expected no tools sent, got %d", len(req.Tools))
	}
	if len(req.Messages) != 4 {
		t.Fatalf("expected 4 messages sent, got %d", len(req.Messages))
	}
	if req.Messages[2]["role"] != "assistant" || req.Messages[2]["tool_calls"] == nil {
		t.Errorf("expected assistant tool_calls message, got %v", req.Messages[2])
	}
	if req.Messages[3]["role"] != "tool" || req.Messages[3]["tool_call_id"] != "call_1" {
		t.Errorf("expected tool result message, got %v", req.Messages[3])
	}
}

func TestOpenAIChat_Error(t *testing.T) {
	c := newTestServer(t, http.StatusBadRequest, `{"error":{"message":"bad request","type":"invalid_request_error"}}`, nil)

	if _, err := c.Chat(context.Background(), SystemPrompt, []Message{{Role: RoleUser, Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestParseArguments(t *testing.T) {
	if got := parseArguments(""); got == nil || len(got) != 0 {
		t.Errorf("expected empty map for empty arguments, got %v", got)
	}
	if got := parseArguments(`{"task_id": 3}`); got["task_id"] != float64(3) {
		t.Errorf("expected task_id 3, got %v", got)
	}
	if got := parseArguments(`[1,2]`); got != nil {
		t.Errorf("expected nil for non-object arguments, got %v", got)
	}
}
