package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/chris/taskchat/internal/db"
	"github.com/chris/taskchat/internal/llm"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// TaskStore is the part of the database the tools operate on.
type TaskStore interface {
	CreateTask(ctx context.Context, userID, title, description string) (*db.Task, error)
	ListTasks(ctx context.Context, userID, status string) ([]db.Task, error)
	CompleteTask(ctx context.Context, userID string, id int64) (*db.Task, error)
	DeleteTask(ctx context.Context, userID string, id int64) error
	UpdateTask(ctx context.Context, userID string, id int64, u db.TaskUpdate) (*db.Task, error)
}

// Call is a validated tool invocation. Only the types below implement it.
type Call interface {
	ToolName() string
	sealed()
}

type AddTask struct {
	Title       string
	Description string
}

type ListTasks struct {
	Status string
}

type CompleteTask struct {
	TaskID int64
}

type DeleteTask struct {
	TaskID int64
}

type UpdateTask struct {
	TaskID      int64
	Title       *string
	Description *string
}

func (AddTask) ToolName() string      { return llm.ToolAddTask }
func (ListTasks) ToolName() string    { return llm.ToolListTasks }
func (CompleteTask) ToolName() string { return llm.ToolCompleteTask }
func (DeleteTask) ToolName() string   { return llm.ToolDeleteTask }
func (UpdateTask) ToolName() string   { return llm.ToolUpdateTask }

func (AddTask) sealed()      {}
func (ListTasks) sealed()    {}
func (CompleteTask) sealed() {}
func (DeleteTask) sealed()   {}
func (UpdateTask) sealed()   {}

// Tool results as seen by the model.

type taskResult struct {
	TaskID      int64  `json:"task_id"`
	Status      string `json:"status"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type listedTask struct {
	TaskID      int64  `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type listResult struct {
	Tasks []listedTask `json:"tasks"`
	Total int          `json:"total"`
}

type errorResult struct {
	Error string `json:"error"`
}

// Dispatcher maps model tool calls onto task store operations.
type Dispatcher struct {
	store   TaskStore
	schemas map[string]*jsonschema.Schema
}

// NewDispatcher compiles the argument schema of every tool in llm.AgentTools.
func NewDispatcher(store TaskStore) (*Dispatcher, error) {
	c := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(llm.AgentTools))
	for _, t := range llm.AgentTools {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal %s schema: %w", t.Name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", t.Name, err)
		}
		url := t.Name + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", t.Name, err)
		}
		schema, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t.Name, err)
		}
		schemas[t.Name] = schema
	}
	return &Dispatcher{store: store, schemas: schemas}, nil
}

// ParseCall validates params against the named tool's schema and builds the matching Call.
func (d *Dispatcher) ParseCall(name string, params map[string]any) (Call, error) {
	schema, ok := d.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if err := validate(schema, params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArguments, err)
	}

	switch name {
	case llm.ToolAddTask:
		title, _ := getString(params, "title")
		desc, _ := getString(params, "description")
		return AddTask{Title: title, Description: desc}, nil
	case llm.ToolListTasks:
		status, ok := getString(params, "status")
		if !ok {
			status = db.StatusAll
		}
		return ListTasks{Status: status}, nil
	case llm.ToolCompleteTask:
		id, _ := getInt(params, "task_id")
		return CompleteTask{TaskID: id}, nil
	case llm.ToolDeleteTask:
		id, _ := getInt(params, "task_id")
		return DeleteTask{TaskID: id}, nil
	case llm.ToolUpdateTask:
		id, _ := getInt(params, "task_id")
		call := UpdateTask{TaskID: id}
		if v, ok := getString(params, "title"); ok {
			call.Title = &v
		}
		if v, ok := getString(params, "description"); ok {
			call.Description = &v
		}
		if call.Title == nil && call.Description == nil {
			return nil, fmt.Errorf("%w: nothing to update, pass title or description", ErrInvalidArguments)
		}
		return call, nil
	}
	// A schema without a case above is a programming error in AgentTools.
	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

// Dispatch runs a parsed call for userID. The user is never taken from the call itself.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, call Call) (any, error) {
	switch c := call.(type) {
	case AddTask:
		t, err := d.store.CreateTask(ctx, userID, c.Title, c.Description)
		if err != nil {
			return nil, toolError(err, 0)
		}
		return taskResult{TaskID: t.ID, Status: t.Status, Title: t.Title}, nil

	case ListTasks:
		tasks, err := d.store.ListTasks(ctx, userID, c.Status)
		if err != nil {
			return nil, toolError(err, 0)
		}
		res := listResult{Tasks: make([]listedTask, 0, len(tasks)), Total: len(tasks)}
		for _, t := range tasks {
			res.Tasks = append(res.Tasks, listedTask{
				TaskID:      t.ID,
				Title:       t.Title,
				Description: t.Description,
				Status:      t.Status,
				CreatedAt:   t.CreatedAt,
			})
		}
		return res, nil

	case CompleteTask:
		t, err := d.store.CompleteTask(ctx, userID, c.TaskID)
		if err != nil {
			return nil, toolError(err, c.TaskID)
		}
		return taskResult{TaskID: t.ID, Status: t.Status, Title: t.Title}, nil

	case DeleteTask:
		if err := d.store.DeleteTask(ctx, userID, c.TaskID); err != nil {
			return nil, toolError(err, c.TaskID)
		}
		return taskResult{TaskID: c.TaskID, Status: "deleted"}, nil

	case UpdateTask:
		t, err := d.store.UpdateTask(ctx, userID, c.TaskID, db.TaskUpdate{Title: c.Title, Description: c.Description})
		if err != nil {
			return nil, toolError(err, c.TaskID)
		}
		return taskResult{TaskID: t.ID, Status: "updated", Title: t.Title, Description: t.Description}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownTool, call)
}

// Execute parses, dispatches, and encodes one tool call. The returned string is
// always a JSON object for the model; err reports what went wrong, if anything.
func (d *Dispatcher) Execute(ctx context.Context, userID string, tc llm.ToolCall) (string, error) {
	var result any
	call, err := d.ParseCall(tc.Name, tc.Params)
	if err == nil {
		result, err = d.Dispatch(ctx, userID, call)
	}
	if err != nil {
		result = errorResult{Error: err.Error()}
	}

	out, merr := sonic.MarshalString(result)
	if merr != nil {
		return `{"error":"encoding tool result failed"}`, errors.Join(err, merr)
	}
	return out, err
}

// toolError rewrites store errors as "<kind>: <detail>" for the model.
// Validation failures become ErrInvalidArguments.
func toolError(err error, taskID int64) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%w: no task with id %d", db.ErrNotFound, taskID)
	case errors.Is(err, db.ErrTitleRequired), errors.Is(err, db.ErrInvalidStatus):
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return err
}

func validate(schema *jsonschema.Schema, params map[string]any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	// Use jsonschema.UnmarshalJSON so numbers arrive as json.Number.
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return errors.New(flattenValidation(err.Error()))
	}
	return nil
}

// flattenValidation turns the validator's multi-line report into one line,
// dropping the header that names the schema URL.
func flattenValidation(msg string) string {
	lines := strings.Split(msg, "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "; ")
}

// Param extraction helpers. LLMs send numbers as float64 in JSON.
func getInt(params map[string]any, key string) (int64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func getString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
