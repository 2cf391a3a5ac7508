package llm

const (
	ToolAddTask      = "add_task"
	ToolListTasks    = "list_tasks"
	ToolCompleteTask = "complete_task"
	ToolDeleteTask   = "delete_task"
	ToolUpdateTask   = "update_task"
)

var AgentTools = []Tool{
	{
		Name:        ToolAddTask,
		Description: "Add a new task to the user's todo list.",
		Parameters: objReq(map[string]any{
			"title":       withMin(prop("string", "Short title of the task"), "minLength", 1),
			"description": prop("string", "Optional longer description"),
		}, "title"),
	},
	{
		Name:        ToolListTasks,
		Description: "List the user's tasks, optionally filtered by status.",
		Parameters: obj(map[string]any{
			"status": enum(prop("string", "Filter by status (default all)"), "all", "pending", "completed"),
		}),
	},
	{
		Name:        ToolCompleteTask,
		Description: "Mark a task as completed.",
		Parameters: objReq(map[string]any{
			"task_id": withMin(prop("integer", "ID of the task to complete"), "minimum", 1),
		}, "task_id"),
	},
	{
		Name:        ToolDeleteTask,
		Description: "Delete a task from the todo list permanently.",
		Parameters: objReq(map[string]any{
			"task_id": withMin(prop("integer", "ID of the task to delete"), "minimum", 1),
		}, "task_id"),
	},
	{
		Name:        ToolUpdateTask,
		Description: "Change a task's title or description.",
		Parameters: objReq(map[string]any{
			"task_id":     withMin(prop("integer", "ID of the task to update"), "minimum", 1),
			"title":       withMin(prop("string", "New title"), "minLength", 1),
			"description": prop("string", "New description"),
		}, "task_id"),
	},
}

// Helper functions for building JSON Schema objects.

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func enum(p map[string]any, values ...string) map[string]any {
	p["enum"] = values
	return p
}

func withMin(p map[string]any, keyword string, n int) map[string]any {
	p[keyword] = n
	return p
}

func obj(properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func objReq(properties map[string]any, required ...string) map[string]any {
	s := obj(properties)
	s["required"] = required
	return s
}
