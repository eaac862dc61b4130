package gate

// operationSchemas maps each tool operation to its argument schema. The
// shapes mirror the store API: every operation carries agent_id, ids are
// non-empty strings, timestamps are integer epoch milliseconds. Free-form
// fields (status, metadata, notes) are deliberately unconstrained beyond
// their JSON type.
var operationSchemas = map[string]string{
	"create_plan": `{
		"type": "object",
		"required": ["agent_id", "plan"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"plan": {
				"type": "object",
				"required": ["title"],
				"additionalProperties": false,
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"overall_goal": {"type": "string"},
					"status": {"type": "string"},
					"metadata": {"type": "object"}
				}
			},
			"tasks": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["task_number", "title"],
					"additionalProperties": false,
					"properties": {
						"task_number": {"type": "integer", "minimum": 0},
						"title": {"type": "string", "minLength": 1},
						"description": {"type": "string"},
						"status": {"type": "string"},
						"files_involved": {"type": "array", "items": {"type": "string"}},
						"notes": {"type": "object"}
					}
				}
			}
		}
	}`,

	"get_plan": `{
		"type": "object",
		"required": ["agent_id", "plan_id"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"plan_id": {"type": "string", "minLength": 1}
		}
	}`,

	"list_plans": `{
		"type": "object",
		"required": ["agent_id"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"status": {"type": "string"}
		}
	}`,

	"update_plan_status": `{
		"type": "object",
		"required": ["agent_id", "plan_id", "status"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"plan_id": {"type": "string", "minLength": 1},
			"status": {"type": "string"}
		}
	}`,

	"delete_plan": `{
		"type": "object",
		"required": ["agent_id", "plan_id"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"plan_id": {"type": "string", "minLength": 1}
		}
	}`,

	"get_task": `{
		"type": "object",
		"required": ["agent_id", "task_id"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"task_id": {"type": "string", "minLength": 1}
		}
	}`,

	"list_plan_tasks": `{
		"type": "object",
		"required": ["agent_id", "plan_id"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"plan_id": {"type": "string", "minLength": 1},
			"status": {"type": "string"}
		}
	}`,

	"update_task_status": `{
		"type": "object",
		"required": ["agent_id", "task_id", "status"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"task_id": {"type": "string", "minLength": 1},
			"status": {"type": "string"},
			"completed_at": {"type": "integer", "minimum": 0}
		}
	}`,

	"add_task": `{
		"type": "object",
		"required": ["agent_id", "plan_id", "task"],
		"additionalProperties": false,
		"properties": {
			"agent_id": {"type": "string", "minLength": 1},
			"plan_id": {"type": "string", "minLength": 1},
			"task": {
				"type": "object",
				"required": ["task_number", "title"],
				"additionalProperties": false,
				"properties": {
					"task_number": {"type": "integer", "minimum": 0},
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"status": {"type": "string"},
					"files_involved": {"type": "array", "items": {"type": "string"}},
					"notes": {"type": "object"}
				}
			}
		}
	}`,

	"backup": `{
		"type": "object",
		"required": ["dest_path"],
		"additionalProperties": false,
		"properties": {
			"dest_path": {"type": "string", "minLength": 1}
		}
	}`,

	"export_csv": `{
		"type": "object",
		"required": ["table", "dest_path"],
		"additionalProperties": false,
		"properties": {
			"table": {"type": "string", "enum": ["plans", "tasks"]},
			"dest_path": {"type": "string", "minLength": 1}
		}
	}`,
}
