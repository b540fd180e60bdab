package service

import "github.com/santhosh-tekuri/jsonschema/v5"

// Schemas for model output. Extra keys are allowed; missing required keys fail the call.
var (
	lessonPlanOutputSchema = jsonschema.MustCompileString("lesson_plan_output.json", `{
		"type": "object",
		"required": ["session_details"],
		"properties": {
			"session_details": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["session_number", "topics_covered"],
					"properties": {
						"session_number": {"type": "integer", "minimum": 1},
						"learning_objectives": {"type": "array", "items": {"type": "string"}},
						"topics_covered": {"type": "array", "items": {"type": "string"}},
						"teaching_flow": {
							"type": "array",
							"items": {
								"type": "object",
								"properties": {
									"time_slot": {"type": "string"},
									"activity": {"type": "string"},
									"description": {"type": "string"}
								}
							}
						}
					}
				}
			},
			"overall_objectives": {"type": "array", "items": {"type": "string"}},
			"prerequisites": {"type": "array", "items": {"type": "string"}},
			"learning_outcomes": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	questionsOutputSchema = jsonschema.MustCompileString("questions_output.json", `{
		"type": "object",
		"required": ["questions"],
		"properties": {
			"questions": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["question", "input_type", "marks"],
					"properties": {
						"question": {"type": "string", "minLength": 1},
						"input_type": {"enum": ["MCQ", "Multiple Select", "Short Answer", "Long Answer", "True/False", "Fill in the Blank"]},
						"answers": {
							"type": "array",
							"items": {
								"type": "object",
								"required": ["option"],
								"properties": {
									"option": {"type": "string"},
									"is_correct": {"type": "boolean"},
									"explanation": {"type": "string"}
								}
							}
						},
						"marks": {"type": "number", "minimum": 0},
						"difficulty": {"type": "string"},
						"topic": {"type": "string"}
					}
				}
			}
		}
	}`)

	gradingOutputSchema = jsonschema.MustCompileString("grading_output.json", `{
		"type": "object",
		"required": ["accuracy_percentage"],
		"properties": {
			"marks": {"type": "number"},
			"accuracy_percentage": {"type": "number", "minimum": 0, "maximum": 100},
			"feedback": {"type": "string"}
		}
	}`)
)
