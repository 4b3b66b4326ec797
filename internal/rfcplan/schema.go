package rfcplan

import (
	"bytes"
	"encoding/json"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// planSchemaJSON is the JSON-Schema a generated plan must satisfy before
// SaveGeneratedPlan/UpdateFromRFC will persist it, spec.md §6's Plan
// shape: a tasks[] array with TDD-phased entries, dependencies, and
// validation criteria.
const planSchemaJSON = `{
	"type": "object",
	"required": ["tasks"],
	"properties": {
		"plan_type": {"type": "string", "enum": ["initial", "overview"]},
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "tdd_phase", "dependencies", "validation_criteria"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"agent_type": {"type": "string"},
					"dependencies": {"type": "array", "items": {"type": "string"}},
					"tdd_phase": {"type": "string", "enum": ["red", "green", "refactor"]},
					"validation_criteria": {"type": "array", "items": {"type": "string"}},
					"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
				}
			}
		}
	}
}`

const planSchemaResource = "mem://rfcplan/plan-schema.json"

func compilePlanSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(planSchemaResource, bytes.NewReader([]byte(planSchemaJSON))); err != nil {
		panic("rfcplan: embedded plan schema is malformed: " + err.Error())
	}
	schema, err := compiler.Compile(planSchemaResource)
	if err != nil {
		panic("rfcplan: embedded plan schema failed to compile: " + err.Error())
	}
	return schema
}

var planSchema = compilePlanSchema()

// validatePlanJSON checks raw plan JSON against planSchema before it is
// unmarshalled and persisted, the same compile-once/validate-per-call
// shape internal/tooling/registry.go uses for tool argument schemas.
func validatePlanJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return errs.Wrap(errs.KindJSONSerializationErr, err, "parse plan json")
	}
	if err := planSchema.Validate(v); err != nil {
		return errs.Wrap(errs.KindInvalidConfiguration, err, "plan failed schema validation")
	}
	return nil
}
