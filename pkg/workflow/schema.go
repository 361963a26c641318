package workflow

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "instrument": {"type": "string"},
    "ipts": {"type": "string"},
    "name": {"type": "string"},
    "workingdir": {"type": "string"},
    "outputdir": {"type": "string"},
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "properties": {
          "name": {"type": "string"},
          "function": {"type": "string"},
          "inputs": {"type": "object"},
          "outputs": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["name", "function", "inputs"]
      }
    }
  },
  "required": ["instrument", "ipts", "name", "workingdir", "outputdir", "tasks"]
}`

var schema = jsonschema.MustCompileString("workflow.schema.json", schemaJSON)

func validateSchema(doc any) error {
	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Step: -1, Msg: "while validating configuration file", Err: err}
	}
	return nil
}
