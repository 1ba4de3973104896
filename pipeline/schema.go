package pipeline

import (
	"encoding/json"
	"fmt"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/xeipuuv/gojsonschema"
)

var analysisRequestSchemaDefinition string = `{
	"type": "object",
	"properties": {
		"source": {
			"type": "object",
			"properties": {
				"type": {
					"type": "string",
					"enum": ["hosted-url", "http-url", "upload"]
				},
				"url": {"type": "string"},
				"path": {"type": "string"}
			},
			"additionalProperties": false,
			"required": [
				"type"
			]
		},
		"options": {
			"type": "object",
			"properties": {
				"clipDuration": {"type": "integer", "minimum": 30, "maximum": 180},
				"clipCount": {"type": "integer", "minimum": 1, "maximum": 20},
				"minScore": {"type": "number", "minimum": 0, "maximum": 1},
				"orientation": {
					"type": "string",
					"enum": ["portrait", "landscape"]
				}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false,
	"required": [
		"source"
	]
}`

func compileJsonSchema(text string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
	if err != nil {
		// raise panic on program start
		panic(err) // fix schema text
	}
	return schema
}

// Run compile step on program start:
var analysisRequestSchema *gojsonschema.Schema = compileJsonSchema(analysisRequestSchemaDefinition)

// ParseAnalysisRequest validates a JSON payload against the request schema
// and decodes it. Submit re-validates, so callers can hand the result over
// directly.
func ParseAnalysisRequest(payload []byte) (AnalysisRequest, error) {
	var req AnalysisRequest
	result, err := analysisRequestSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return req, cerrors.Wrap(cerrors.CodeInvalidInput, "cannot validate payload", err)
	}
	if !result.Valid() {
		return req, cerrors.Wrap(cerrors.CodeInvalidInput, "invalid request payload", fmt.Errorf("%s", result.Errors()))
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, cerrors.Wrap(cerrors.CodeInvalidInput, "invalid request payload", err)
	}
	return req, nil
}
