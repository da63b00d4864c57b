package apiclient

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const embeddingsSchemaJSON = `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["embedding"],
        "properties": {
          "embedding": {"type": "array", "items": {"type": "number"}},
          "index": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

const rerankSchemaJSON = `{
  "type": "object",
  "required": ["results"],
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["index"],
        "properties": {
          "index": {"type": "integer", "minimum": 0},
          "relevance_score": {"type": "number"},
          "score": {"type": "number"}
        }
      }
    }
  }
}`

const chatSchemaJSON = `{
  "type": "object",
  "required": ["choices"],
  "properties": {
    "choices": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "message": {
            "type": "object",
            "properties": {"content": {"type": ["string", "null"]}}
          },
          "finish_reason": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	embeddingsSchema = mustSchema(embeddingsSchemaJSON)
	rerankSchema     = mustSchema(rerankSchemaJSON)
	chatSchema       = mustSchema(chatSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("apiclient: invalid response schema: " + err.Error())
	}
	return schema
}

func validateBody(op string, schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ProtocolError{Op: op, Reason: "body is not JSON", Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return &ProtocolError{Op: op, Reason: strings.Join(msgs, "; ")}
	}
	return nil
}
