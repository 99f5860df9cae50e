package serializer

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// conversationSchemaJSON describes the wire form produced by Serialize.
const conversationSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["role", "content"],
    "additionalProperties": false,
    "properties": {
      "role": {"enum": ["system", "human", "assistant"]},
      "content": {
        "oneOf": [
          {"type": "string"},
          {"type": "array", "items": {"$ref": "#/definitions/part"}}
        ]
      }
    }
  },
  "definitions": {
    "part": {
      "type": "object",
      "oneOf": [
        {
          "required": ["type", "text"],
          "additionalProperties": false,
          "properties": {
            "type": {"const": "text"},
            "text": {"type": "string"}
          }
        },
        {
          "required": ["type", "image_url"],
          "additionalProperties": false,
          "properties": {
            "type": {"const": "image_url"},
            "image_url": {
              "type": "object",
              "required": ["url"],
              "additionalProperties": false,
              "properties": {
                "url": {"type": "string", "minLength": 1},
                "detail": {"type": "string"}
              }
            }
          }
        }
      ]
    }
  }
}`

var conversationSchema = mustCompileSchema(conversationSchemaJSON)

func mustCompileSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(errors.Wrap(err, "compile conversation schema"))
	}
	return s
}

// validate checks data against the conversation schema.
func validate(data string) error {
	result, err := conversationSchema.Validate(gojsonschema.NewStringLoader(data))
	if err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Wrap(ErrMalformed, strings.Join(msgs, "; "))
	}
	return nil
}
