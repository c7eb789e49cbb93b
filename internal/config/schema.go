package config

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const rulesSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "pkggate rule set",
  "type": "object",
  "required": ["rules"],
  "properties": {
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["conditions"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "description": {"type": "string"},
          "conditions": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "minStars": {"type": "integer", "minimum": 0},
                "maxPublishAgeDays": {"type": "integer", "minimum": 1}
              }
            }
          }
        }
      }
    }
  }
}`

const allowlistSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "pkggate allowlist",
  "type": "object",
  "required": ["packages"],
  "properties": {
    "packages": {
      "type": "object",
      "required": ["npm"],
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var (
	rulesSchema     = jsonschema.MustCompileString("pkggate-rules.schema.json", rulesSchemaJSON)
	allowlistSchema = jsonschema.MustCompileString("pkggate-allowlist.schema.json", allowlistSchemaJSON)
)
