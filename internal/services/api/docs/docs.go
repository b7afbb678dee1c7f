// Package docs registers the OpenAPI document for the binvote query API
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
  "openapi": "3.0.3",
  "info": {
    "title": "{{.Title}}",
    "description": "{{.Description}}",
    "version": "{{.Version}}"
  },
  "paths": {
    "/bins/{bin}": {
      "get": {
        "tags": ["bins"],
        "summary": "BIN metadata and approved photo URLs",
        "parameters": [
          {"name": "bin", "in": "path", "required": true, "schema": {"type": "string", "pattern": "^[0-9]{6}$"}}
        ],
        "responses": {
          "200": {"description": "OK", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/BinResult"}}}},
          "422": {"description": "Invalid BIN", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ErrorResponse"}}}}
        }
      }
    },
    "/votes/sessions": {
      "get": {
        "tags": ["votes"],
        "summary": "Open group chat votes",
        "responses": {
          "200": {"description": "OK", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/SessionsResponse"}}}}
        }
      }
    },
    "/meta/health": {"get": {"tags": ["meta"], "summary": "Liveness", "responses": {"200": {"description": "OK"}}}},
    "/meta/ready": {"get": {"tags": ["meta"], "summary": "Readiness with dependency checks", "responses": {"200": {"description": "OK"}}}},
    "/meta/version": {"get": {"tags": ["meta"], "summary": "Build information", "responses": {"200": {"description": "OK"}}}},
    "/meta/service": {"get": {"tags": ["meta"], "summary": "Service name and uptime", "responses": {"200": {"description": "OK"}}}}
  },
  "components": {
    "schemas": {
      "BinMeta": {
        "type": "object",
        "properties": {
          "bin": {"type": "string"},
          "brand": {"type": "string"},
          "type": {"type": "string"},
          "category": {"type": "string"},
          "issuer": {"type": "string"},
          "country": {"type": "string"},
          "issuerPhone": {"type": "string"},
          "issuerUrl": {"type": "string"}
        }
      },
      "BinResult": {
        "type": "object",
        "properties": {
          "bin": {"type": "string"},
          "meta": {"$ref": "#/components/schemas/BinMeta"},
          "urls": {"type": "array", "items": {"type": "string"}},
          "report_url": {"type": "string"}
        }
      },
      "SessionView": {
        "type": "object",
        "properties": {
          "key": {"type": "string"},
          "bin": {"type": "string"},
          "issue_url": {"type": "string"},
          "channels": {"type": "array", "items": {"type": "integer", "format": "int64"}},
          "prompts": {"type": "integer"},
          "deadline_at": {"type": "string", "format": "date-time"},
          "extended": {"type": "boolean"},
          "totals": {"type": "object", "properties": {"approve": {"type": "integer"}, "reject": {"type": "integer"}}}
        }
      },
      "SessionsResponse": {
        "type": "object",
        "properties": {
          "sessions": {"type": "array", "items": {"$ref": "#/components/schemas/SessionView"}},
          "count": {"type": "integer"}
        }
      }
    }
  }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Title:            "binvote API",
	Description:      "Read only view over BIN photo approvals and running votes",
	InfoInstanceName: "binvote",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
