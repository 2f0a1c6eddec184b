// Package docs holds the Swagger document for the status API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "pricewatch"},
        "license": {"name": "MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/status": {
            "get": {
                "description": "Returns the most recent cycle result, the upstream circuit breaker state and cooldown store size. last_cycle is null before the first cycle finishes.",
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Monitor status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.StatusResponse"}}
                }
            }
        },
        "/cooldown": {
            "get": {
                "description": "Returns SKU fetch timestamps newest first; entries with unreadable timestamps come last.",
                "produces": ["application/json"],
                "tags": ["cooldown"],
                "summary": "List cooldown entries",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.CooldownResponse"}},
                    "304": {"description": "Not modified"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/cooldown/{sku}": {
            "get": {
                "description": "Returns the fetch timestamp of one SKU.",
                "produces": ["application/json"],
                "tags": ["cooldown"],
                "summary": "Get cooldown entry",
                "parameters": [
                    {"type": "string", "description": "Best Buy SKU", "name": "sku", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.CooldownEntry"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.CycleView": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "result": {"type": "string"},
                "started_at": {"type": "string"},
                "duration_seconds": {"type": "number"},
                "items": {"type": "integer"},
                "invalid": {"type": "integer"},
                "on_cooldown": {"type": "integer"},
                "fetched": {"type": "integer"},
                "history_errors": {"type": "integer"},
                "insufficient_data": {"type": "integer"},
                "not_eligible": {"type": "integer"},
                "eligible": {"type": "integer"},
                "delivered": {"type": "integer"},
                "failed_deliveries": {"type": "integer"},
                "pruned": {"type": "integer"},
                "error": {"type": "string"},
                "persist_error": {"type": "string"}
            }
        },
        "handler.StatusResponse": {
            "type": "object",
            "properties": {
                "last_cycle": {"$ref": "#/definitions/handler.CycleView"},
                "upstream_circuit": {"type": "string"},
                "persistence": {
                    "type": "object",
                    "properties": {
                        "enabled": {"type": "boolean"},
                        "backend": {"type": "string"},
                        "cooldown_hours": {"type": "number"},
                        "entries": {"type": "integer"}
                    }
                }
            }
        },
        "handler.CooldownEntry": {
            "type": "object",
            "properties": {
                "sku": {"type": "string"},
                "raw": {"type": "string"},
                "valid": {"type": "boolean"},
                "fetched_at": {"type": "string"},
                "expires_at": {"type": "string"},
                "on_cooldown": {"type": "boolean"}
            }
        },
        "handler.CooldownResponse": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "entries": {"type": "array", "items": {"$ref": "#/definitions/handler.CooldownEntry"}}
            }
        },
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8090",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "pricewatch status API",
	Description:      "Read-only view of the Best Buy price-drop monitor: last cycle summary and SKU fetch cooldowns.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
