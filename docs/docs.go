// Package docs registers the OpenAPI document served at /docs.
// Regenerate with: swag init -g cmd/arrivald/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "Arrival"},
        "license": {"name": "MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {"tags": ["meta"], "summary": "API root info", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/health/db": {
            "get": {"tags": ["health"], "summary": "Database health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/api/v1/pois": {
            "get": {"tags": ["pois"], "summary": "List points of interest", "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/arrival.POI"}}},
                    "304": {"description": "Not Modified"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }}
        },
        "/api/v1/sessions/{userID}": {
            "parameters": [{"type": "string", "name": "userID", "in": "path", "required": true}],
            "get": {"tags": ["sessions"], "summary": "Session status", "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/arrival.Status"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }},
            "post": {"tags": ["sessions"], "summary": "Start a monitoring session", "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/arrival.Status"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }},
            "delete": {"tags": ["sessions"], "summary": "Stop a monitoring session",
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }}
        },
        "/api/v1/sessions/{userID}/fixes": {
            "post": {"tags": ["sessions"], "summary": "Report a location fix", "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "userID", "in": "path", "required": true},
                    {"name": "report", "in": "body", "required": true, "schema": {"$ref": "#/definitions/location.Report"}}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }}
        },
        "/api/v1/sessions/{userID}/activity": {
            "post": {"tags": ["sessions"], "summary": "Mark user active",
                "parameters": [{"type": "string", "name": "userID", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }}
        }
    },
    "definitions": {
        "arrival.POI": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "kind": {"type": "string", "enum": ["restaurant", "valet_location"]},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "arrival.Status": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "running": {"type": "boolean"},
                "started_at": {"type": "string"},
                "last_fix_at": {"type": "string"},
                "motion": {"$ref": "#/definitions/motion.State"},
                "poll_interval": {"type": "string"},
                "proximity": {"type": "array", "items": {"$ref": "#/definitions/proximity.State"}},
                "deferred_valet": {"type": "boolean"},
                "last_error": {"type": "string"},
                "last_error_at": {"type": "string"}
            }
        },
        "motion.State": {
            "type": "object",
            "properties": {
                "is_driving": {"type": "boolean"},
                "confirming_samples": {"type": "integer"},
                "opposing_samples": {"type": "integer"},
                "last_evaluated_at": {"type": "string"}
            }
        },
        "proximity.State": {
            "type": "object",
            "properties": {
                "poi_id": {"type": "string"},
                "kind": {"type": "string", "enum": ["restaurant", "valet_location"]},
                "distance_meters": {"type": "number"},
                "zone": {"type": "string", "enum": ["none", "detected", "notify"]},
                "last_notified_at": {"type": "string"}
            }
        },
        "location.Report": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "accuracy": {"type": "number"},
                "timestamp": {"type": "integer", "description": "unix millis, at most 5 s ahead of the server clock"},
                "error": {"type": "string", "enum": ["permission_denied", "position_unavailable", "timeout"]}
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
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Arrival Engine API",
	Description:      "Proximity and motion detection for restaurant arrivals and valet prompts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
