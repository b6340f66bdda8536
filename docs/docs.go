// Package docs registers the OpenAPI document served by the Swagger UI. It
// mirrors the swag annotations on the HTTP handlers and is maintained by hand.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/charging_sessions": {
            "get": {
                "description": "Returns sessions ordered by start_time, most recent first. Without page or page_size the full list is returned.",
                "produces": ["application/json"],
                "tags": ["ChargingSessions"],
                "summary": "List charging sessions",
                "operationId": "listChargingSessions",
                "parameters": [
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.ChargingSession"}},
                        "headers": {"X-Total-Count": {"type": "integer", "description": "Number of sessions"}}
                    },
                    "500": {"description": "Persistence error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Validates that vehicle_id, start_time, kwh, cost_huf and source are present and stores the session.\nUnknown keys are ignored. Currency defaults to the configured currency when the key is omitted.\nA repeated Idempotency-Key returns 200 with the id created by the first request.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["ChargingSessions"],
                "summary": "Record a charging session",
                "operationId": "createChargingSession",
                "parameters": [
                    {"type": "string", "example": "7d1c2e1a-create-1", "description": "Client token for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Session fields", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SessionPayload"}}
                ],
                "responses": {
                    "200": {
                        "description": "Replayed Idempotency-Key",
                        "schema": {"$ref": "#/definitions/handlers.StatusResponse"},
                        "headers": {"Idempotency-Replayed": {"type": "string", "description": "true"}}
                    },
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.StatusResponse"}},
                    "400": {"description": "Missing or invalid fields", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Session already recorded", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Persistence error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/charging_sessions/export": {
            "get": {
                "description": "Renders the full list, in list order, into a single-sheet workbook.",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["ChargingSessions"],
                "summary": "Download sessions as XLSX",
                "operationId": "exportChargingSessions",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "500": {"description": "Persistence or rendering error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/charging_sessions/locations": {
            "get": {
                "description": "Groups sessions with a provider by provider, then city. Each city lists its distinct location details in ascending order.",
                "produces": ["application/json"],
                "tags": ["ChargingSessions"],
                "summary": "Known charging locations",
                "operationId": "listChargingLocations",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "object",
                                "additionalProperties": {"type": "array", "items": {"type": "string"}}
                            }
                        }
                    },
                    "500": {"description": "Persistence error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/charging_sessions/notes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ChargingSessions"],
                "summary": "Distinct session notes",
                "operationId": "listChargingNotes",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "string"}}},
                    "500": {"description": "Persistence error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/charging_sessions/{id}": {
            "put": {
                "description": "Applies the updatable keys of the body. id, vehicle_id and created_at cannot be changed; unknown keys are ignored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["ChargingSessions"],
                "summary": "Update a charging session",
                "operationId": "updateChargingSession",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SessionPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StatusResponse"}},
                    "400": {"description": "No valid or invalid fields", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Record not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Persistence error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "HEAD returns 200 without a body so clients can probe cheaply.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "operationId": "health",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}}
            },
            "head": {
                "description": "HEAD returns 200 without a body so clients can probe cheaply.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "operationId": "health",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}}
            }
        },
        "/ready": {
            "get": {
                "description": "Pings the database.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness probe",
                "operationId": "ready",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}},
                    "503": {"description": "Database unreachable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.ChargingSession": {
            "type": "object",
            "properties": {
                "ac_or_dc": {"type": "string"},
                "city": {"type": "string"},
                "cost_huf": {"type": "number"},
                "created_at": {"type": "string"},
                "currency": {"type": "string"},
                "duration_seconds": {"type": "integer"},
                "end_time": {"type": "string"},
                "id": {"type": "string"},
                "invoice_id": {"type": "string"},
                "kw": {"type": "number"},
                "kwh": {"type": "number"},
                "license_plate": {"type": "string"},
                "location_detail": {"type": "string"},
                "notes": {"type": "string"},
                "odometer": {"type": "number"},
                "price_per_kwh": {"type": "number"},
                "provider": {"type": "string"},
                "source": {"type": "string"},
                "start_time": {"type": "string"},
                "vehicle_id": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "bad_request"},
                "message": {"type": "string", "example": "invalid input"},
                "request_id": {"type": "string", "example": "3a1c9b2e-1f0c-4a6b-bb0c-2b7c2d8c9f10"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "ok"}}
        },
        "handlers.SessionPayload": {
            "type": "object",
            "properties": {
                "ac_or_dc": {"type": "string", "example": "DC"},
                "city": {"type": "string", "example": "Győr"},
                "cost_huf": {"type": "number", "example": 8500},
                "currency": {"type": "string", "example": "HUF"},
                "duration_seconds": {"type": "integer", "example": 2700},
                "end_time": {"type": "string", "example": "2025-03-01T10:45:00Z"},
                "invoice_id": {"type": "string", "example": "INV-2025-0042"},
                "kw": {"type": "number", "example": 150},
                "kwh": {"type": "number", "example": 42.5},
                "license_plate": {"type": "string", "example": "ABC-123"},
                "location_detail": {"type": "string", "example": "M1 rest area"},
                "notes": {"type": "string", "example": "winter tyres"},
                "odometer": {"type": "number", "example": 48210},
                "price_per_kwh": {"type": "number", "example": 200},
                "provider": {"type": "string", "example": "Ionity"},
                "source": {"type": "string", "example": "app"},
                "start_time": {"type": "string", "example": "2025-03-01T10:00:00Z"},
                "vehicle_id": {"type": "string", "example": "1"}
            }
        },
        "handlers.StatusResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "6f1e3c2a-9b1d-4c55-8e0e-8f6a2d1b7c40"},
                "status": {"type": "string", "example": "success"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "EV Charging Log API",
	Description:      "Records electric-vehicle charging sessions and serves lookups over them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
