// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "HydraRPZ Support",
            "url": "https://github.com/jroosing/hydrarpz"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StatusResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.StatusResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Server statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ServerStatsResponse"}}
                }
            }
        },
        "/zones": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["zones"],
                "summary": "List policy zones",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ZoneListResponse"}}
                }
            }
        },
        "/zones/{name}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["zones"],
                "summary": "Get zone details",
                "parameters": [{"type": "string", "description": "Zone name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ZoneDetailResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["zones"],
                "summary": "Remove a zone",
                "parameters": [{"type": "string", "description": "Zone name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StatusResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/zones/{name}/triggers": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["zones"],
                "summary": "Add a trigger",
                "parameters": [
                    {"type": "string", "description": "Zone name", "name": "name", "in": "path", "required": true},
                    {"description": "Trigger owner name", "name": "trigger", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.TriggerRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.TriggerResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.TriggerResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "507": {"description": "Insufficient Storage", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["zones"],
                "summary": "Replace stored triggers",
                "parameters": [
                    {"type": "string", "description": "Zone name", "name": "name", "in": "path", "required": true},
                    {"description": "Trigger owner names", "name": "triggers", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ReplaceTriggersRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ReloadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "501": {"description": "Not Implemented", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "507": {"description": "Insufficient Storage", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["zones"],
                "summary": "Remove a trigger",
                "parameters": [
                    {"type": "string", "description": "Zone name", "name": "name", "in": "path", "required": true},
                    {"description": "Trigger owner name", "name": "trigger", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.TriggerRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.TriggerResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/zones/{name}/reload": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["zones"],
                "summary": "Reload a zone",
                "parameters": [{"type": "string", "description": "Zone name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ReloadResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/lookup/address": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["lookup"],
                "summary": "Look up an address",
                "parameters": [
                    {"enum": ["client-ip", "ip", "nsip"], "type": "string", "description": "Trigger type", "name": "type", "in": "query", "required": true},
                    {"type": "string", "description": "IPv4 or IPv6 address", "name": "addr", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.AddressLookupResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/lookup/name": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["lookup"],
                "summary": "Look up a name",
                "parameters": [
                    {"enum": ["qname", "nsdname"], "type": "string", "description": "Trigger type", "name": "type", "in": "query", "required": true},
                    {"type": "string", "description": "Domain name", "name": "name", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.NameLookupResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/skip-recurse": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["lookup"],
                "summary": "Zones checkable before recursion",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SkipRecurseResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "models.StatusResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}}
        },
        "models.ProcessStats": {
            "type": "object",
            "properties": {
                "rss_mb": {"type": "number"},
                "cpu_percent": {"type": "number"},
                "num_threads": {"type": "integer"}
            }
        },
        "models.IndexStatsResponse": {
            "type": "object",
            "properties": {
                "zones": {"type": "integer"},
                "cidr_nodes": {"type": "integer"},
                "name_nodes": {"type": "integer"},
                "names": {"type": "integer"},
                "skip_recurse": {"type": "string"}
            }
        },
        "models.LookupStatsResponse": {
            "type": "object",
            "properties": {
                "lookups": {"type": "integer"},
                "matches": {"type": "integer"}
            }
        },
        "models.ServerStatsResponse": {
            "type": "object",
            "properties": {
                "uptime": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "start_time": {"type": "string"},
                "goroutines": {"type": "integer"},
                "memory_alloc_mb": {"type": "number"},
                "num_cpu": {"type": "integer"},
                "process": {"$ref": "#/definitions/models.ProcessStats"},
                "index": {"$ref": "#/definitions/models.IndexStatsResponse"},
                "lookups": {"type": "object", "additionalProperties": {"$ref": "#/definitions/models.LookupStatsResponse"}},
                "store_version": {"type": "integer"},
                "stored_triggers": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "models.TriggerCounts": {
            "type": "object",
            "properties": {
                "client_ipv4": {"type": "integer"},
                "client_ipv6": {"type": "integer"},
                "ipv4": {"type": "integer"},
                "ipv6": {"type": "integer"},
                "nsipv4": {"type": "integer"},
                "nsipv6": {"type": "integer"},
                "qname": {"type": "integer"},
                "nsdname": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "models.ZoneSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "origin": {"type": "string"},
                "file": {"type": "string"},
                "format": {"type": "string"},
                "last_load": {"type": "string"},
                "last_error": {"type": "string"},
                "loaded": {"type": "integer"},
                "rejected": {"type": "integer"},
                "triggers": {"$ref": "#/definitions/models.TriggerCounts"}
            }
        },
        "models.ZoneListResponse": {
            "type": "object",
            "properties": {
                "zones": {"type": "array", "items": {"$ref": "#/definitions/models.ZoneSummary"}},
                "count": {"type": "integer"}
            }
        },
        "models.ZoneDetailResponse": {
            "allOf": [
                {"$ref": "#/definitions/models.ZoneSummary"},
                {"type": "object", "properties": {"trigger_names": {"type": "array", "items": {"type": "string"}}}}
            ]
        },
        "models.TriggerRequest": {
            "type": "object",
            "required": ["trigger"],
            "properties": {"trigger": {"type": "string"}}
        },
        "models.ReplaceTriggersRequest": {
            "type": "object",
            "required": ["triggers"],
            "properties": {"triggers": {"type": "array", "items": {"type": "string"}}}
        },
        "models.TriggerResponse": {
            "type": "object",
            "properties": {
                "zone": {"type": "string"},
                "trigger": {"type": "string"},
                "outcome": {"type": "string"}
            }
        },
        "models.ReloadResponse": {
            "type": "object",
            "properties": {
                "zone": {"type": "string"},
                "added": {"type": "integer"},
                "duplicates": {"type": "integer"},
                "rejected": {"type": "integer"},
                "duration_ms": {"type": "integer"}
            }
        },
        "models.AddressLookupResponse": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "address": {"type": "string"},
                "matched": {"type": "boolean"},
                "zone": {"type": "string"},
                "zone_id": {"type": "integer"},
                "prefix": {"type": "string"},
                "trigger": {"type": "string"}
            }
        },
        "models.NameLookupResponse": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "name": {"type": "string"},
                "matched": {"type": "boolean"},
                "zones": {"type": "array", "items": {"type": "string"}}
            }
        },
        "models.SkipRecurseResponse": {
            "type": "object",
            "properties": {
                "mask": {"type": "string"},
                "zones": {"type": "array", "items": {"type": "string"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "HydraRPZ Management API",
	Description:      "REST API for inspecting and maintaining DNS response policy zones.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
