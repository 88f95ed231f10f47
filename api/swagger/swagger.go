package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Issue Audit API",
        "description": "Audited issue field changes, change rules, suspicious activity alerts and consistency checks.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Issues", "description": "Audited field mutations"},
        {"name": "Audit", "description": "Append-only change trail"},
        {"name": "Rules", "description": "Change restriction rules"},
        {"name": "Alerts", "description": "Suspicious activity alerts"},
        {"name": "Consistency", "description": "Client snapshot drift checks"},
        {"name": "Dashboard", "description": "Admin monitoring snapshot"}
    ],
    "paths": {
        "/issues/{id}/fields": {
            "patch": {
                "tags": ["Issues"],
                "summary": "Change an issue field",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangeIssueFieldRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Rejected by a change rule", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Audit storage unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit-logs": {
            "get": {
                "tags": ["Audit"],
                "summary": "Query audit records",
                "parameters": [
                    {"name": "entityId", "in": "query", "type": "integer"},
                    {"name": "fieldName", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string", "enum": ["CREATE", "UPDATE", "DELETE"]},
                    {"name": "actorKind", "in": "query", "type": "string", "enum": ["admin", "user", "system"]},
                    {"name": "actorId", "in": "query", "type": "string"},
                    {"name": "validationStatus", "in": "query", "type": "string", "enum": ["valid", "flagged", "rejected"]},
                    {"name": "changeSource", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/audit-logs/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Get an audit record",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/audit-logs/stats": {
            "get": {
                "tags": ["Audit"],
                "summary": "Audit summary statistics",
                "parameters": [
                    {"name": "period", "in": "query", "type": "string", "enum": ["24h", "7d", "30d", "90d"]},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/audit-logs/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Export audit records",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [{"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}],
                "responses": {"200": {"description": "File download"}}
            }
        },
        "/rules": {
            "get": {
                "tags": ["Rules"],
                "summary": "List change rules",
                "parameters": [
                    {"name": "ruleType", "in": "query", "type": "string"},
                    {"name": "fieldName", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Rules"],
                "summary": "Create a change rule",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateChangeRuleRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate rule name", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rules/{id}": {
            "get": {
                "tags": ["Rules"],
                "summary": "Get a change rule",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Rules"],
                "summary": "Update a change rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateChangeRuleRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rules/{id}/active": {
            "patch": {
                "tags": ["Rules"],
                "summary": "Enable or disable a change rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"isActive": {"type": "boolean"}}}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rules/evaluate": {
            "post": {
                "tags": ["Rules"],
                "summary": "Dry-run the rule engine",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EvaluateChangeRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/alerts": {
            "get": {
                "tags": ["Alerts"],
                "summary": "List alerts",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["open", "resolved"]},
                    {"name": "severity", "in": "query", "type": "string", "enum": ["low", "medium", "high", "critical"]},
                    {"name": "alertType", "in": "query", "type": "string", "enum": ["RAPID_CHANGE", "OFF_HOURS_BULK_EDIT", "AUTOMATED_AGENT_SIGNATURE"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/alerts/{id}": {
            "get": {
                "tags": ["Alerts"],
                "summary": "Get an alert",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/alerts/{id}/resolve": {
            "post": {
                "tags": ["Alerts"],
                "summary": "Resolve an open alert",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"resolutionNotes": {"type": "string"}}, "required": ["resolutionNotes"]}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Alert already resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/alerts/scan": {
            "post": {
                "tags": ["Alerts"],
                "summary": "Run suspicious activity detection",
                "parameters": [{"name": "payload", "in": "body", "required": false, "schema": {"type": "object", "properties": {"from": {"type": "string", "format": "date-time"}, "to": {"type": "string", "format": "date-time"}}}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/alerts/stream": {
            "get": {
                "tags": ["Alerts"],
                "summary": "Stream alert events",
                "produces": ["text/event-stream"],
                "responses": {"200": {"description": "Server-sent events"}}
            }
        },
        "/consistency/validate": {
            "post": {
                "tags": ["Consistency"],
                "summary": "Validate one observed value",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateConsistencyRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/consistency/validate-batch": {
            "post": {
                "tags": ["Consistency"],
                "summary": "Validate many observed values",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/ValidateConsistencyRequest"}}}}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/consistency/reports": {
            "get": {
                "tags": ["Consistency"],
                "summary": "List drift reports",
                "parameters": [
                    {"name": "entityId", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/dashboard/refresh": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Admin monitoring snapshot",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "ChangeIssueFieldRequest": {
            "type": "object",
            "properties": {
                "fieldName": {"type": "string", "enum": ["end_date", "betting_end_date", "status"]},
                "newValue": {"type": "string", "x-nullable": true},
                "changeSource": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["fieldName"]
        },
        "CreateChangeRuleRequest": {
            "type": "object",
            "properties": {
                "ruleName": {"type": "string"},
                "ruleType": {"type": "string", "enum": ["max_frequency", "field_lock_after_status", "actor_allowlist", "min_lead_time"]},
                "fieldName": {"type": "string"},
                "restrictionData": {"type": "object"},
                "enforcement": {"type": "string", "enum": ["hard", "soft"]},
                "description": {"type": "string"},
                "isActive": {"type": "boolean"}
            },
            "required": ["ruleName", "ruleType", "restrictionData"]
        },
        "UpdateChangeRuleRequest": {
            "type": "object",
            "properties": {
                "ruleName": {"type": "string"},
                "fieldName": {"type": "string"},
                "restrictionData": {"type": "object"},
                "enforcement": {"type": "string", "enum": ["hard", "soft"]},
                "description": {"type": "string"}
            },
            "required": ["ruleName", "restrictionData"]
        },
        "EvaluateChangeRequest": {
            "type": "object",
            "properties": {
                "entityId": {"type": "integer"},
                "fieldName": {"type": "string"},
                "oldValue": {"type": "string"},
                "newValue": {"type": "string"},
                "entityStatus": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"}
            },
            "required": ["entityId", "fieldName"]
        },
        "ValidateConsistencyRequest": {
            "type": "object",
            "properties": {
                "entityId": {"type": "integer"},
                "fieldName": {"type": "string", "enum": ["end_date", "betting_end_date", "status"]},
                "observedValue": {"type": "string", "x-nullable": true}
            },
            "required": ["entityId"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
