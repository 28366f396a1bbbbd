// Package docs registers the OpenAPI document served under /swagger.
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
        "/verification/request": {
            "post": {
                "tags": ["verification"],
                "summary": "Send a verification code to an email address",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/emailRequest"}}],
                "responses": {"200": {"description": "code sent"}, "400": {"description": "invalid email"}, "429": {"description": "rate limited"}, "503": {"description": "mail unavailable"}}
            }
        },
        "/verification/resend": {
            "post": {
                "tags": ["verification"],
                "summary": "Send a fresh verification code",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/emailRequest"}}],
                "responses": {"200": {"description": "code sent"}, "429": {"description": "rate limited"}}
            }
        },
        "/verification/verify": {
            "post": {
                "tags": ["verification"],
                "summary": "Exchange a code for a verification token",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/verifyRequest"}}],
                "responses": {"200": {"description": "token issued"}, "400": {"description": "invalid, expired or exhausted code"}, "404": {"description": "no code"}, "429": {"description": "too many failures from this address"}}
            }
        },
        "/verification/status": {
            "get": {
                "tags": ["verification"],
                "summary": "Check a bearer token",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "verified flag and email"}}
            }
        },
        "/case/submit": {
            "post": {
                "tags": ["cases"],
                "summary": "Report a case",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/caseInput"}}],
                "responses": {"201": {"description": "created"}, "400": {"description": "invalid"}, "401": {"description": "verification required"}, "409": {"description": "duplicate"}, "429": {"description": "rate limited"}}
            }
        },
        "/case/{id}": {
            "get": {"tags": ["cases"], "summary": "Case detail with verdict", "parameters": [{"$ref": "#/parameters/caseId"}], "responses": {"200": {"description": "case"}, "404": {"description": "not found"}}},
            "put": {"tags": ["cases"], "summary": "Update a case (admin)", "security": [{"AdminKey": []}], "parameters": [{"$ref": "#/parameters/caseId"}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/caseInput"}}], "responses": {"200": {"description": "updated"}, "403": {"description": "forbidden"}}},
            "delete": {"tags": ["cases"], "summary": "Delete a case (admin)", "security": [{"AdminKey": []}], "parameters": [{"$ref": "#/parameters/caseId"}], "responses": {"200": {"description": "deleted"}, "403": {"description": "forbidden"}}}
        },
        "/case/{id}/report.pdf": {
            "get": {"tags": ["cases"], "summary": "Case dossier", "produces": ["application/pdf"], "parameters": [{"$ref": "#/parameters/caseId"}], "responses": {"200": {"description": "pdf"}}}
        },
        "/case/{id}/vote": {
            "post": {
                "tags": ["votes"],
                "summary": "Vote guilty or not_guilty",
                "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/caseId"}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/voteRequest"}}],
                "responses": {"200": {"description": "vote recorded"}, "401": {"description": "token invalid or verification required"}, "404": {"description": "case not found"}, "409": {"description": "already voted"}}
            }
        },
        "/case/{id}/verdict": {"get": {"tags": ["votes"], "summary": "Current tally", "parameters": [{"$ref": "#/parameters/caseId"}], "responses": {"200": {"description": "verdict"}}}},
        "/case/{id}/voted": {"get": {"tags": ["votes"], "summary": "Has the caller voted", "parameters": [{"$ref": "#/parameters/caseId"}], "responses": {"200": {"description": "hasVoted"}}}},
        "/case/{id}/reset-votes": {"post": {"tags": ["votes"], "summary": "Reset all votes (admin)", "security": [{"AdminKey": []}], "parameters": [{"$ref": "#/parameters/caseId"}], "responses": {"200": {"description": "reset"}}}},
        "/cases/recent": {"get": {"tags": ["cases"], "summary": "Newest cases", "parameters": [{"$ref": "#/parameters/page"}, {"$ref": "#/parameters/size"}], "responses": {"200": {"description": "page"}}}},
        "/cases/top-voted": {"get": {"tags": ["votes"], "summary": "Most voted cases", "parameters": [{"$ref": "#/parameters/page"}, {"$ref": "#/parameters/size"}], "responses": {"200": {"description": "page"}}}},
        "/cases/needs-votes": {"get": {"tags": ["votes"], "summary": "Cases with fewer than 5 votes", "parameters": [{"$ref": "#/parameters/page"}, {"$ref": "#/parameters/size"}], "responses": {"200": {"description": "page"}}}},
        "/search": {
            "get": {
                "tags": ["cases"],
                "summary": "Search cases",
                "parameters": [
                    {"in": "query", "name": "filter", "type": "string", "enum": ["name", "email", "phone", "company", "action", "all"]},
                    {"in": "query", "name": "value", "type": "string", "required": true},
                    {"$ref": "#/parameters/page"}, {"$ref": "#/parameters/size"}
                ],
                "responses": {"200": {"description": "results"}, "400": {"description": "bad filter or empty value"}}
            }
        },
        "/health": {"get": {"tags": ["ops"], "summary": "Health", "responses": {"200": {"description": "up"}, "503": {"description": "database down"}}}}
    },
    "parameters": {
        "caseId": {"in": "path", "name": "id", "type": "integer", "required": true},
        "page": {"in": "query", "name": "page", "type": "integer", "description": "1-based"},
        "size": {"in": "query", "name": "size", "type": "integer"}
    },
    "definitions": {
        "emailRequest": {"type": "object", "required": ["email"], "properties": {"email": {"type": "string"}}},
        "verifyRequest": {"type": "object", "required": ["email", "code"], "properties": {"email": {"type": "string"}, "code": {"type": "string", "pattern": "^\\d{6}$"}}},
        "voteRequest": {"type": "object", "required": ["vote"], "properties": {"vote": {"type": "string", "enum": ["guilty", "not_guilty"]}, "email": {"type": "string"}}},
        "caseInput": {"type": "object", "properties": {
            "name": {"type": "string"}, "email": {"type": "string"}, "phone": {"type": "string"}, "company": {"type": "string"},
            "actions": {"type": "string"}, "description": {"type": "string"}, "reporterEmail": {"type": "string"}
        }}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"},
        "AdminKey": {"type": "apiKey", "name": "X-Admin-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Unveil API",
	Description:      "Case reports, email verification and community verdicts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
