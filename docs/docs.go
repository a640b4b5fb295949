package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "FixFlow Dispatch Backend",
    "description": "Facility incident intake, technician assignment and SLA escalation",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "paths": {
    "/api/technicians": {"get": {"tags": ["technicians"], "summary": "List technicians", "responses": {"200": {"description": "OK"}}}},
    "/api/technicians/{id}": {"get": {"tags": ["technicians"], "summary": "Technician details", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
    "/api/technicians/{id}/availability": {"patch": {"tags": ["technicians"], "summary": "Set technician availability", "security": [{"AdminKey": []}], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
    "/api/technicians/{id}/assignments": {"patch": {"tags": ["technicians"], "summary": "Correct technician load", "security": [{"AdminKey": []}], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "409": {"description": "At capacity"}}}},
    "/api/technicians/{id}/rate-limit": {"get": {"tags": ["technicians"], "summary": "Technician daily limit", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
    "/api/reports": {"post": {"tags": ["incidents"], "summary": "Report incident", "responses": {"200": {"description": "Refused"}, "201": {"description": "Assigned"}}}},
    "/api/incidents/{id}": {"get": {"tags": ["incidents"], "summary": "Incident details", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
    "/api/incidents/{id}/status": {"patch": {"tags": ["incidents"], "summary": "Update incident status", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "409": {"description": "Invalid transition"}}}},
    "/api/schedules": {
      "get": {"tags": ["schedules"], "summary": "List schedules", "responses": {"200": {"description": "OK"}}},
      "post": {"tags": ["schedules"], "summary": "Create schedule", "responses": {"201": {"description": "Created"}, "409": {"description": "Overlap, capacity or availability"}}}
    },
    "/api/schedules/{id}/status": {"patch": {"tags": ["schedules"], "summary": "Update schedule status", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "409": {"description": "Invalid transition"}}}},
    "/api/analytics/aging": {"get": {"tags": ["analytics"], "summary": "Incident aging", "responses": {"200": {"description": "OK"}}}},
    "/api/alerts": {"post": {"tags": ["alerts"], "summary": "Submit alert", "security": [{"AdminKey": []}], "responses": {"200": {"description": "Refused"}, "201": {"description": "Assigned"}}}},
    "/api/alerts/batch": {"post": {"tags": ["alerts"], "summary": "Submit alert batch", "security": [{"AdminKey": []}], "responses": {"200": {"description": "OK"}}}},
    "/api/escalations/sweep": {"post": {"tags": ["escalations"], "summary": "Run escalation sweep", "security": [{"AdminKey": []}], "responses": {"200": {"description": "OK"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
