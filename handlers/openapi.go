package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/stockroom-labs/inventory-gate/auth"
)

// OpenAPIHandler serves the OpenAPI description of the gateway endpoints.
type OpenAPIHandler struct {
	prefix string
}

// NewOpenAPIHandler creates a new OpenAPI handler for endpoints mounted at prefix.
func NewOpenAPIHandler(prefix string) *OpenAPIHandler {
	if prefix == "" {
		prefix = "/api/gate"
	}
	return &OpenAPIHandler{prefix: prefix}
}

// ServeHTTP handles HTTP requests for the OpenAPI specification.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "Method Not Allowed",
			"message": "Only GET method is allowed for OpenAPI specification",
			"code":    405,
		})
		return
	}

	spec := h.generateOpenAPISpec()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(spec)
}

// generateOpenAPISpec generates the OpenAPI 3.0 specification.
func (h *OpenAPIHandler) generateOpenAPISpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Inventory Gate API",
			"description": "Session and permission endpoints of the inventory gateway.",
			"version":     "1.0.0",
		},
		"servers": []map[string]interface{}{
			{
				"url":         h.prefix,
				"description": "Gateway API base path",
			},
		},
		"tags": []map[string]interface{}{
			{
				"name":        "Session",
				"description": "Login, logout and the current user",
			},
			{
				"name":        "Access",
				"description": "Navigation and route permission checks",
			},
			{
				"name":        "OpenAPI",
				"description": "API documentation",
			},
		},
		"paths":      h.generatePaths(),
		"components": h.generateComponents(),
	}
}

func jsonContent(ref string) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{
			"schema": map[string]interface{}{"$ref": "#/components/schemas/" + ref},
		},
	}
}

func errorResponse(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content":     jsonContent("Error"),
	}
}

// generatePaths generates the paths section of the OpenAPI spec.
func (h *OpenAPIHandler) generatePaths() map[string]interface{} {
	return map[string]interface{}{
		"/login": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Session"},
				"summary":     "Log in",
				"description": "Exchanges credentials for a session cookie and returns the loaded user record.",
				"requestBody": map[string]interface{}{
					"required": true,
					"content":  jsonContent("Credentials"),
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Logged in",
						"content":     jsonContent("LoginResponse"),
					},
					"400": errorResponse("Malformed request"),
					"401": errorResponse("Invalid credentials"),
					"502": errorResponse("Backend unavailable"),
				},
			},
		},
		"/logout": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":    []string{"Session"},
				"summary": "Log out",
				"responses": map[string]interface{}{
					"204": map[string]interface{}{"description": "Session cleared"},
				},
			},
		},
		"/me": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Session"},
				"summary":     "Current user",
				"description": "Returns the current-user state. Without a session the state is empty.",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Current-user state",
						"content":     jsonContent("UserState"),
					},
				},
			},
		},
		"/nav": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":    []string{"Access"},
				"summary": "Visible navigation entries",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Entries the current user may see",
						"content":     jsonContent("NavResponse"),
					},
					"401": errorResponse("No valid session"),
				},
			},
		},
		"/access": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":    []string{"Access"},
				"summary": "Check access to a page",
				"parameters": []map[string]interface{}{
					{
						"name":     "path",
						"in":       "query",
						"required": true,
						"schema":   map[string]interface{}{"type": "string"},
						"example":  "/invoices/new/addition",
					},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Guard decision for the path",
						"content":     jsonContent("AccessResponse"),
					},
					"400": errorResponse("Missing path"),
				},
			},
		},
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":    []string{"OpenAPI"},
				"summary": "Health check",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Gateway is up"},
				},
			},
		},
		"/openapi.json": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":    []string{"OpenAPI"},
				"summary": "This document",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "OpenAPI document"},
				},
			},
		},
	}
}

// generateComponents generates the components section of the OpenAPI spec.
func (h *OpenAPIHandler) generateComponents() map[string]interface{} {
	flags := make([]string, 0, len(auth.KnownFlags()))
	userProps := map[string]interface{}{
		"id":           map[string]interface{}{"type": "integer"},
		"username":     map[string]interface{}{"type": "string"},
		"job_name":     map[string]interface{}{"type": "string"},
		"phone_number": map[string]interface{}{"type": "string"},
	}
	for _, f := range auth.KnownFlags() {
		flags = append(flags, string(f))
		userProps[string(f)] = map[string]interface{}{"type": "boolean"}
	}

	return map[string]interface{}{
		"schemas": map[string]interface{}{
			"Error": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"error":   map[string]interface{}{"type": "string"},
					"message": map[string]interface{}{"type": "string"},
					"code":    map[string]interface{}{"type": "integer"},
				},
			},
			"Credentials": map[string]interface{}{
				"type":     "object",
				"required": []string{"username", "password"},
				"properties": map[string]interface{}{
					"username": map[string]interface{}{"type": "string"},
					"password": map[string]interface{}{"type": "string", "format": "password"},
				},
			},
			"User": map[string]interface{}{
				"type":       "object",
				"properties": userProps,
			},
			"LoginResponse": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"user": map[string]interface{}{"$ref": "#/components/schemas/User"},
				},
			},
			"UserState": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"data":      map[string]interface{}{"$ref": "#/components/schemas/User"},
					"isLoading": map[string]interface{}{"type": "boolean"},
					"isError":   map[string]interface{}{"type": "boolean"},
				},
			},
			"Requirement": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"kind": map[string]interface{}{
						"type": "string",
						"enum": []string{"none", "admin", "all_of", "any_of"},
					},
					"flags": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string", "enum": flags},
					},
				},
			},
			"NavEntry": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key":         map[string]interface{}{"type": "string"},
					"label":       map[string]interface{}{"type": "string"},
					"path":        map[string]interface{}{"type": "string"},
					"requirement": map[string]interface{}{"$ref": "#/components/schemas/Requirement"},
					"children": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"$ref": "#/components/schemas/NavEntry"},
					},
				},
			},
			"NavResponse": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"entries": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"$ref": "#/components/schemas/NavEntry"},
					},
				},
			},
			"AccessResponse": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      map[string]interface{}{"type": "string"},
					"protected": map[string]interface{}{"type": "boolean"},
					"route": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":        map[string]interface{}{"type": "string"},
							"path":        map[string]interface{}{"type": "string"},
							"requirement": map[string]interface{}{"$ref": "#/components/schemas/Requirement"},
							"fallback":    map[string]interface{}{"type": "string"},
						},
					},
					"result": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"decision": map[string]interface{}{
								"type": "string",
								"enum": []string{"render", "redirect", "denied", "unavailable"},
							},
							"location": map[string]interface{}{"type": "string"},
							"reason":   map[string]interface{}{"type": "string"},
							"missing": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "string"},
							},
						},
					},
				},
			},
		},
	}
}
