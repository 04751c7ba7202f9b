package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAPIHandler(t *testing.T) {
	handler := NewOpenAPIHandler("")
	if handler == nil {
		t.Fatal("NewOpenAPIHandler returned nil")
	}
	if handler.prefix != "/api/gate" {
		t.Errorf("Expected default prefix '/api/gate', got '%s'", handler.prefix)
	}
}

func fetchSpec(t *testing.T, handler *OpenAPIHandler) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var spec map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&spec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return spec
}

func TestOpenAPIHandler_ServeHTTP_GET(t *testing.T) {
	handler := NewOpenAPIHandler("/api/gate")

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var spec map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&spec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if openapi, ok := spec["openapi"].(string); !ok || openapi != "3.0.3" {
		t.Errorf("Expected openapi '3.0.3', got '%v'", spec["openapi"])
	}
}

func TestOpenAPIHandler_ServeHTTP_MethodNotAllowed(t *testing.T) {
	handler := NewOpenAPIHandler("")

	methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/openapi.json", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected status 405 for %s, got %d", method, rec.Code)
			}

			var resp map[string]interface{}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if resp["error"] != "Method Not Allowed" {
				t.Errorf("Expected error 'Method Not Allowed', got '%v'", resp["error"])
			}
			if resp["code"] != float64(405) {
				t.Errorf("Expected code 405, got '%v'", resp["code"])
			}
		})
	}
}

func TestOpenAPIHandler_Spec_Servers(t *testing.T) {
	spec := fetchSpec(t, NewOpenAPIHandler("/gate"))

	servers, ok := spec["servers"].([]interface{})
	if !ok || len(servers) != 1 {
		t.Fatalf("Expected one server, got %v", spec["servers"])
	}
	server := servers[0].(map[string]interface{})
	if server["url"] != "/gate" {
		t.Errorf("Expected server url '/gate', got '%v'", server["url"])
	}
}

func TestOpenAPIHandler_Spec_Paths(t *testing.T) {
	spec := fetchSpec(t, NewOpenAPIHandler(""))

	paths, ok := spec["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected 'paths' object in spec")
	}

	expected := map[string]string{
		"/login":        "post",
		"/logout":       "post",
		"/me":           "get",
		"/nav":          "get",
		"/access":       "get",
		"/health":       "get",
		"/openapi.json": "get",
	}
	for path, method := range expected {
		item, ok := paths[path].(map[string]interface{})
		if !ok {
			t.Errorf("Expected path %s in spec", path)
			continue
		}
		if _, ok := item[method]; !ok {
			t.Errorf("Expected %s operation on %s", method, path)
		}
	}
}

func TestOpenAPIHandler_Spec_UserSchemaListsFlags(t *testing.T) {
	spec := fetchSpec(t, NewOpenAPIHandler(""))

	components := spec["components"].(map[string]interface{})
	schemas := components["schemas"].(map[string]interface{})
	user, ok := schemas["User"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected 'User' schema")
	}
	props := user["properties"].(map[string]interface{})

	for _, key := range []string{"id", "username", "job_name", "invoices_can_create_addition", "reports_can_view"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Expected property %s in User schema", key)
		}
	}
}
