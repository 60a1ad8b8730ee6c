package http_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	handler "github.com/greenhouse-ops/zonefix/internal/adapters/http"
)

// findOpenAPIDoc locates the openapi.yaml file by walking up from the test directory.
func findOpenAPIDoc(t *testing.T) string {
	// Start from the current working directory or test file location
	dir, _ := os.Getwd()

	// Look for api/openapi.yaml by going up directories
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

// TestOpenAPIDocument validates the OpenAPI document is valid.
func TestOpenAPIDocument(t *testing.T) {
	// Load the document
	docPath := findOpenAPIDoc(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	// Parse YAML document
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	// Validate the document
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI document validation failed: %v", err)
	}

	// Check that key paths exist
	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/zones/resolve",
		"/v1/zones",
		"/v1/zones/cache",
		"/v1/beds",
		"/graphql",
	}

	for _, path := range expectedPaths {
		if item := doc.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found in document", path)
		}
	}

	// Verify key schemas exist
	expectedSchemas := []string{
		"ResolveRequest",
		"ResolveItem",
		"ResolveResponse",
		"ResolutionResult",
		"ZoneDetails",
		"Zone",
		"ZoneSummary",
		"VarietyBeds",
		"APIError",
		"Pagination",
	}

	for _, schema := range expectedSchemas {
		if doc.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	t.Logf("OpenAPI document valid: %d paths, %d schemas", len(doc.Paths.Map()), len(doc.Components.Schemas))
}

// TestOpenAPIInfo verifies doc metadata.
func TestOpenAPIInfo(t *testing.T) {
	docPath := findOpenAPIDoc(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	if doc.Info.Title != "Zonefix API" {
		t.Errorf("expected title 'Zonefix API', got %q", doc.Info.Title)
	}

	if doc.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", doc.Info.Version)
	}

	if doc.Info.Description == "" {
		t.Error("expected non-empty description")
	}

	if len(doc.Servers) == 0 {
		t.Error("expected at least one server")
	}

	t.Logf("OpenAPI Info: %s v%s @ %s", doc.Info.Title, doc.Info.Version, doc.Servers[0].URL)
}

// TestDocsServesDocument checks the document served under /docs is the one on disk.
func TestDocsServesDocument(t *testing.T) {
	docPath := findOpenAPIDoc(t)
	want, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	app := fiber.New()
	handler.SetupDocs(app, docPath)

	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.yaml", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := readBody(t, resp.Body); string(got) != string(want) {
		t.Error("served document differs from file")
	}

	missing := fiber.New()
	handler.SetupDocs(missing, filepath.Join(t.TempDir(), "none.yaml"))
	resp, _ = missing.Test(httptest.NewRequest("GET", "/docs/openapi.yaml", nil))
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for missing document, got %d", resp.StatusCode)
	}
}
