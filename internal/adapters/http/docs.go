package http

import (
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Zonefix API - Swagger UI</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: '/docs/openapi.yaml', dom_id: '#swagger-ui', deepLinking: true });
  </script>
</body>
</html>`

// DefaultDocPath is where the OpenAPI document lives relative to the
// working directory of a deployed binary.
const DefaultDocPath = "api/openapi.yaml"

// SetupDocs registers Swagger UI at /docs and the OpenAPI document at
// /docs/openapi.yaml. The document is read on first request and kept.
func SetupDocs(app *fiber.App, docPath string) {
	if docPath == "" {
		docPath = DefaultDocPath
	}

	var (
		once sync.Once
		doc []byte
		err  error
	)
	load := func() ([]byte, error) {
		once.Do(func() { doc, err = os.ReadFile(docPath) })
		return doc, err
	}

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		data, err := load()
		if err != nil {
			return newError(c, fiber.StatusNotFound, "not_found", "openapi.yaml not found")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(data)
	})
}
