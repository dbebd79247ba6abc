package handler

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed openapi.yaml
var openAPISpec []byte

const docsPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>TaskSphere API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"></head>
<body><div id="ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: "/docs/openapi.yaml", dom_id: "#ui"});</script>
</body>
</html>`

// Root describes the service.
func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"service": "tasksphere",
		"docs":    "/docs",
		"health":  "/healthz",
	})
}

// Home sends browsers to the API documentation.
func Home(c echo.Context) error {
	return c.Redirect(http.StatusFound, "/docs")
}

func Docs(c echo.Context) error {
	return c.HTML(http.StatusOK, docsPage)
}

func OpenAPI(c echo.Context) error {
	return c.Blob(http.StatusOK, "application/yaml", openAPISpec)
}
