package router

import (
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/tasksphere/internal/handler"
)

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 64 << 10

// RegisterProjects registers projects, their documents and tasks under /v1.
func RegisterProjects(e *echo.Echo, p *handler.ProjectHandler, t *handler.TaskHandler, maxUpload int64) {
	g := e.Group("/v1")

	g.GET("/projects", p.List)
	g.POST("/projects", p.Create)
	g.GET("/projects/stats", p.Stats)
	g.GET("/projects/:id", p.Get)
	g.PUT("/projects/:id", p.Update)
	g.DELETE("/projects/:id", p.Delete)

	g.GET("/projects/:id/documents", p.ListDocuments)
	g.POST("/projects/:id/documents", p.UploadDocument,
		echomw.BodyLimit(strconv.FormatInt(maxUpload+multipartOverhead, 10)))

	g.GET("/projects/:id/tasks", t.List)
	g.POST("/projects/:id/tasks", t.Create)
	g.GET("/tasks/:id", t.Get)
	g.PATCH("/tasks/:id/status", t.UpdateStatus)
	g.DELETE("/tasks/:id", t.Delete)
}

// RegisterNotes registers personal task notes under /v1/task-notes.
func RegisterNotes(e *echo.Echo, n *handler.NoteHandler) {
	g := e.Group("/v1/task-notes")
	g.GET("", n.List)
	g.POST("", n.Save)
	g.GET("/tags", n.Tags)
	g.GET("/tag/:tag", n.ListByTag)
	g.GET("/task/:taskId", n.GetForTask)
	g.DELETE("/task/:taskId", n.DeleteForTask)
	g.GET("/task/:taskId/exists", n.Exists)
}
