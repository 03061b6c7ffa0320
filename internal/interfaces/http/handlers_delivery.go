package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-ops/internal/application/service"
)

type deferBillingRequest struct {
	Reason string `json:"reason"`
}

// POST /api/projects/:id/tasks
func (s *Server) createTask(c *gin.Context) {
	var in service.CreateTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	task, err := s.services.Tasks.CreateTask(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// GET /api/projects/:id/tasks
func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.services.Tasks.ListTasks(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// PATCH /api/tasks/:id/status
func (s *Server) updateTaskStatus(c *gin.Context) {
	var in service.UpdateTaskStatusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	task, err := s.services.Tasks.UpdateTaskStatus(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// POST /api/tasks/:id/time-logs
func (s *Server) logTime(c *gin.Context) {
	var in service.LogTimeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	timeLog, err := s.services.Tasks.LogTime(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, timeLog)
}

// POST /api/tasks/:id/deferments
func (s *Server) deferBilling(c *gin.Context) {
	var req deferBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	deferment, err := s.services.Tasks.DeferBilling(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deferment)
}

// POST /api/projects/:id/files
func (s *Server) registerFile(c *gin.Context) {
	var in service.RegisterFileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	file, err := s.services.Files.RegisterFile(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

// GET /api/projects/:id/files
func (s *Server) listFiles(c *gin.Context) {
	files, err := s.services.Files.ListFiles(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// POST /api/files/:id/reviews
func (s *Server) reviewFile(c *gin.Context) {
	var in service.ReviewFileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	file, err := s.services.Files.ReviewFile(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// PATCH /api/checklist-items/:id
func (s *Server) updateChecklistItem(c *gin.Context) {
	var in service.UpdateChecklistItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	item, err := s.services.Files.UpdateChecklistItem(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
