package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"lifemap/internal/service"
)

// Server exposes the planner as a JSON API.
type Server struct {
	engine  *gin.Engine
	planner *service.PlannerService
	logger  *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(planner *service.PlannerService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz", "/api/events"))

	srv := &Server{
		engine:  router,
		planner: planner,
		logger:  logger,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.GET("/session", s.handleGetSession)
		api.POST("/session", s.handleLogin)
		api.GET("/areas", s.handleListAreas)
		api.GET("/view", s.handleGetView)
		api.PUT("/view", s.handleSetView)
		api.GET("/events", s.handleEvents)

		tasks := api.Group("/tasks")
		{
			tasks.GET("", s.handleListTasks)
			tasks.POST("", s.handleCreateTask)
			tasks.GET(":id", s.handleGetTask)
			tasks.PATCH(":id", s.handleUpdateTask)
			tasks.DELETE(":id", s.handleDeleteTask)
			tasks.POST(":id/move", s.handleMoveTask)
			tasks.POST(":id/toggle", s.handleToggleTask)
			tasks.GET(":id/completions", s.handleTaskCompletions)

			tasks.GET(":id/detail", s.handleGetDetail)
			tasks.PUT(":id/detail/goal", s.handleSetGoal)
			tasks.POST(":id/subtasks", s.handleAddSubtask)
			tasks.POST(":id/subtasks/:sid/toggle", s.handleToggleSubtask)
			tasks.PATCH(":id/subtasks/:sid", s.handleUpdateSubtask)
			tasks.DELETE(":id/subtasks/:sid", s.handleDeleteSubtask)
			tasks.POST(":id/milestones", s.handleAddMilestone)
			tasks.POST(":id/milestones/:mid/toggle", s.handleToggleMilestone)
			tasks.PATCH(":id/milestones/:mid", s.handleUpdateMilestone)
			tasks.DELETE(":id/milestones/:mid", s.handleDeleteMilestone)
		}

		focus := api.Group("/focus")
		{
			focus.GET("", s.handleGetFocus)
			focus.POST("", s.handleAddFocus)
			focus.DELETE("", s.handleClearFocus)
			focus.DELETE(":id", s.handleRemoveFocus)
		}

		blocks := api.Group("/timeblocks")
		{
			blocks.GET("", s.handleListTimeBlocks)
			blocks.POST("", s.handleAddTimeBlock)
			blocks.PATCH(":id", s.handleUpdateTimeBlock)
			blocks.DELETE(":id", s.handleDeleteTimeBlock)
		}

		api.GET("/backups", s.handleListBackups)
		api.POST("/backups", s.handleCreateBackup)
		api.POST("/backups/:id/restore", s.handleRestoreBackup)
		api.GET("/history", s.handleHistory)
		api.GET("/stats", s.handleStats)
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleEvents streams a change counter whenever the planner state changes.
func (s *Server) handleEvents(c *gin.Context) {
	changes := s.planner.Watch(c.Request.Context())
	c.Stream(func(w io.Writer) bool {
		version, ok := <-changes
		if !ok {
			return false
		}
		c.SSEvent("change", gin.H{"version": version})
		return true
	})
}

// fail maps planner errors onto HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConfirmationRequired):
		status = http.StatusConflict
	case errors.Is(err, service.ErrUnknownUser):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	s.respondError(c, status, err)
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected", slog.String("path", c.FullPath()), slog.Int("status", status), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess writes payload, or only the status when payload is nil.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

// bindJSON decodes the body and answers 400 on failure.
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return false
	}
	return true
}
