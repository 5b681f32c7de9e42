package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lifemap/internal/model"
	"lifemap/internal/service"
)

type taskRequest struct {
	Title         string            `json:"title"`
	Kind          model.TaskKind    `json:"type"`
	Priority      model.Priority    `json:"priority"`
	Areas         []model.AreaID    `json:"areas"`
	DueDate       *time.Time        `json:"dueDate"`
	Position      *model.Point      `json:"position"`
	Recurrence    *model.Recurrence `json:"recurrence"`
	Collaborators []string          `json:"collaborators"`
}

// taskView adds the next occurrence of repetitive tasks for calendar consumers.
type taskView struct {
	model.Task
	NextOccurrence *time.Time `json:"nextOccurrence,omitempty"`
}

func newTaskView(t model.Task, now time.Time) taskView {
	v := taskView{Task: t}
	if t.Kind == model.KindRepetitive && t.Recurrence != nil {
		from := now
		if t.LastCompletedAt != nil {
			from = *t.LastCompletedAt
		}
		next := t.Recurrence.NextOccurrence(from)
		v.NextOccurrence = &next
	}
	return v
}

// handleListTasks returns the working set, optionally restricted to one area.
func (s *Server) handleListTasks(c *gin.Context) {
	if _, err := s.planner.User(); err != nil {
		s.fail(c, err)
		return
	}
	area := model.AreaID(c.Query("area"))
	now := s.planner.Now()
	views := make([]taskView, 0)
	for _, t := range s.planner.Tasks() {
		if area != "" && !hasArea(t, area) {
			continue
		}
		views = append(views, newTaskView(t, now))
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": views})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.planner.Task(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": newTaskView(task, s.planner.Now())})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if !s.bindJSON(c, &req) {
		return
	}
	task, err := s.planner.AddTask(c.Request.Context(), service.TaskDraft{
		Title:         req.Title,
		Kind:          req.Kind,
		Priority:      req.Priority,
		Areas:         req.Areas,
		DueDate:       req.DueDate,
		Position:      req.Position,
		Recurrence:    req.Recurrence,
		Collaborators: req.Collaborators,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": newTaskView(task, s.planner.Now())})
}

// handleUpdateTask applies a tri-state patch: absent keys stay, null clears, values set.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var patch model.TaskPatch
	if !s.bindJSON(c, &patch) {
		return
	}
	task, err := s.planner.UpdateTask(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": newTaskView(task, s.planner.Now())})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.planner.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleMoveTask is the drag-end handler of the map.
func (s *Server) handleMoveTask(c *gin.Context) {
	var pos model.Point
	if !s.bindJSON(c, &pos) {
		return
	}
	task, err := s.planner.MoveTask(c.Request.Context(), c.Param("id"), pos)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": newTaskView(task, s.planner.Now())})
}

// handleToggleTask completes or reopens a task; ?from=focus keeps it in the day's plan.
func (s *Server) handleToggleTask(c *gin.Context) {
	fromFocus := c.Query("from") == "focus"
	task, err := s.planner.ToggleTaskComplete(c.Request.Context(), c.Param("id"), fromFocus)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": newTaskView(task, s.planner.Now())})
}

func (s *Server) handleTaskCompletions(c *gin.Context) {
	records, err := s.planner.Completions(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"completions": records,
		"instances":   s.planner.RecurrenceInstances(c.Param("id")),
	})
}

func hasArea(t model.Task, area model.AreaID) bool {
	for _, a := range t.Areas {
		if a == area {
			return true
		}
	}
	return false
}
