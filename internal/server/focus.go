package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type focusRequest struct {
	TaskID string `json:"taskId"`
}

type timeBlockRequest struct {
	TaskID string    `json:"taskId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Source string    `json:"source"`
}

func (s *Server) handleGetFocus(c *gin.Context) {
	if _, err := s.planner.User(); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"focusList": s.planner.FocusList(),
		"tasks":     s.planner.FocusTasks(),
	})
}

func (s *Server) handleAddFocus(c *gin.Context) {
	var req focusRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.TaskID == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("taskId is required"))
		return
	}
	focus, err := s.planner.AddToFocusList(c.Request.Context(), req.TaskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"focusList": focus})
}

func (s *Server) handleRemoveFocus(c *gin.Context) {
	focus, err := s.planner.RemoveFromFocusList(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"focusList": focus})
}

func (s *Server) handleClearFocus(c *gin.Context) {
	if err := s.planner.ClearFocusList(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"focusList": []string{}})
}

// handleListTimeBlocks accepts optional RFC 3339 from/to bounds.
func (s *Server) handleListTimeBlocks(c *gin.Context) {
	var from, to time.Time
	for _, b := range []struct {
		name string
		dst  *time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := c.Query(b.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", b.name, err))
			return
		}
		*b.dst = t
	}
	respondSuccess(c, http.StatusOK, gin.H{"timeBlocks": s.planner.TimeBlocks(from, to)})
}

func (s *Server) handleAddTimeBlock(c *gin.Context) {
	var req timeBlockRequest
	if !s.bindJSON(c, &req) {
		return
	}
	block, err := s.planner.AddTimeBlock(req.TaskID, req.Start, req.End, req.Source)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"timeBlock": block})
}

func (s *Server) handleUpdateTimeBlock(c *gin.Context) {
	var req timeBlockRequest
	if !s.bindJSON(c, &req) {
		return
	}
	block, err := s.planner.UpdateTimeBlock(c.Param("id"), req.Start, req.End)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"timeBlock": block})
}

func (s *Server) handleDeleteTimeBlock(c *gin.Context) {
	if err := s.planner.DeleteTimeBlock(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
