package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListBackups(c *gin.Context) {
	backups, err := s.planner.ListBackups(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"backups": backups})
}

func (s *Server) handleCreateBackup(c *gin.Context) {
	snap, err := s.planner.CreateBackup(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"backup": snap})
}

// handleRestoreBackup overwrites the working set; it answers 409 unless ?confirm=true.
func (s *Server) handleRestoreBackup(c *gin.Context) {
	confirm, _ := strconv.ParseBool(c.Query("confirm"))
	state, err := s.planner.RestoreBackup(c.Request.Context(), c.Param("id"), confirm)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"restored":  state.Snapshot.ID,
		"tasks":     len(state.Tasks),
		"details":   len(state.Details),
		"focusList": state.FocusList,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	records, err := s.planner.History(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"history": records})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.planner.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stats": stats})
}
