package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lifemap/internal/service"
)

type loginRequest struct {
	Username string `json:"username"`
}

type viewRequest struct {
	View          *string `json:"view"`
	DailyPlanning *bool   `json:"dailyPlanning"`
}

func (s *Server) handleGetSession(c *gin.Context) {
	user, err := s.planner.User()
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}

// handleLogin switches the planner to another allow-listed user.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if !s.bindJSON(c, &req) {
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("username is required"))
		return
	}
	if err := s.planner.Login(c.Request.Context(), name); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": name})
}

func (s *Server) handleListAreas(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"areas": s.planner.Areas()})
}

func (s *Server) handleGetView(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{
		"view":          s.planner.View(),
		"dailyPlanning": s.planner.DailyPlanningMode(),
	})
}

func (s *Server) handleSetView(c *gin.Context) {
	var req viewRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.View != nil {
		if err := s.planner.SetView(service.View(*req.View)); err != nil {
			s.fail(c, err)
			return
		}
	}
	if req.DailyPlanning != nil {
		s.planner.SetDailyPlanningMode(*req.DailyPlanning)
	}
	s.handleGetView(c)
}
