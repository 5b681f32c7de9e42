package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lifemap/internal/model"
	"lifemap/internal/service"
)

type titleRequest struct {
	Title      string     `json:"title"`
	TargetDate *time.Time `json:"targetDate"`
}

type goalRequest struct {
	Goal string `json:"goal"`
}

func (s *Server) handleGetDetail(c *gin.Context) {
	detail, err := s.planner.TaskDetail(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"detail": detail, "timeline": service.Timeline(detail)})
}

func (s *Server) handleSetGoal(c *gin.Context) {
	var req goalRequest
	if !s.bindJSON(c, &req) {
		return
	}
	s.detailResult(c)(s.planner.UpdateTaskGoal(c.Request.Context(), c.Param("id"), req.Goal))
}

func (s *Server) handleAddSubtask(c *gin.Context) {
	var req titleRequest
	if !s.bindJSON(c, &req) {
		return
	}
	subtask, err := s.planner.AddSubtask(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"subtask": subtask})
}

func (s *Server) handleToggleSubtask(c *gin.Context) {
	s.detailResult(c)(s.planner.ToggleSubtask(c.Request.Context(), c.Param("id"), c.Param("sid")))
}

func (s *Server) handleUpdateSubtask(c *gin.Context) {
	var patch service.SubtaskPatch
	if !s.bindJSON(c, &patch) {
		return
	}
	s.detailResult(c)(s.planner.UpdateSubtask(c.Request.Context(), c.Param("id"), c.Param("sid"), patch))
}

func (s *Server) handleDeleteSubtask(c *gin.Context) {
	s.detailResult(c)(s.planner.DeleteSubtask(c.Request.Context(), c.Param("id"), c.Param("sid")))
}

func (s *Server) handleAddMilestone(c *gin.Context) {
	var req titleRequest
	if !s.bindJSON(c, &req) {
		return
	}
	milestone, err := s.planner.AddMilestone(c.Request.Context(), c.Param("id"), req.Title, req.TargetDate)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"milestone": milestone})
}

func (s *Server) handleToggleMilestone(c *gin.Context) {
	s.detailResult(c)(s.planner.ToggleMilestone(c.Request.Context(), c.Param("id"), c.Param("mid")))
}

func (s *Server) handleUpdateMilestone(c *gin.Context) {
	var patch service.MilestonePatch
	if !s.bindJSON(c, &patch) {
		return
	}
	s.detailResult(c)(s.planner.UpdateMilestone(c.Request.Context(), c.Param("id"), c.Param("mid"), patch))
}

func (s *Server) handleDeleteMilestone(c *gin.Context) {
	s.detailResult(c)(s.planner.DeleteMilestone(c.Request.Context(), c.Param("id"), c.Param("mid")))
}

// detailResult writes the updated detail or the mapped error.
func (s *Server) detailResult(c *gin.Context) func(model.TaskDetail, error) {
	return func(detail model.TaskDetail, err error) {
		if err != nil {
			s.fail(c, err)
			return
		}
		respondSuccess(c, http.StatusOK, gin.H{"detail": detail})
	}
}
