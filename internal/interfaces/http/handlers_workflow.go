package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-ops/internal/application/service"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/entity"
)

// intakeView adds the lifecycle actions available from the intake's status
type intakeView struct {
	*entity.Intake
	AllowedActions []string `json:"allowed_actions"`
}

func newIntakeView(intake *entity.Intake) intakeView {
	return intakeView{Intake: intake, AllowedActions: workflow.IntakeActions(intake.Status)}
}

// listQuery represents common paging parameters
type listQuery struct {
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
	Status string `form:"status"`
}

func (q *listQuery) normalize() {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// POST /api/intakes
func (s *Server) submitIntake(c *gin.Context) {
	var in service.SubmitIntakeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	submitted, err := s.services.Intakes.SubmitIntake(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, submitted)
}

// GET /api/intakes
func (s *Server) listIntakes(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	q.normalize()

	intakes, err := s.services.Intakes.ListIntakes(c.Request.Context(), actorFrom(c), entity.IntakeFilter{
		Status: entity.IntakeStatus(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intakes": intakes})
}

// GET /api/intakes/:id
func (s *Server) getIntake(c *gin.Context) {
	intake, err := s.services.Intakes.GetIntake(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newIntakeView(intake))
}

// POST /api/intakes/:id/transitions
func (s *Server) transitionIntake(c *gin.Context) {
	var in service.TransitionIntakeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	intake, err := s.services.Intakes.TransitionIntake(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newIntakeView(intake))
}

// POST /api/intakes/:id/resubmit
func (s *Server) resubmitIntake(c *gin.Context) {
	var in service.ResubmitIntakeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	intake, err := s.services.Intakes.ResubmitIntake(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newIntakeView(intake))
}

// GET /api/projects
func (s *Server) listProjects(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	q.normalize()

	projects, err := s.services.Projects.ListProjects(c.Request.Context(), actorFrom(c), entity.ProjectFilter{
		ClientID: c.Query("client_id"),
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GET /api/projects/:id
func (s *Server) getProject(c *gin.Context) {
	project, err := s.services.Projects.GetProject(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// PUT /api/projects/:id/onboarding
func (s *Server) updateOnboarding(c *gin.Context) {
	var in service.UpdateOnboardingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	project, err := s.services.Projects.UpdateOnboarding(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// GET /api/projects/:id/activity
func (s *Server) projectActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := s.services.Projects.Activity(c.Request.Context(), actorFrom(c), c.Param("id"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": logs})
}

// GET /api/projects/:id/proposal
func (s *Server) getProposal(c *gin.Context) {
	proposal, err := s.services.Proposals.GetProposal(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// PUT /api/projects/:id/proposal
func (s *Server) upsertProposal(c *gin.Context) {
	var in service.UpsertProposalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	proposal, err := s.services.Proposals.UpsertProposal(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// POST /api/projects/:id/proposal/respond
func (s *Server) respondToProposal(c *gin.Context) {
	var in service.RespondToProposalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	proposal, err := s.services.Proposals.RespondToProposal(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}
