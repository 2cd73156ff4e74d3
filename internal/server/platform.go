package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
)

func (s *Server) CreateSchool(c *gin.Context) {
	var req academicdomain.CreateSchoolRequest
	if !bindJSON(c, &req) {
		return
	}

	school, err := s.academicSvc.CreateSchool(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": school})
}

func (s *Server) CreateSchoolUser(c *gin.Context) {
	schoolID, ok := targetSchoolParam(c)
	if !ok {
		return
	}
	var req authdomain.CreateSchoolUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.authSvc.CreateUser(c.Request.Context(), authdomain.CreateUserRequest{
		SchoolID: &schoolID,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) ActivateSchool(c *gin.Context) {
	s.setSubscription(c, academicdomain.SubscriptionActive)
}

// SuspendSchool blocks invoice generation and payment recording for the
// school. Staff can still sign in and read.
func (s *Server) SuspendSchool(c *gin.Context) {
	s.setSubscription(c, academicdomain.SubscriptionSuspended)
}

func (s *Server) setSubscription(c *gin.Context, status academicdomain.SubscriptionStatus) {
	target, ok := s.platformTarget(c)
	if !ok {
		return
	}

	school, err := s.academicSvc.SetSubscriptionStatus(c.Request.Context(), target, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": school})
}

func (s *Server) ListPlatformCharges(c *gin.Context) {
	target, ok := s.platformTarget(c)
	if !ok {
		return
	}

	charges, err := s.platformSvc.List(c.Request.Context(), target)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": charges})
}

func (s *Server) MarkPlatformChargePaid(c *gin.Context) {
	target, ok := s.platformTarget(c)
	if !ok {
		return
	}

	charge, err := s.platformSvc.MarkPaid(c.Request.Context(), target, c.Param("charge_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": charge})
}

// platformTarget builds the cross-tenant target from the explicit school in
// the path. It is the only way a platform admin reaches another school.
func (s *Server) platformTarget(c *gin.Context) (tenancy.PlatformTarget, bool) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return tenancy.PlatformTarget{}, false
	}
	schoolID, ok := targetSchoolParam(c)
	if !ok {
		return tenancy.PlatformTarget{}, false
	}
	target, err := tenancy.NewPlatformTarget(principal.IsPlatformAdmin, schoolID)
	if err != nil {
		AbortWithError(c, err)
		return tenancy.PlatformTarget{}, false
	}
	return target, true
}

func targetSchoolParam(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("school_id"))
	if raw == "" {
		AbortWithError(c, tenancy.ErrMissingTargetSchool)
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("school_id", "invalid_id", "invalid school_id"))
		return 0, false
	}
	return id, true
}
