package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
)

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.authSvc.ListSchoolUsers(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *Server) CreateUser(c *gin.Context) {
	var req authdomain.CreateSchoolUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.authSvc.CreateSchoolUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) UpdateUser(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req authdomain.UpdateSchoolUserRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	req.ActorID = principal.UserID

	user, err := s.authSvc.UpdateSchoolUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) DeleteUser(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	err := s.authSvc.DeleteSchoolUser(c.Request.Context(), authdomain.DeleteSchoolUserRequest{
		ID:      c.Param("id"),
		ActorID: principal.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
