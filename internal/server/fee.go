package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	feedomain "github.com/smallbiznis/schoolpay/internal/fee/domain"
)

func (s *Server) CreateFeeStructure(c *gin.Context) {
	var req feedomain.CreateFeeStructureRequest
	if !bindJSON(c, &req) {
		return
	}

	structure, err := s.feeSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": structure})
}

func (s *Server) GetFeeStructure(c *gin.Context) {
	structure, err := s.feeSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": structure})
}

func (s *Server) ListFeeStructures(c *gin.Context) {
	structures, err := s.feeSvc.List(c.Request.Context(), c.Query("term_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": structures})
}

func (s *Server) DeactivateFeeStructure(c *gin.Context) {
	if err := s.feeSvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
