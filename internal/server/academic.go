package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
)

func (s *Server) GetSchool(c *gin.Context) {
	school, err := s.academicSvc.GetSchool(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": school})
}

func (s *Server) CreateSession(c *gin.Context) {
	var req academicdomain.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := s.academicSvc.CreateSession(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": session})
}

func (s *Server) ListSessions(c *gin.Context) {
	sessions, err := s.academicSvc.ListSessions(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

func (s *Server) CreateTerm(c *gin.Context) {
	var req academicdomain.CreateTermRequest
	if !bindJSON(c, &req) {
		return
	}

	term, err := s.academicSvc.CreateTerm(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": term})
}

func (s *Server) ListTerms(c *gin.Context) {
	terms, err := s.academicSvc.ListTerms(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": terms})
}

func (s *Server) CreateClass(c *gin.Context) {
	var req academicdomain.CreateClassRequest
	if !bindJSON(c, &req) {
		return
	}

	class, err := s.academicSvc.CreateClass(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": class})
}

func (s *Server) ListClasses(c *gin.Context) {
	classes, err := s.academicSvc.ListClasses(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": classes})
}

func (s *Server) CreateStudent(c *gin.Context) {
	var req academicdomain.CreateStudentRequest
	if !bindJSON(c, &req) {
		return
	}

	student, err := s.academicSvc.CreateStudent(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": student})
}

func (s *Server) UpdateStudent(c *gin.Context) {
	var req academicdomain.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")

	student, err := s.academicSvc.UpdateStudent(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": student})
}

func (s *Server) GetStudent(c *gin.Context) {
	student, err := s.academicSvc.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": student})
}

func (s *Server) ListStudents(c *gin.Context) {
	var req academicdomain.ListStudentsRequest
	if !bindQuery(c, &req) {
		return
	}

	students, err := s.academicSvc.ListStudents(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": students})
}

func (s *Server) Enroll(c *gin.Context) {
	var req academicdomain.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}

	enrollment, err := s.academicSvc.Enroll(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": enrollment})
}
