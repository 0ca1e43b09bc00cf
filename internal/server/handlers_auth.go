package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quotations/internal/apperr"
)

type credentials struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

func bindCredentials(c *gin.Context) (credentials, error) {
	var req credentials
	if err := c.ShouldBind(&req); err != nil {
		return req, apperr.Validation("username and password are required")
	}
	return req, nil
}

func (s *Server) register(c *gin.Context) {
	req, err := bindCredentials(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	user, err := s.gate.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	req, err := bindCredentials(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	tok, err := s.gate.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.gate.ListUsers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) deleteUser(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.gate.DeleteUser(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
