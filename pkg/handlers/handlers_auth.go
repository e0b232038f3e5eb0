package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/identity"
	"github.com/arnavshah/volunteer-portal-go/pkg/models"
)

// Register creates a volunteer (default) or coordinator account and logs it in
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = string(database.RoleVolunteer)
	}

	account, err := h.Directory.SignUp(c.Request.Context(), identity.SignUp{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.respondWithToken(c, http.StatusCreated, account)
}

// Login authenticates by username or email
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.Directory.Authenticate(c.Request.Context(), req.Identifier(), req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.respondWithToken(c, http.StatusOK, account)
}

func (h *Handler) respondWithToken(c *gin.Context, status int, account *identity.Account) {
	token, err := h.Tokens.CreateToken(account.Email, string(account.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(status, models.AuthResponse{
		Token:    token,
		Type:     "Bearer",
		ID:       account.ID,
		Name:     account.Name,
		Username: account.Username,
		Email:    account.Email,
		Role:     string(account.Role),
	})
}
