package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/api/http/converter"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/internal/service"
)

type UserController struct {
	users    service.UserInteractor
	presence service.PresenceInteractor
}

func NewUserController(users service.UserInteractor, presence service.PresenceInteractor) *UserController {
	return &UserController{users: users, presence: presence}
}

func (c *UserController) Register(ctx *gin.Context) {
	type request struct {
		DisplayName string `json:"display_name" binding:"required"`
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, token, err := c.users.Register(ctx.Request.Context(), req.DisplayName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserEmailExists) {
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"user": converter.UserToApi(user), "token": token})
}

func (c *UserController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, token, err := c.users.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": converter.UserToApi(user), "token": token})
}

func (c *UserController) GetUser(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := c.users.GetUser(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": converter.UserToApi(user)})
}

func (c *UserController) UpdateProfile(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	callerID := ctx.MustGet(userIDKey).(uuid.UUID)
	if callerID != id {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "cannot edit another user's profile"})
		return
	}

	type request struct {
		DisplayName string `json:"display_name"`
		PhotoURL    string `json:"photo_url"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := c.users.UpdateProfile(ctx.Request.Context(), id, req.DisplayName, req.PhotoURL)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": converter.UserToApi(user)})
}

func (c *UserController) ListContacts(ctx *gin.Context) {
	callerID := ctx.MustGet(userIDKey).(uuid.UUID)

	users, err := c.users.ListContacts(ctx.Request.Context(), callerID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	contacts := make([]converter.UserResponse, 0, len(users))
	for _, user := range users {
		resp := converter.UserToApi(user)
		resp.Presence = string(c.presence.State(user.ID))
		contacts = append(contacts, resp)
	}

	ctx.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

func (c *UserController) PresenceSnapshot(ctx *gin.Context) {
	records, err := c.presence.Snapshot(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"presence": converter.PresenceToApi(records)})
}
