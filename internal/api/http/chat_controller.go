package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/api/http/converter"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/service"
)

type ChatController struct {
	chat         service.ChatInteractor
	historyLimit int
}

func NewChatController(chat service.ChatInteractor, historyLimit int) *ChatController {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatController{chat: chat, historyLimit: historyLimit}
}

func (c *ChatController) RecentMessages(ctx *gin.Context) {
	channelID := ctx.Param("channelID")

	callerID := ctx.MustGet(userIDKey).(uuid.UUID)
	if !domain.IsChannelMember(channelID, callerID.String()) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "not a member of this channel"})
		return
	}

	limit := c.historyLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	messages, err := c.chat.Recent(ctx.Request.Context(), channelID, limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"messages": converter.MessagesToApi(messages)})
}
