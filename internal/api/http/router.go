package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vimo-chat/vimo/internal/auth"
)

func SetupRouter(userController *UserController, chatController *ChatController, realtimeController *RealtimeController, tokens *auth.TokenService) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", userController.Register)
	authGroup.POST("/login", userController.Login)

	authorized := api.Group("", AuthRequired(tokens))
	authorized.GET("/users", userController.ListContacts)
	authorized.GET("/users/:userID", userController.GetUser)
	authorized.PATCH("/users/:userID", userController.UpdateProfile)
	authorized.GET("/presence", userController.PresenceSnapshot)
	authorized.GET("/chats/:channelID/messages", chatController.RecentMessages)

	// The socket carries its token as a query parameter, browsers cannot
	// set headers on a WebSocket upgrade.
	api.GET("/ws", realtimeController.Connect)

	return router
}
