package handlers

import (
	"bytes"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"slack-code-review/services"
)

const requestIDHeader = "X-Request-ID"

// RequestID はリクエストごとにIDを振ってレスポンスヘッダーに載せる
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// VerifySlackSignature はSlackの署名を検証し、ボディを後続のハンドラのために復元する
func VerifySlackSignature(signingSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Printf("failed to read request body: %v", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		// ボディを復元
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		if !services.ValidateSlackRequest(c.Request, bodyBytes, signingSecret) {
			log.Println("invalid slack signature")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
			return
		}

		c.Next()
	}
}

// SetupRouter はルーティングを組み立てる
func SetupRouter(h *ReviewHandler, signingSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), RequestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	slackGroup := r.Group("/slack", VerifySlackSignature(signingSecret))
	slackGroup.POST("/actions", h.HandleSlackAction)
	slackGroup.POST("/commands", h.HandleSlackCommand)
	slackGroup.POST("/events", HandleSlackEvents)

	return r
}
