package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// app bundles the wired collaborators behind the HTTP handlers.
type app struct {
	cfg         *Config
	store       *Store
	council     *Council
	scoresCache *ScoresCache
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := NewOpenRouterClient(cfg.OpenRouterAPIURL, cfg.OpenRouterAPIKey)

	a := &app{
		cfg:         cfg,
		store:       NewStore(cfg.DataDir),
		council:     NewCouncil(client, cfg.ModelConfig()),
		scoresCache: NewScoresCache(cfg.ScoresCacheTTL),
	}

	router := a.newRouter()

	log.Printf("Starting Model Council backend on port %d...", cfg.Port)
	if err := router.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// newRouter builds the Gin router with middleware and all routes.
func (a *app) newRouter() *gin.Engine {
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	// CORS middleware with dynamic origin validation
	allowedOrigins := a.cfg.CORSAllowedOrigins
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// In production, use environment-configured origins
			if len(allowedOrigins) > 0 && allowedOrigins[0] != "" {
				for _, allowedOrigin := range allowedOrigins {
					if origin == allowedOrigin {
						return true
					}
				}
				return false
			}
			// In development, allow any localhost/127.0.0.1 origin
			return len(origin) > 0 && (len(origin) >= 16 && origin[:16] == "http://localhost" ||
				len(origin) >= 14 && origin[:14] == "http://127.0.0")
		},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	router.GET("/", a.healthCheck)
	router.GET("/api/conversations", a.listConversationsHandler)
	router.POST("/api/conversations", a.createConversationHandler)
	router.GET("/api/conversations/:id", a.getConversationHandler)
	router.POST("/api/conversations/:id/archive", a.archiveConversationHandler)
	router.DELETE("/api/conversations/:id", a.deleteConversationHandler)
	router.POST("/api/conversations/:id/message", a.sendMessageHandler)
	router.POST("/api/conversations/:id/message/stream", a.sendMessageStreamHandler)
	router.GET("/api/scores", a.getScoresHandler)
	router.POST("/api/fetch-url", a.fetchURLHandler)

	return router
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func (a *app) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "Model Council API",
	})
}

// listConversationsHandler lists all conversations with metadata only.
// GET /api/conversations - Returns conversation metadata sorted by date.
// Query params: ?include_archived=true
func (a *app) listConversationsHandler(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "true"

	conversations, err := a.store.ListConversations(includeArchived)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversationHandler creates a new conversation.
// POST /api/conversations - Generates a new UUID and creates an empty conversation.
func (a *app) createConversationHandler(c *gin.Context) {
	conversationID := uuid.New().String()

	conversation, err := a.store.CreateConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversationHandler gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func (a *app) getConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	conversation, err := a.store.GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}

	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// archiveConversationHandler archives or unarchives a conversation.
// POST /api/conversations/:id/archive - Body: {"archived": true|false}
func (a *app) archiveConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request ArchiveRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if err := a.store.ArchiveConversation(conversationID, *request.Archived); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to archive conversation: %v", err),
		})
		return
	}

	// Archived conversations drop out of the leaderboard
	a.scoresCache.Clear()

	c.JSON(http.StatusOK, gin.H{"id": conversationID, "archived": *request.Archived})
}

// deleteConversationHandler permanently deletes a conversation.
// DELETE /api/conversations/:id
func (a *app) deleteConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	if err := a.store.DeleteConversation(conversationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to delete conversation: %v", err),
		})
		return
	}

	a.scoresCache.Clear()

	c.JSON(http.StatusOK, gin.H{"id": conversationID, "deleted": true})
}

// sendMessageHandler sends a message and runs the 3-stage council process.
// POST /api/conversations/:id/message - Runs full council and returns all stages at once.
// Use sendMessageStreamHandler for the SSE streaming version.
func (a *app) sendMessageHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := a.store.GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	history, err := a.store.History(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to load conversation history: %v", err),
		})
		return
	}
	isFirstMessage := len(history) == 0

	if err := a.store.AddUserMessage(conversationID, request.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add user message: %v", err),
		})
		return
	}

	// Generate title if first message (run in background)
	if isFirstMessage {
		go func() {
			title, err := a.council.GenerateConversationTitle(context.Background(), request.Content)
			if err != nil {
				log.Printf("Failed to generate title: %v", err)
				title = DefaultConversationTitle
			}
			if err := a.store.UpdateConversationTitle(conversationID, title); err != nil {
				log.Printf("Failed to update conversation title: %v", err)
			}
		}()
	}

	result := a.council.RunFullCouncil(c.Request.Context(), history, request.Content, request.CouncilOptions())

	if err := a.store.AddAssistantMessage(conversationID, result.Stage1, result.Stage2, result.Stage3); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add assistant message: %v", err),
		})
		return
	}

	a.scoresCache.Clear()

	c.JSON(http.StatusOK, SendMessageResponse{
		Stage1:   result.Stage1,
		Stage2:   result.Stage2,
		Stage3:   result.Stage3,
		Metadata: result.Metadata,
	})
}

// sseSink frames events as Server-Sent Events on a Gin response writer.
type sseSink struct {
	c *gin.Context
}

func (s sseSink) Send(event Event) error {
	payload, err := MarshalEvent(event)
	if err != nil {
		return err
	}
	if _, err := s.c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", payload)); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

// sendMessageStreamHandler sends a message and streams the 3-stage council process via SSE.
// POST /api/conversations/:id/message/stream - Streams progress events as each stage completes.
// Events: stage1_start, stage1_complete, stage2_start, stage2_complete, stage3_start,
// stage3_complete, title_complete (first message only), complete.
func (a *app) sendMessageStreamHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := a.store.GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	err = StreamDeliberation(c.Request.Context(), a.council, a.store, conversationID, request.Content, request.CouncilOptions(), sseSink{c})
	if err != nil {
		log.Printf("Deliberation for conversation %s failed: %v", conversationID, err)
		return
	}

	a.scoresCache.Clear()
}

// getScoresHandler returns the historical model leaderboard.
// GET /api/scores - Recomputes from stored rankings, with TTL caching.
// Query params: ?refresh=true (force recomputation)
func (a *app) getScoresHandler(c *gin.Context) {
	forceRefresh := c.Query("refresh") == "true"

	if !forceRefresh {
		if board, ok := a.scoresCache.Get(); ok {
			c.JSON(http.StatusOK, board)
			return
		}
	}

	board, err := ComputeModelScores(a.store)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to compute scores: %v", err),
		})
		return
	}

	a.scoresCache.Set(board)

	c.JSON(http.StatusOK, board)
}

// fetchURLHandler fetches and extracts readable content from a given URL,
// for attaching page context to a council question.
// POST /api/fetch-url - Body: {"url": "https://..."}
func (a *app) fetchURLHandler(c *gin.Context) {
	var request struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	content, err := FetchURLContent(c.Request.Context(), request.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": content,
	})
}
