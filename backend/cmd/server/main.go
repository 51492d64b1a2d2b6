package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"prompt-lineage/backend/internal/embeddings"
	"prompt-lineage/backend/internal/lineage"
	"prompt-lineage/backend/internal/service"
	"prompt-lineage/backend/internal/similarity"
	"prompt-lineage/backend/internal/store"
	"prompt-lineage/backend/pkg/config"
	"prompt-lineage/backend/pkg/errors"
	"prompt-lineage/backend/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting lineage API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver for the memory-graph backing store
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Initialize dependencies
	backing := store.NewNeo4jStore(driver)
	recorder := store.NewRecorder(backing, cfg.StoreMaxRetries, cfg.StoreRetryDelay)

	var embedder service.Embedder
	if cfg.EmbeddingsURL != "" {
		embedder = embeddings.NewAdapter(cfg.EmbeddingsURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel)
	}

	svc := service.NewService(backing, recorder, embedder, service.Options{
		Weights: similarity.Weights{
			Semantic:       cfg.SemanticWeight,
			TokenOverlap:   cfg.TokenWeight,
			EditSimilarity: cfg.EditWeight,
		},
		Thresholds: lineage.Thresholds{
			RefineTokenOverlap: cfg.RefineTokenThreshold,
			EvolveSemantic:     cfg.EvolveSemanticThreshold,
		},
		DedupByHash:     cfg.DedupByHash,
		MaxContentBytes: cfg.MaxContentBytes,
		AuditReads:      cfg.AuditReads,
	})

	// Cold start: the backing store is the source of truth
	if err := svc.Rehydrate(ctx); err != nil {
		log.Fatal("Failed to rehydrate lineage graph", zap.Error(err))
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		registerRoutes(api, svc, log)
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Persist the graph before exit
	if err := svc.Flush(shutdownCtx); err != nil {
		log.Error("Failed to flush lineage graph", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func registerRoutes(api *gin.RouterGroup, svc *service.Service, log *zap.Logger) {
	// Register a root version (start of a lineage)
	api.POST("/versions", func(c *gin.Context) {
		var req struct {
			Content  string                  `json:"content" binding:"required"`
			Metadata []lineage.MetadataEntry `json:"metadata"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		version, err := svc.RegisterRoot(c.Request.Context(), req.Content, req.Metadata)
		if err != nil {
			respondError(c, log, "Failed to register version", err)
			return
		}
		c.JSON(http.StatusCreated, version)
	})

	// Track an evolution from a parent version
	api.POST("/evolutions", func(c *gin.Context) {
		var req struct {
			ParentID  string                  `json:"parent_id" binding:"required"`
			Content   string                  `json:"content" binding:"required"`
			Metadata  []lineage.MetadataEntry `json:"metadata"`
			SessionID string                  `json:"session_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := svc.Track(c.Request.Context(), service.TrackRequest{
			ParentID:  lineage.NodeID(req.ParentID),
			Content:   req.Content,
			Metadata:  req.Metadata,
			SessionID: req.SessionID,
		})
		if err != nil {
			respondError(c, log, "Failed to track evolution", err)
			return
		}
		c.JSON(http.StatusCreated, result)
	})

	// Inspect a node and its direct neighbors
	api.GET("/nodes/:id", func(c *gin.Context) {
		result, err := svc.Inspect(c.Request.Context(), lineage.NodeID(c.Param("id")))
		if err != nil {
			respondError(c, log, "Failed to inspect node", err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Retrieve the lineage subgraph around a node
	api.GET("/nodes/:id/lineage", func(c *gin.Context) {
		depth, err := strconv.Atoi(c.DefaultQuery("depth", "3"))
		if err != nil || depth < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a non-negative integer"})
			return
		}

		result, err := svc.Retrieve(c.Request.Context(), lineage.NodeID(c.Param("id")), depth)
		if err != nil {
			respondError(c, log, "Failed to retrieve lineage", err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Replay the scoring decisions around a node
	api.GET("/nodes/:id/replay", func(c *gin.Context) {
		direction := lineage.ReplayDirection(c.DefaultQuery("direction", "ancestors"))
		verbose := c.Query("verbose") == "true"

		steps, err := svc.Replay(c.Request.Context(), lineage.NodeID(c.Param("id")), direction, verbose)
		if err != nil {
			respondError(c, log, "Failed to replay lineage", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"steps": steps})
	})

	// Compare two versions without creating an edge
	api.POST("/compare", func(c *gin.Context) {
		var req struct {
			FirstID     string `json:"first_id" binding:"required"`
			SecondID    string `json:"second_id" binding:"required"`
			SuggestKind bool   `json:"suggest_kind"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := svc.Compare(c.Request.Context(),
			lineage.NodeID(req.FirstID), lineage.NodeID(req.SecondID), req.SuggestKind)
		if err != nil {
			respondError(c, log, "Failed to compare versions", err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Rank versions similar to a node or raw content
	api.POST("/similar", func(c *gin.Context) {
		var req struct {
			Query     string  `json:"query" binding:"required"`
			Threshold float64 `json:"threshold"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		matches, err := svc.Similar(c.Request.Context(), req.Query, req.Threshold)
		if err != nil {
			respondError(c, log, "Failed to find similar versions", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"matches": matches})
	})

	// Query the decision-event audit trail
	api.GET("/decisions", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		records, err := svc.DecisionEvents(c.Request.Context(), store.Filter{
			SessionID:  c.Query("session_id"),
			DecisionID: c.Query("decision_id"),
			Limit:      limit,
		})
		if err != nil {
			respondError(c, log, "Failed to query decision events", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})
}

// respondError maps engine errors to HTTP statuses
func respondError(c *gin.Context, log *zap.Logger, message string, err error) {
	switch err.(type) {
	case *errors.ErrNodeNotFound, *errors.ErrRecordNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case *errors.ErrInvalidInput, *errors.ErrBackwardEdge:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case *errors.ErrDuplicateNode, *errors.ErrDuplicateEdge:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
