// Package api serves stored PDF articles and published feeds over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pevans/linkfeed/feed"
	"github.com/pevans/linkfeed/logger"
	"github.com/pevans/linkfeed/store"
)

// dateLayout is the format of the date_range query parameters.
const dateLayout = "2006-01-02"

// Articles is the read side of the store.
type Articles interface {
	ListPdfs(ctx context.Context) ([]store.PdfDocument, error)
	PdfsByDateRange(ctx context.Context, start, end time.Time) ([]store.PdfDocument, error)
	PdfsBySource(ctx context.Context, sourceURL string) ([]store.PdfDocument, error)
	PdfByID(ctx context.Context, id int64) (*store.PdfDocument, error)
}

// Server is the read-only query API.
type Server struct {
	articles Articles
	feedDir  string
	log      logger.Logger
}

// NewServer creates a Server reading articles from articles and feeds from
// feedDir.
func NewServer(articles Articles, feedDir string, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{articles: articles, feedDir: feedDir, log: log}
}

// SetupRouter configures the Gin router with all routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/", s.HandleIndex)

	api := router.Group("/api")
	api.GET("/articles/date_range", s.HandleDateRange)
	api.GET("/articles", s.HandleBySource)
	api.GET("/article", s.HandleGetArticle)
	api.GET("/articles/all", s.HandleListAll)

	router.GET("/rss", s.HandleListFeeds)
	router.GET("/rss/:filename", s.HandleGetFeed)

	return router
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Handled request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(start)))
	}
}

// ArticlesResponse wraps every article list.
type ArticlesResponse struct {
	Articles []store.PdfDocument `json:"articles"`
}

// FeedsResponse is the response for GET /rss.
type FeedsResponse struct {
	Feeds []feed.Info `json:"feeds"`
}

var (
	errMissingRange = errors.New("start and end parameters are required")
	errBadDate      = errors.New("invalid date format, use YYYY-MM-DD")
	errMissingURL   = errors.New("source_url parameter is required")
	errMissingID    = errors.New("id parameter is required")
	errBadID        = errors.New("id must be an integer")
)

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Article not found"))
	case errors.Is(err, errMissingRange), errors.Is(err, errBadDate),
		errors.Is(err, errMissingURL), errors.Is(err, errMissingID), errors.Is(err, errBadID):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	default:
		s.log.Error("Database error", logger.String("path", c.Request.URL.Path), logger.Err(err))
		c.JSON(http.StatusInternalServerError, errorResponse("database_error", "Failed to query articles"))
	}
}

// HandleIndex handles GET /.
func (s *Server) HandleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "linkfeed query API",
		"endpoints": gin.H{
			"/api/articles/date_range": "Get articles by date range (start, end as YYYY-MM-DD)",
			"/api/articles":            "Get articles by source URL (source_url)",
			"/api/article":             "Get article by ID (id)",
			"/api/articles/all":        "Get all articles",
			"/rss/:filename":           "Access a specific RSS feed",
			"/rss":                     "List all RSS feeds",
		},
	})
}

// HandleDateRange handles GET /api/articles/date_range.
func (s *Server) HandleDateRange(c *gin.Context) {
	startParam := strings.TrimSpace(c.Query("start"))
	endParam := strings.TrimSpace(c.Query("end"))
	if startParam == "" || endParam == "" {
		s.handleError(c, errMissingRange)
		return
	}

	start, err := time.Parse(dateLayout, startParam)
	if err != nil {
		s.handleError(c, errBadDate)
		return
	}
	end, err := time.Parse(dateLayout, endParam)
	if err != nil {
		s.handleError(c, errBadDate)
		return
	}

	docs, err := s.articles.PdfsByDateRange(c.Request.Context(), start, end)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ArticlesResponse{Articles: docs})
}

// HandleBySource handles GET /api/articles.
func (s *Server) HandleBySource(c *gin.Context) {
	sourceURL := strings.TrimSpace(c.Query("source_url"))
	if sourceURL == "" {
		s.handleError(c, errMissingURL)
		return
	}

	docs, err := s.articles.PdfsBySource(c.Request.Context(), sourceURL)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ArticlesResponse{Articles: docs})
}

// HandleGetArticle handles GET /api/article.
func (s *Server) HandleGetArticle(c *gin.Context) {
	idParam := strings.TrimSpace(c.Query("id"))
	if idParam == "" {
		s.handleError(c, errMissingID)
		return
	}
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		s.handleError(c, errBadID)
		return
	}

	doc, err := s.articles.PdfByID(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// HandleListAll handles GET /api/articles/all.
func (s *Server) HandleListAll(c *gin.Context) {
	docs, err := s.articles.ListPdfs(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ArticlesResponse{Articles: docs})
}

// HandleListFeeds handles GET /rss.
func (s *Server) HandleListFeeds(c *gin.Context) {
	infos, err := feed.List(s.feedDir)
	if err != nil {
		s.log.Error("Error listing RSS feeds", logger.Err(err))
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Unable to list RSS feeds"))
		return
	}

	c.JSON(http.StatusOK, FeedsResponse{Feeds: infos})
}

// HandleGetFeed handles GET /rss/:filename. Only .xml files directly inside
// the feed directory are served.
func (s *Server) HandleGetFeed(c *gin.Context) {
	name := c.Param("filename")

	path, err := feed.Open(s.feedDir, name)
	if err != nil {
		if !errors.Is(err, feed.ErrInvalidName) && !errors.Is(err, os.ErrNotExist) {
			s.log.Error("Error opening RSS feed", logger.String("filename", name), logger.Err(err))
		} else {
			s.log.Warn("RSS feed not served", logger.String("filename", name), logger.Err(err))
		}
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Feed not found"))
		return
	}

	c.Header("Content-Type", "application/rss+xml")
	c.File(path)
}
