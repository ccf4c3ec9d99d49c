package backend

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"quiz-client/internal/domain"
)

const anonymousUser = "anonymous"

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type submitResponse struct {
	OK bool `json:"ok"`
	domain.Result
}

// Router wires the quiz endpoints behind CORS for browser clients.
func (h *Handler) Router(allowOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Content-Length", "Accept", "Authorization", "Origin"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	quizzes := r.Group("/api/quizzes/:id", identify)
	{
		quizzes.POST("/start", h.Start)
		quizzes.POST("/answers", h.ConfirmAnswer)
		quizzes.POST("/submit", h.Submit)
	}
	return r
}

func (h *Handler) Start(c *gin.Context) {
	quizID, ok := quizParam(c)
	if !ok {
		return
	}
	resp, err := h.service.Start(c.Request.Context(), c.GetString("userID"), quizID)
	if err != nil {
		c.JSON(statusFor(err), domain.StartResponse{OK: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ConfirmAnswer(c *gin.Context) {
	quizID, ok := quizParam(c)
	if !ok {
		return
	}
	var req domain.AnswerConfirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	req.QuizID = quizID
	if err := h.service.Confirm(c.Request.Context(), c.GetString("userID"), quizID, req); err != nil {
		c.JSON(statusFor(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Submit(c *gin.Context) {
	quizID, ok := quizParam(c)
	if !ok {
		return
	}
	var req domain.Submission
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	req.QuizID = quizID
	result, err := h.service.Submit(c.Request.Context(), c.GetString("userID"), quizID, req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, submitResponse{OK: true, Result: result})
}

// identify treats the bearer token as an opaque user identity.
func identify(c *gin.Context) {
	user := anonymousUser
	if token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); found && strings.TrimSpace(token) != "" {
		user = strings.TrimSpace(token)
	}
	c.Set("userID", user)
	c.Next()
}

func quizParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid quiz id"})
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuestionNotFound), errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
