package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vehicle-anpr/internal/config"
	"vehicle-anpr/internal/domain/anpr"
	"vehicle-anpr/internal/service"
)

const sessionHeader = "X-Session-ID"

type Handler struct {
	anprService  *service.ANPRService
	adminService *service.AdminService
	tokens       *TokenIssuer
	config       *config.Config
	log          zerolog.Logger
}

func NewHandler(
	anprService *service.ANPRService,
	adminService *service.AdminService,
	tokens *TokenIssuer,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		anprService:  anprService,
		adminService: adminService,
		tokens:       tokens,
		config:       cfg,
		log:          log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/analyze", h.analyze)
		public.DELETE("/analyze/:session", h.abortAnalysis)
		public.GET("/regions/:code", h.resolveRegion)
		public.POST("/admin/login", h.login)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/detections", h.listDetections)
	}
}

func (h *Handler) analyze(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("image file is required"))
		return
	}

	maxBytes := h.config.Server.MaxUploadMB << 20
	if maxBytes > 0 && file.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse(fmt.Sprintf("image exceeds %d MB", h.config.Server.MaxUploadMB)))
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("cannot read image"))
		return
	}
	defer f.Close()

	photo, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("cannot read image"))
		return
	}

	debug, _ := strconv.ParseBool(c.Query("debug"))
	opts := service.AnalyzeOptions{
		SessionID: strings.TrimSpace(c.GetHeader(sessionHeader)),
		Debug:     debug,
	}

	result, err := h.anprService.Analyze(c.Request.Context(), photo, opts)
	if err != nil {
		h.handleError(c, err)
		return
	}

	status := http.StatusOK
	if result.Record != nil {
		status = http.StatusCreated
	}
	c.JSON(status, successResponse(result))
}

func (h *Handler) abortAnalysis(c *gin.Context) {
	session := strings.TrimSpace(c.Param("session"))
	if !h.anprService.Abort(session) {
		c.JSON(http.StatusNotFound, errorResponse("no analysis in progress"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}

func (h *Handler) resolveRegion(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	c.JSON(http.StatusOK, successResponse(gin.H{
		"code": strings.ToUpper(code),
		"rto":  h.anprService.ResolveRegion(code),
	}))
}

type loginRequest struct {
	AdminID  string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := h.adminService.Authenticate(c.Request.Context(), req.AdminID, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, errorResponse(err.Error()))
			return
		}
		h.handleError(c, err)
		return
	}

	token, expiresAt, err := h.tokens.Sign(req.AdminID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}))
}

func (h *Handler) listDetections(c *gin.Context) {
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	records, err := h.anprService.FindDetections(c.Request.Context(), plateQuery, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(records))
}

func (h *Handler) health(c *gin.Context) {
	region := h.anprService.RegionStatus()
	status := "ok"
	if region.LoadError != "" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"region":      region,
		"active_runs": h.anprService.ActiveRuns(),
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, anpr.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, anpr.ErrServiceUnreachable):
		c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
	case service.IsRunCancelled(err):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("session_id", c.GetHeader(sessionHeader)).
			Msg("request")
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
