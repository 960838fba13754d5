package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go-ultrasound-classifier/internal/config"
	apperrors "go-ultrasound-classifier/internal/errors"
	"go-ultrasound-classifier/internal/logger"
	"go-ultrasound-classifier/internal/service"
	"go-ultrasound-classifier/pkg/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// UploadField is the multipart field carrying the scan.
	UploadField = "ultrasound_image"

	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	version         = "1.0.0"
)

// NewHandler builds the HTTP API. metrics may be nil, in which case
// /metrics is not served.
func NewHandler(svc service.ClassificationService, cfg *config.Config, metrics http.Handler) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		corsMiddleware(cfg.CORSAllowedOrigins),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/", welcome)
	r.GET("/health", healthCheck)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api")
	{
		api.POST("/predict", predictUpload(svc, cfg))
		api.POST("/predict/url", predictURL(svc, cfg))

		api.GET("/confusion-matrix", confusionMatrix(svc))
		api.GET("/confusion-matrix.png", confusionMatrixReport(svc))
		api.POST("/confusion-matrix/reset", resetConfusionMatrix(svc))
		api.POST("/confusion-matrix/rebuild", rebuildConfusionMatrix(svc))

		api.GET("/predictions", listPredictions(svc))
		api.GET("/predictions/:id", getPrediction(svc))
	}

	return r
}

func welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the API"})
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func predictUpload(svc service.ClassificationService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, cfg.RequestTimeout)
		defer cancel()

		fileHeader, err := c.FormFile(UploadField)
		if err != nil {
			respondInvalid(c, apperrors.NewValidationError("No file part named "+UploadField, err))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			respondInvalid(c, apperrors.NewValidationError("Uploaded file could not be read", err))
			return
		}
		defer file.Close()

		resp, err := svc.ClassifyUpload(ctx, fileHeader.Filename, file)
		if err != nil {
			respondInvalid(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func predictURL(svc service.ClassificationService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, cfg.RequestTimeout)
		defer cancel()

		var req models.PredictURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, apperrors.NewValidationError("Invalid request format", err))
			return
		}

		resp, err := svc.ClassifyURL(ctx, req.URL)
		if err != nil {
			respondInvalid(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func confusionMatrix(svc service.ClassificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := svc.ConfusionMatrix(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, m.Response())
	}
}

func confusionMatrixReport(svc service.ClassificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, err := svc.ConfusionMatrixReport(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.File(path)
	}
}

func resetConfusionMatrix(svc service.ClassificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.ResetConfusionMatrix(c.Request.Context()); err != nil {
			_ = c.Error(err)
			return
		}
		m, err := svc.ConfusionMatrix(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, m.Response())
	}
}

func rebuildConfusionMatrix(svc service.ClassificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := svc.RebuildConfusionMatrix(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, m.Response())
	}
}

func listPredictions(svc service.ClassificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := service.DefaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				_ = c.Error(apperrors.NewValidationError("limit must be a positive integer", err))
				return
			}
			limit = n
		}

		records, err := svc.RecentPredictions(c.Request.Context(), limit)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"predictions": records, "count": len(records)})
	}
}

func getPrediction(svc service.ClassificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := svc.GetPrediction(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	return service.WithRequestID(ctx, c.GetString(requestIDKey)), cancel
}

// Middleware and helper functions

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"request_id":         c.GetString(requestIDKey),
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             c.Writer.Status(),
			"ip":                 c.ClientIP(),
			"user_agent":         c.Request.UserAgent(),
			"processing_time_ms": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func logFailure(c *gin.Context, code int, err error) {
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  c.GetString(requestIDKey),
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
}

func respondError(c *gin.Context, code int, err error) {
	logFailure(c, code, err)
	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: errorMessage(err),
	})
}

// respondInvalid answers prediction failures with the Invalid body so clients
// can always read result and percentage.
func respondInvalid(c *gin.Context, err error) {
	code := determineStatusCode(err)
	logFailure(c, code, err)

	body := models.InvalidResponse()
	body.Error = errorMessage(err)
	c.AbortWithStatusJSON(code, body)
}
