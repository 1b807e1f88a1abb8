package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"

	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/service"
)

const (
	requestIDHeader = "X-Request-ID"
	multipartMemory = 32 << 20

	// statusClientClosedRequest follows the nginx convention for a client that
	// disconnected before the response was ready.
	statusClientClosedRequest = 499
)

var errInvalidBody = errors.New("invalid request body")

type Handler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

func NewHandler(
	proctorService *service.ProctorService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		proctorService: proctorService,
		log:            log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	protected := r.Group("/api")
	protected.Use(authMiddleware)
	{
		protected.POST("/webcam/", h.analyzeWebcamFrame)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) analyzeWebcamFrame(c *gin.Context) {
	body, err := readFrameRequest(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	raw, err := service.ParseFrameRequest(body)
	if err != nil {
		h.handleError(c, err)
		return
	}

	report, err := h.proctorService.AnalyzeFrame(c.Request.Context(), raw)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header(requestIDHeader, report.RequestID)
	c.JSON(statusCode(report.Result), report.Result.Body())
}

// readFrameRequest accepts a JSON object or a form body. An empty body is an
// empty mapping, which later reads as "no image".
func readFrameRequest(c *gin.Context) (map[string]any, error) {
	switch c.ContentType() {
	case binding.MIMEMultipartPOSTForm:
		if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
			return nil, errInvalidBody
		}
		return formBody(c), nil
	case binding.MIMEPOSTForm:
		if err := c.Request.ParseForm(); err != nil {
			return nil, errInvalidBody
		}
		return formBody(c), nil
	}

	body := map[string]any{}
	if err := c.ShouldBindJSON(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, errInvalidBody
	}
	return body, nil
}

func formBody(c *gin.Context) map[string]any {
	value, ok := c.GetPostForm("image")
	if !ok {
		return map[string]any{}
	}
	return map[string]any{"image": value}
}

func statusCode(result proctor.AnalysisResult) int {
	switch result.Outcome {
	case proctor.OutcomeDecodeError:
		return http.StatusBadRequest
	case proctor.OutcomeProcessingError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, proctor.ErrNoImage),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, errInvalidBody):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrCanceled):
		h.log.Debug().Err(err).Msg("client went away")
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
