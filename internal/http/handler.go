package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"weighbridge-service/internal/domain/weighing"
	"weighbridge-service/internal/service"
	"weighbridge-service/internal/station"
)

type Handler struct {
	weighingService *service.WeighingService
	station         *station.Station
	log             zerolog.Logger
}

func NewHandler(
	weighingService *service.WeighingService,
	st *station.Station,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		weighingService: weighingService,
		station:         st,
		log:             log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Device-facing intake endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/scale/samples", h.pushSample)
		public.POST("/anpr/plates", h.pushPlate)
		public.GET("/station/status", h.stationStatus)
		public.GET("/events", h.listEvents)
		public.GET("/documents", h.listDocuments)
		public.GET("/documents/:id", h.getDocument)
	}

	// Operator endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/events/:id/candidates", h.listCandidates)
		protected.POST("/events/:id/match", h.manualMatch)
		protected.POST("/events/:id/void", h.voidEvent)
	}
}

type samplePayload struct {
	Weight decimal.Decimal `json:"weight"`
	At     time.Time       `json:"at"`
}

func (h *Handler) pushSample(c *gin.Context) {
	var payload samplePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if payload.At.IsZero() {
		payload.At = time.Now()
	}

	phase := h.station.Push(weighing.Sample{At: payload.At, Weight: payload.Weight})
	c.JSON(http.StatusAccepted, gin.H{
		"status": "ok",
		"phase":  phase,
	})
}

type platePayload struct {
	Plate string `json:"plate"`
}

func (h *Handler) pushPlate(c *gin.Context) {
	var payload platePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if strings.TrimSpace(payload.Plate) == "" {
		c.JSON(http.StatusBadRequest, errorResponse("plate is required"))
		return
	}

	h.station.ObservePlate(payload.Plate)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

func (h *Handler) stationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.station.Status())
}

func (h *Handler) listEvents(c *gin.Context) {
	var plate *string
	if p := strings.TrimSpace(c.Query("plate")); p != "" {
		plate = &p
	}
	limit, offset := paging(c)

	events, err := h.weighingService.ListEvents(c.Request.Context(), plate, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listDocuments(c *gin.Context) {
	limit, offset := paging(c)
	docs, err := h.weighingService.ListDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(docs))
}

func (h *Handler) getDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid document id"))
		return
	}
	doc, err := h.weighingService.GetDocument(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(doc))
}

func (h *Handler) listCandidates(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid event id"))
		return
	}
	direction, ok := parseDirection(c.Query("direction"))
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("direction must be RECEIVING or SENDING"))
		return
	}

	event, err := h.weighingService.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	candidates, err := h.weighingService.FindCandidates(c.Request.Context(), event, direction)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(candidates))
}

type manualMatchPayload struct {
	CounterpartID uuid.UUID `json:"counterpart_id"`
	Direction     string    `json:"direction"`
}

func (h *Handler) manualMatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid event id"))
		return
	}
	var payload manualMatchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	direction, ok := parseDirection(payload.Direction)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("direction must be RECEIVING or SENDING"))
		return
	}

	doc, err := h.weighingService.ManualMatch(c.Request.Context(), id, payload.CounterpartID, direction)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(doc))
}

func (h *Handler) voidEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid event id"))
		return
	}
	if err := h.weighingService.VoidEvent(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrCannotPair):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func parseDirection(s string) (weighing.Direction, bool) {
	switch weighing.Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case weighing.DirectionReceiving:
		return weighing.DirectionReceiving, true
	case weighing.DirectionSending:
		return weighing.DirectionSending, true
	default:
		return "", false
	}
}

func paging(c *gin.Context) (limit, offset int) {
	limit = 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset = 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
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
