package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weighbridge-service/internal/config"
	"weighbridge-service/internal/domain/weighing"
	"weighbridge-service/internal/service"
	"weighbridge-service/internal/station"
	"weighbridge-service/internal/worker"
)

const testSecret = "test-secret"

type memoryStore struct {
	events map[uuid.UUID]*weighing.WeighingEvent
	docs   map[uuid.UUID]*weighing.ShipmentDocument
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events: make(map[uuid.UUID]*weighing.WeighingEvent),
		docs:   make(map[uuid.UUID]*weighing.ShipmentDocument),
	}
}

func (m *memoryStore) CreateEvent(ctx context.Context, e *weighing.WeighingEvent) error {
	c := *e
	m.events[e.ID] = &c
	return nil
}

func (m *memoryStore) UpdateEvent(ctx context.Context, e *weighing.WeighingEvent) error {
	stored, ok := m.events[e.ID]
	if !ok {
		return weighing.ErrNotFound
	}
	stored.Plate = e.Plate
	stored.Photos = append([]string(nil), e.Photos...)
	stored.Voided = e.Voided
	return nil
}

func (m *memoryStore) GetEvent(ctx context.Context, id uuid.UUID) (*weighing.WeighingEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, weighing.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (m *memoryStore) QueryUnmatchedEvents(ctx context.Context, plate string, since time.Time) ([]weighing.WeighingEvent, error) {
	var out []weighing.WeighingEvent
	for _, e := range m.events {
		if e.Plate == plate && !e.Matched() && !e.Voided && !e.CreatedAt.Before(since) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memoryStore) ListEvents(ctx context.Context, plate *string, limit, offset int) ([]weighing.WeighingEvent, error) {
	var out []weighing.WeighingEvent
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, nil
}

func (m *memoryStore) PairEvents(ctx context.Context, doc *weighing.ShipmentDocument) error {
	join, out := m.events[doc.JoinEventID], m.events[doc.OutEventID]
	if join == nil || out == nil {
		return weighing.ErrNotFound
	}
	if join.Matched() || out.Matched() {
		return weighing.ErrAlreadyMatched
	}
	c := *doc
	m.docs[doc.ID] = &c
	docID := doc.ID
	join.CounterpartID, join.DocumentID = &out.ID, &docID
	out.CounterpartID, out.DocumentID = &join.ID, &docID
	return nil
}

func (m *memoryStore) ListDocuments(ctx context.Context, limit, offset int) ([]weighing.ShipmentDocument, error) {
	var out []weighing.ShipmentDocument
	for _, d := range m.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (m *memoryStore) GetDocument(ctx context.Context, id uuid.UUID) (*weighing.ShipmentDocument, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, weighing.ErrNotFound
	}
	c := *d
	return &c, nil
}

type nopCapturer struct{}

func (nopCapturer) CaptureAll(ctx context.Context, reason string) ([]string, error) {
	return nil, nil
}

func setupRouter(t *testing.T, store *memoryStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	matching := config.MatchingConfig{
		MaxInterval:    300 * time.Minute,
		MinWeightDelta: decimal.RequireFromString("1"),
		ReceivingFirst: true,
	}
	svc := service.NewWeighingService(store, nopCapturer{}, matching, zerolog.Nop())

	pool := worker.NewPool(1, 8, zerolog.Nop())
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	st := station.New(config.StationConfig{
		MinWeight:          decimal.RequireFromString("0.5"),
		StabilityTolerance: decimal.RequireFromString("0.1"),
		StabilityWindow:    10 * time.Second,
		SampleInterval:     300 * time.Millisecond,
		MinWindowFill:      0.8,
	}, svc, pool, zerolog.Nop())

	router := gin.New()
	handler := NewHandler(svc, st, zerolog.Nop())
	handler.Register(router, AuthMiddleware(testSecret))
	return router
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPushSampleReportsPhase(t *testing.T) {
	router := setupRouter(t, newMemoryStore())

	rec := doJSON(router, http.MethodPost, "/api/v1/scale/samples", "", gin.H{"weight": "12.3"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Phase weighing.StationPhase `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, weighing.PhaseWaitingForStability, resp.Phase)
}

func TestStationStatusEndpoint(t *testing.T) {
	router := setupRouter(t, newMemoryStore())
	rec := doJSON(router, http.MethodGet, "/api/v1/station/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(weighing.PhaseOffScale))
}

func TestManualMatchRequiresAuth(t *testing.T) {
	router := setupRouter(t, newMemoryStore())
	rec := doJSON(router, http.MethodPost, "/api/v1/events/"+uuid.NewString()+"/match", "",
		gin.H{"counterpart_id": uuid.NewString(), "direction": "RECEIVING"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestManualMatchEndToEnd(t *testing.T) {
	store := newMemoryStore()
	router := setupRouter(t, store)
	t0 := time.Now().Add(-time.Hour)

	heavy := &weighing.WeighingEvent{
		ID: uuid.New(), Plate: "ABC123",
		Weight: decimal.RequireFromString("25.3"), CreatedAt: t0,
	}
	light := &weighing.WeighingEvent{
		ID: uuid.New(), Plate: "ABC123",
		Weight: decimal.RequireFromString("8.1"), CreatedAt: t0.Add(40 * time.Minute),
	}
	require.NoError(t, store.CreateEvent(context.Background(), heavy))
	require.NoError(t, store.CreateEvent(context.Background(), light))

	token := operatorToken(t)
	rec := doJSON(router, http.MethodPost, "/api/v1/events/"+light.ID.String()+"/match", token,
		gin.H{"counterpart_id": heavy.ID, "direction": "RECEIVING"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Repeating the same pair must be rejected as a conflict.
	rec = doJSON(router, http.MethodPost, "/api/v1/events/"+light.ID.String()+"/match", token,
		gin.H{"counterpart_id": heavy.ID, "direction": "RECEIVING"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVoidUnknownEventReturnsNotFound(t *testing.T) {
	router := setupRouter(t, newMemoryStore())
	rec := doJSON(router, http.MethodPost, "/api/v1/events/"+uuid.NewString()+"/void",
		operatorToken(t), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
