package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weighbridge-service/internal/config"
	"weighbridge-service/internal/domain/weighing"
)

type memorySource struct {
	docs   map[uuid.UUID]weighing.ShipmentDocument
	pushed map[uuid.UUID]time.Time
}

func newMemorySource(docs ...weighing.ShipmentDocument) *memorySource {
	s := &memorySource{
		docs:   make(map[uuid.UUID]weighing.ShipmentDocument),
		pushed: make(map[uuid.UUID]time.Time),
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memorySource) UnpushedDocuments(ctx context.Context, limit int) ([]weighing.ShipmentDocument, error) {
	var out []weighing.ShipmentDocument
	for id, d := range s.docs {
		if _, ok := s.pushed[id]; !ok {
			out = append(out, d)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memorySource) MarkDocumentPushed(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.pushed[id] = at
	return nil
}

func testDocument() weighing.ShipmentDocument {
	return weighing.ShipmentDocument{
		ID:          uuid.New(),
		Plate:       "ABC123",
		Direction:   weighing.DirectionReceiving,
		JoinEventID: uuid.New(),
		OutEventID:  uuid.New(),
		GrossWeight: decimal.RequireFromString("25.3"),
		TareWeight:  decimal.RequireFromString("8.1"),
		NetWeight:   decimal.RequireFromString("17.2"),
		Status:      weighing.StatusCompleted,
		CreatedAt:   time.Now(),
	}
}

func TestPusherDeliversAndMarks(t *testing.T) {
	doc := testDocument()
	var received weighing.ShipmentDocument
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	source := newMemorySource(doc)
	pusher := NewPusher(source, config.PlatformConfig{
		PushURL: server.URL,
		Token:   "secret",
	}, zerolog.Nop())

	pusher.sweep(context.Background())

	assert.Equal(t, doc.ID, received.ID)
	assert.Equal(t, "Bearer secret", gotAuth)
	_, marked := source.pushed[doc.ID]
	assert.True(t, marked)
}

func TestPusherRetriesFailedDelivery(t *testing.T) {
	doc := testDocument()
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	source := newMemorySource(doc)
	pusher := NewPusher(source, config.PlatformConfig{PushURL: server.URL}, zerolog.Nop())

	pusher.sweep(context.Background())
	_, marked := source.pushed[doc.ID]
	assert.False(t, marked, "failed push must stay unmarked")

	pusher.sweep(context.Background())
	_, marked = source.pushed[doc.ID]
	assert.True(t, marked, "next sweep retries")
	assert.Equal(t, 2, attempts)
}
