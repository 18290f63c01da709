package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"weighbridge-service/internal/domain/weighing"
)

func newTestRepository(t *testing.T) (*WeighingRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&EventRecord{}, &DocumentRecord{}))
	return NewWeighingRepository(db), db
}

func createTestEvent(t *testing.T, repo *WeighingRepository, plate, weight string, at time.Time) *weighing.WeighingEvent {
	t.Helper()
	event := &weighing.WeighingEvent{
		ID:        uuid.New(),
		Weight:    decimal.RequireFromString(weight),
		Plate:     plate,
		CreatedAt: at,
	}
	require.NoError(t, repo.CreateEvent(context.Background(), event))
	return event
}

func TestUpdateEventDoesNotTouchMatchColumns(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	event := createTestEvent(t, repo, "ABC123", "25.3", time.Now().Add(-time.Hour))
	stale, err := repo.GetEvent(ctx, event.ID)
	require.NoError(t, err)

	// A concurrent match commits while the caller still holds the unmatched
	// snapshot.
	counterpartID, documentID := uuid.New(), uuid.New()
	require.NoError(t, db.Model(&EventRecord{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
		"counterpart_id": counterpartID,
		"document_id":    documentID,
		"direction":      string(weighing.DirectionReceiving),
		"photo_category": string(weighing.PhotoEntry),
	}).Error)

	stale.Plate = "XYZ789"
	require.NoError(t, repo.UpdateEvent(ctx, stale))

	fresh, err := repo.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "XYZ789", fresh.Plate)
	require.NotNil(t, fresh.CounterpartID, "match reference must survive the stale update")
	require.NotNil(t, fresh.DocumentID)
	assert.Equal(t, counterpartID, *fresh.CounterpartID)
	assert.Equal(t, documentID, *fresh.DocumentID)

	var rec EventRecord
	require.NoError(t, db.Where("id = ?", event.ID).First(&rec).Error)
	assert.Equal(t, string(weighing.PhotoEntry), rec.PhotoCategory)
}

func TestUpdateEventWritesMutableColumns(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	event := createTestEvent(t, repo, "ABC123", "25.3", time.Now().Add(-time.Hour))
	event.Photos = []string{"photos/1.jpg", "photos/2.jpg"}
	event.Voided = true
	require.NoError(t, repo.UpdateEvent(ctx, event))

	fresh, err := repo.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"photos/1.jpg", "photos/2.jpg"}, fresh.Photos)
	assert.True(t, fresh.Voided)
	assert.Equal(t, "ABC123", fresh.Plate)
	assert.True(t, fresh.Weight.Equal(event.Weight))
}

func TestUpdateEventUnknownEvent(t *testing.T) {
	repo, _ := newTestRepository(t)
	err := repo.UpdateEvent(context.Background(), &weighing.WeighingEvent{ID: uuid.New(), Plate: "ABC123"})
	assert.ErrorIs(t, err, weighing.ErrNotFound)
}
