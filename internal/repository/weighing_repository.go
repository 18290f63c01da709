package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"weighbridge-service/internal/domain/weighing"
)

type WeighingRepository struct {
	db *gorm.DB
}

func NewWeighingRepository(db *gorm.DB) *WeighingRepository {
	return &WeighingRepository{db: db}
}

type EventRecord struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Weight        decimal.Decimal `gorm:"type:numeric(12,3);not null"`
	Plate         *string
	Direction     *string
	CounterpartID *uuid.UUID `gorm:"type:uuid"`
	DocumentID    *uuid.UUID `gorm:"type:uuid"`
	Voided        bool       `gorm:"not null;default:false"`
	Photos        datatypes.JSON
	PhotoCategory string `gorm:"not null;default:'UNCATEGORIZED'"`
	CreatedAt     time.Time
}

func (EventRecord) TableName() string { return "weighing_events" }

type DocumentRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Plate       string    `gorm:"not null"`
	Provider    *string
	Direction   string          `gorm:"not null"`
	JoinEventID uuid.UUID       `gorm:"type:uuid;not null"`
	OutEventID  uuid.UUID       `gorm:"type:uuid;not null"`
	EntryTime   time.Time       `gorm:"not null"`
	ExitTime    time.Time       `gorm:"not null"`
	GrossWeight decimal.Decimal `gorm:"type:numeric(12,3);not null"`
	TareWeight  decimal.Decimal `gorm:"type:numeric(12,3);not null"`
	NetWeight   decimal.Decimal `gorm:"type:numeric(12,3);not null"`
	Status      string          `gorm:"not null"`
	PushedAt    *time.Time
	CreatedAt   time.Time
}

func (DocumentRecord) TableName() string { return "shipment_documents" }

func (r *WeighingRepository) CreateEvent(ctx context.Context, event *weighing.WeighingEvent) error {
	rec, err := toEventRecord(event)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// UpdateEvent writes only the columns the service mutates after creation:
// plate, photos and the void flag. The match columns and the photo category
// are owned by the PairEvents transaction; updates issued from an in-memory
// snapshot taken before a concurrent match committed must not touch them.
func (r *WeighingRepository) UpdateEvent(ctx context.Context, event *weighing.WeighingEvent) error {
	updates := map[string]interface{}{
		"plate":  nil,
		"photos": nil,
		"voided": event.Voided,
	}
	if event.Plate != "" {
		updates["plate"] = event.Plate
	}
	if len(event.Photos) > 0 {
		raw, err := json.Marshal(event.Photos)
		if err != nil {
			return err
		}
		updates["photos"] = datatypes.JSON(raw)
	}
	res := r.db.WithContext(ctx).Model(&EventRecord{}).Where("id = ?", event.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return weighing.ErrNotFound
	}
	return nil
}

func (r *WeighingRepository) GetEvent(ctx context.Context, id uuid.UUID) (*weighing.WeighingEvent, error) {
	var rec EventRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, weighing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainEvent(&rec), nil
}

func (r *WeighingRepository) QueryUnmatchedEvents(ctx context.Context, plate string, since time.Time) ([]weighing.WeighingEvent, error) {
	var recs []EventRecord
	err := r.db.WithContext(ctx).
		Where("plate = ?", plate).
		Where("counterpart_id IS NULL AND document_id IS NULL").
		Where("voided = false").
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return toDomainEvents(recs), nil
}

func (r *WeighingRepository) ListEvents(ctx context.Context, plate *string, limit, offset int) ([]weighing.WeighingEvent, error) {
	query := r.db.WithContext(ctx).Model(&EventRecord{})
	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	var recs []EventRecord
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return toDomainEvents(recs), nil
}

// PairEvents is the serializing transaction boundary for matching: it creates
// the document and marks both referenced events matched in one transaction.
// Both event rows are locked first; if either was claimed by a concurrent
// match, the transaction rolls back with weighing.ErrAlreadyMatched and no
// event is mutated.
func (r *WeighingRepository) PairEvents(ctx context.Context, doc *weighing.ShipmentDocument) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var join, out EventRecord
		locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		if err := locked.Where("id = ?", doc.JoinEventID).First(&join).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return weighing.ErrNotFound
			}
			return err
		}
		if err := locked.Where("id = ?", doc.OutEventID).First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return weighing.ErrNotFound
			}
			return err
		}
		if join.CounterpartID != nil || join.DocumentID != nil ||
			out.CounterpartID != nil || out.DocumentID != nil {
			return weighing.ErrAlreadyMatched
		}

		rec := toDocumentRecord(doc)
		if err := tx.Create(rec).Error; err != nil {
			return err
		}

		direction := string(doc.Direction)
		joinUpdates := map[string]interface{}{
			"counterpart_id": out.ID,
			"document_id":    rec.ID,
			"direction":      direction,
			"photo_category": string(weighing.PhotoEntry),
		}
		outUpdates := map[string]interface{}{
			"counterpart_id": join.ID,
			"document_id":    rec.ID,
			"direction":      direction,
			"photo_category": string(weighing.PhotoExit),
		}
		if err := tx.Model(&EventRecord{}).Where("id = ?", join.ID).Updates(joinUpdates).Error; err != nil {
			return err
		}
		return tx.Model(&EventRecord{}).Where("id = ?", out.ID).Updates(outUpdates).Error
	})
}

func (r *WeighingRepository) ListDocuments(ctx context.Context, limit, offset int) ([]weighing.ShipmentDocument, error) {
	var recs []DocumentRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	docs := make([]weighing.ShipmentDocument, 0, len(recs))
	for i := range recs {
		docs = append(docs, *toDomainDocument(&recs[i]))
	}
	return docs, nil
}

func (r *WeighingRepository) GetDocument(ctx context.Context, id uuid.UUID) (*weighing.ShipmentDocument, error) {
	var rec DocumentRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, weighing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainDocument(&rec), nil
}

// UnpushedDocuments returns completed documents not yet delivered to the
// remote platform, oldest first.
func (r *WeighingRepository) UnpushedDocuments(ctx context.Context, limit int) ([]weighing.ShipmentDocument, error) {
	var recs []DocumentRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", string(weighing.StatusCompleted)).
		Where("pushed_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	docs := make([]weighing.ShipmentDocument, 0, len(recs))
	for i := range recs {
		docs = append(docs, *toDomainDocument(&recs[i]))
	}
	return docs, nil
}

func (r *WeighingRepository) MarkDocumentPushed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&DocumentRecord{}).
		Where("id = ?", id).
		Update("pushed_at", at).Error
}

func toEventRecord(event *weighing.WeighingEvent) (*EventRecord, error) {
	rec := &EventRecord{
		ID:            event.ID,
		Weight:        event.Weight,
		CounterpartID: event.CounterpartID,
		DocumentID:    event.DocumentID,
		Voided:        event.Voided,
		PhotoCategory: string(weighing.PhotoUncategorized),
		CreatedAt:     event.CreatedAt,
	}
	if event.Plate != "" {
		rec.Plate = &event.Plate
	}
	if event.Direction != nil {
		d := string(*event.Direction)
		rec.Direction = &d
	}
	if len(event.Photos) > 0 {
		raw, err := json.Marshal(event.Photos)
		if err != nil {
			return nil, err
		}
		rec.Photos = datatypes.JSON(raw)
	}
	return rec, nil
}

func toDomainEvent(rec *EventRecord) *weighing.WeighingEvent {
	event := &weighing.WeighingEvent{
		ID:            rec.ID,
		Weight:        rec.Weight,
		CounterpartID: rec.CounterpartID,
		DocumentID:    rec.DocumentID,
		Voided:        rec.Voided,
		CreatedAt:     rec.CreatedAt,
	}
	if rec.Plate != nil {
		event.Plate = *rec.Plate
	}
	if rec.Direction != nil {
		d := weighing.Direction(*rec.Direction)
		event.Direction = &d
	}
	if len(rec.Photos) > 0 {
		// Corrupt photo payloads leave the list empty rather than failing
		// the read.
		_ = json.Unmarshal(rec.Photos, &event.Photos)
	}
	return event
}

func toDomainEvents(recs []EventRecord) []weighing.WeighingEvent {
	events := make([]weighing.WeighingEvent, 0, len(recs))
	for i := range recs {
		events = append(events, *toDomainEvent(&recs[i]))
	}
	return events
}

func toDocumentRecord(doc *weighing.ShipmentDocument) *DocumentRecord {
	rec := &DocumentRecord{
		ID:          doc.ID,
		Plate:       doc.Plate,
		Direction:   string(doc.Direction),
		JoinEventID: doc.JoinEventID,
		OutEventID:  doc.OutEventID,
		EntryTime:   doc.EntryTime,
		ExitTime:    doc.ExitTime,
		GrossWeight: doc.GrossWeight,
		TareWeight:  doc.TareWeight,
		NetWeight:   doc.NetWeight,
		Status:      string(doc.Status),
		CreatedAt:   doc.CreatedAt,
	}
	if doc.Provider != "" {
		rec.Provider = &doc.Provider
	}
	return rec
}

func toDomainDocument(rec *DocumentRecord) *weighing.ShipmentDocument {
	doc := &weighing.ShipmentDocument{
		ID:          rec.ID,
		Plate:       rec.Plate,
		Direction:   weighing.Direction(rec.Direction),
		JoinEventID: rec.JoinEventID,
		OutEventID:  rec.OutEventID,
		EntryTime:   rec.EntryTime,
		ExitTime:    rec.ExitTime,
		GrossWeight: rec.GrossWeight,
		TareWeight:  rec.TareWeight,
		NetWeight:   rec.NetWeight,
		Status:      weighing.DocumentStatus(rec.Status),
		CreatedAt:   rec.CreatedAt,
	}
	if rec.Provider != nil {
		doc.Provider = *rec.Provider
	}
	return doc
}
