package weighing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction tells whether the vehicle brings material in or carries it out.
// It determines which leg of a matched pair is the heavier one.
type Direction string

const (
	DirectionReceiving Direction = "RECEIVING"
	DirectionSending   Direction = "SENDING"
)

// DocumentStatus is the completion state of a shipment document.
type DocumentStatus string

const (
	StatusFirstWeight DocumentStatus = "FIRST_WEIGHT"
	StatusCompleted   DocumentStatus = "COMPLETED"
	StatusEsc         DocumentStatus = "ESC"
)

// PhotoCategory classifies captured photos once a pair is matched.
type PhotoCategory string

const (
	PhotoUncategorized PhotoCategory = "UNCATEGORIZED"
	PhotoEntry         PhotoCategory = "ENTRY"
	PhotoExit          PhotoCategory = "EXIT"
	PhotoUnstableFlow  PhotoCategory = "UNSTABLE_FLOW"
)

// WeighingEvent is one completed measurement of a vehicle at a point in time.
// Match fields are set exactly once when the event is paired; CounterpartID
// and DocumentID are either both nil or both set.
type WeighingEvent struct {
	ID            uuid.UUID       `json:"id"`
	Weight        decimal.Decimal `json:"weight"`
	Plate         string          `json:"plate,omitempty"`
	Direction     *Direction      `json:"direction,omitempty"`
	CounterpartID *uuid.UUID      `json:"counterpart_id,omitempty"`
	DocumentID    *uuid.UUID      `json:"document_id,omitempty"`
	Voided        bool            `json:"voided,omitempty"`
	Photos        []string        `json:"photos,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Matched reports whether the event has already been paired.
func (e *WeighingEvent) Matched() bool {
	return e.CounterpartID != nil || e.DocumentID != nil
}

// ShipmentDocument is the waybill formed by pairing two weighing events.
// JoinEventID references the heavier leg for Receiving and the lighter leg
// for Sending; OutEventID references the other.
type ShipmentDocument struct {
	ID          uuid.UUID       `json:"id"`
	Plate       string          `json:"plate"`
	Provider    string          `json:"provider,omitempty"`
	Direction   Direction       `json:"direction"`
	JoinEventID uuid.UUID       `json:"join_event_id"`
	OutEventID  uuid.UUID       `json:"out_event_id"`
	EntryTime   time.Time       `json:"entry_time"`
	ExitTime    time.Time       `json:"exit_time"`
	GrossWeight decimal.Decimal `json:"gross_weight"`
	TareWeight  decimal.Decimal `json:"tare_weight"`
	NetWeight   decimal.Decimal `json:"net_weight"`
	Status      DocumentStatus  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Sample is one reading from the scale.
type Sample struct {
	At     time.Time       `json:"at"`
	Weight decimal.Decimal `json:"weight"`
}

// StationPhase is the detector lifecycle state of one scale platform.
type StationPhase string

const (
	PhaseOffScale            StationPhase = "OFF_SCALE"
	PhaseWaitingForStability StationPhase = "WAITING_FOR_STABILITY"
	PhaseWeightStabilized    StationPhase = "WEIGHT_STABILIZED"
	PhaseWaitingForDeparture StationPhase = "WAITING_FOR_DEPARTURE"
)

// StatusChange is published to subscribers on every phase transition.
type StatusChange struct {
	From   StationPhase    `json:"from"`
	To     StationPhase    `json:"to"`
	Weight decimal.Decimal `json:"weight"`
	At     time.Time       `json:"at"`
}

// StationStatus is a point-in-time snapshot of the detector for polling.
// The plate fields reflect the current cycle's leading recognition guess and
// are empty while the scale is off-scale.
type StationStatus struct {
	Phase       StationPhase    `json:"phase"`
	Weight      decimal.Decimal `json:"weight"`
	PlateGuess  string          `json:"plate_guess,omitempty"`
	PlateVotes  int             `json:"plate_votes,omitempty"`
	PlateSeenAt *time.Time      `json:"plate_seen_at,omitempty"`
}
