package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы событий портальной сети
const (
	TypePortalTeleported   = "PortalTeleported"
	TypePortalExhausted    = "PortalExhausted"
	TypePortalMemberPruned = "PortalMemberPruned"
	TypePortalRejected     = "PortalRejected"
)

// Source - имя сервиса-источника событий
const Source = "portalnet"

// NodeRef - расположение узла в событиях
type NodeRef struct {
	World  string `json:"world"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
	Facing string `json:"facing"`
}

// PortalTeleported - перенос выполнен
type PortalTeleported struct {
	ChainID  int     `json:"chain_id"`
	From     NodeRef `json:"from"`
	To       NodeRef `json:"to"`
	Blocks   int     `json:"blocks"`
	Entities int     `json:"entities"`
	Players  int     `json:"players"`
	Failed   int     `json:"failed"`
}

// PortalExhausted - ни один кандидат не подошёл
type PortalExhausted struct {
	ChainID    int     `json:"chain_id"`
	From       NodeRef `json:"from"`
	Candidates int     `json:"candidates"`
}

// PortalMemberPruned - узел удалён из цепочки
type PortalMemberPruned struct {
	ChainID int     `json:"chain_id"`
	Node    NodeRef `json:"node"`
	Reason  string  `json:"reason"`
}

// PortalRejected - активация отклонена (пересечение, неверный индекс, близость)
type PortalRejected struct {
	Node   NodeRef `json:"node"`
	Reason string  `json:"reason"`
	Index  *int    `json:"index,omitempty"`
}

// NewEnvelope упаковывает полезную нагрузку в конверт с новым UUID
func NewEnvelope(eventType, correlationID string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        Source,
		EventType:     eventType,
		Version:       1,
		CorrelationID: correlationID,
		Priority:      priority,
		Payload:       data,
	}, nil
}

// Decode распаковывает полезную нагрузку конверта
func Decode[T any](ev *Envelope) (T, error) {
	var out T
	err := json.Unmarshal(ev.Payload, &out)
	return out, err
}

// Emit упаковывает и публикует событие в шину; nil-шина игнорируется
func Emit(ctx context.Context, bus EventBus, eventType, correlationID string, priority int, payload interface{}) error {
	if bus == nil {
		return nil
	}
	ev, err := NewEnvelope(eventType, correlationID, priority, payload)
	if err != nil {
		return err
	}
	return bus.Publish(ctx, ev)
}

// Причины отказа в активации
const (
	ReasonOverlapping  = "overlapping"
	ReasonInvalidIndex = "invalid_index"
	ReasonTooFar       = "too_far"
)

// EventTypes возвращает все типы событий портальной сети
func EventTypes() []string {
	return []string{TypePortalTeleported, TypePortalExhausted, TypePortalMemberPruned, TypePortalRejected}
}
