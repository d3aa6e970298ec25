package sequencer

import (
	"errors"
	"fmt"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/volume"
)

var (
	// ErrNotAPortal - на месте активации нет узла
	ErrNotAPortal = errors.New("not a portal")
	// ErrOverlapping - безопасный объём узла пересекается с другим членом цепочки
	ErrOverlapping = errors.New("portal overlaps another member of its chain")
	// ErrInvalidIndex - явный индекс цели вне диапазона
	ErrInvalidIndex = errors.New("invalid target index")
	// ErrNoValidDestination - все кандидаты отпали
	ErrNoValidDestination = errors.New("no valid destination")
)

// Status - итог активации
type Status uint8

const (
	StatusNotAPortal Status = iota
	StatusOverlapping
	StatusInvalidIndex
	StatusTeleported
	StatusNoValidDestination
)

var statusNames = [...]string{"not_a_portal", "overlapping", "invalid_index", "teleported", "no_valid_destination"}

// String возвращает имя статуса (используется как метка метрик)
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Outcome - результат одной активации
type Outcome struct {
	Status        Status
	Node          chain.NodeLocation
	ChainID       int // -1, если цепочка не определена
	Destination   chain.NodeLocation
	Index         *int
	Candidates    int
	Pruned        []chain.NodeLocation
	Transfer      volume.Report
	CorrelationID string
}

// Err возвращает ошибку-маркер для неуспешных исходов
func (o Outcome) Err() error {
	switch o.Status {
	case StatusTeleported:
		return nil
	case StatusNotAPortal:
		return ErrNotAPortal
	case StatusOverlapping:
		return fmt.Errorf("%w: %s", ErrOverlapping, o.Node)
	case StatusInvalidIndex:
		if o.Index != nil {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, *o.Index)
		}
		return ErrInvalidIndex
	case StatusNoValidDestination:
		return ErrNoValidDestination
	}
	return fmt.Errorf("unknown outcome %s", o.Status)
}
