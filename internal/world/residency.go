package world

import (
	"fmt"

	"github.com/annel0/portalnet/internal/vec"
)

// TicketKind - вид резервирования чанка
type TicketKind uint8

const (
	// TicketPortal держит чанк, пока кандидат проверяется и принимает перенос
	TicketPortal TicketKind = iota
	// TicketPostTeleport - короткое резервирование после переноса, истекает само
	TicketPostTeleport
)

// String возвращает имя вида
func (k TicketKind) String() string {
	switch k {
	case TicketPortal:
		return "portal"
	case TicketPostTeleport:
		return "post_teleport"
	}
	return fmt.Sprintf("ticket(%d)", uint8(k))
}

// Ticket - резервирование, не дающее хосту выгрузить чанк
type Ticket struct {
	Kind  TicketKind
	World ID
	Chunk vec.Vec2
	TTL   int // В тиках; 0 - до явного RemoveTicket
}

// Residency - подсистема загрузки чанков хоста.
// Load асинхронна: канал получает nil после загрузки или ошибку и закрывается.
type Residency interface {
	AddTicket(t Ticket)
	RemoveTicket(t Ticket)
	Load(world ID, chunk vec.Vec2) <-chan error
}
