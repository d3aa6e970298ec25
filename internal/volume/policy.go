package volume

import (
	"fmt"
	"strings"
)

// Mode определяет, что происходит с источником при захвате
type Mode uint8

const (
	// Copy оставляет источник нетронутым
	Copy Mode = iota
	// Cut очищает блоки и удаляет захваченные сущности источника
	Cut
)

// PlayerMode определяет, переносятся ли игроки
type PlayerMode uint8

const (
	// IncludePlayers перемещает игроков из объёма вместе с содержимым
	IncludePlayers PlayerMode = iota
	// ExcludePlayers оставляет игроков на месте
	ExcludePlayers
)

// Policy - единая настройка переноса
type Policy struct {
	Mode    Mode
	Players PlayerMode
}

// DefaultPolicy - перенос с вырезанием вместе с игроками
var DefaultPolicy = Policy{Mode: Cut, Players: IncludePlayers}

// String возвращает имя режима
func (m Mode) String() string {
	if m == Cut {
		return "cut"
	}
	return "copy"
}

// String возвращает имя режима игроков
func (m PlayerMode) String() string {
	if m == ExcludePlayers {
		return "exclude"
	}
	return "include"
}

// String возвращает политику в виде "cut/include"
func (p Policy) String() string {
	return p.Mode.String() + "/" + p.Players.String()
}

// ParsePolicy разбирает режимы из конфигурации ("copy"|"cut", "include"|"exclude")
func ParsePolicy(mode, players string) (Policy, error) {
	var p Policy
	switch strings.ToLower(mode) {
	case "", "cut":
		p.Mode = Cut
	case "copy":
		p.Mode = Copy
	default:
		return p, fmt.Errorf("unknown transfer mode %q", mode)
	}
	switch strings.ToLower(players) {
	case "", "include":
		p.Players = IncludePlayers
	case "exclude":
		p.Players = ExcludePlayers
	default:
		return p, fmt.Errorf("unknown player mode %q", players)
	}
	return p, nil
}
