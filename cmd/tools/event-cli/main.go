package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/annel0/portalnet/internal/eventbus"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05"
)

func main() {
	var (
		natsURL    = flag.String("url", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", "PORTALS", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 - until interrupted)")
		raw        = flag.Bool("json", false, "Print raw JSON payloads")
	)
	flag.Parse()

	if *command == "types" {
		showTypes(os.Stdout)
		return
	}
	if *command != "tail" && *command != "stats" {
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	filter := eventbus.Filter{Types: parseStringList(*eventTypes)}
	t := newTail(os.Stdout, *limit, *raw, *command == "stats", cancel)

	sub, err := bus.Subscribe(ctx, filter, t.handle)
	if err != nil {
		log.Fatalf("❌ Subscribe failed: %v", err)
	}
	fmt.Printf("🎬 Tailing %s on %s (types: %v)\n", *stream, *natsURL, filter.Types)

	<-ctx.Done()
	sub.Unsubscribe()
	t.summary()
}

// tail печатает события и считает их по типам
type tail struct {
	mu     sync.Mutex
	out    io.Writer
	limit  int
	raw    bool
	quiet  bool
	stop   func()
	total  int
	byType map[string]int
}

func newTail(out io.Writer, limit int, raw, quiet bool, stop func()) *tail {
	return &tail{out: out, limit: limit, raw: raw, quiet: quiet, stop: stop, byType: make(map[string]int)}
}

func (t *tail) handle(_ context.Context, ev *eventbus.Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit > 0 && t.total >= t.limit {
		return
	}
	t.total++
	t.byType[ev.EventType]++
	if !t.quiet {
		printEvent(t.out, ev, t.raw)
	}
	if t.limit > 0 && t.total >= t.limit {
		t.stop()
	}
}

func (t *tail) summary() {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n📊 Total events: %d\n", t.total)
	for _, typ := range eventbus.EventTypes() {
		if n := t.byType[typ]; n > 0 {
			fmt.Fprintf(t.out, "  %s: %d events\n", typ, n)
		}
	}
}

// showTypes выводит известные типы событий
func showTypes(out io.Writer) {
	fmt.Fprintln(out, "📋 Available event types")
	for _, typ := range eventbus.EventTypes() {
		fmt.Fprintf(out, "  %s\n", typ)
	}
}

// printEvent выводит событие в читаемом формате
func printEvent(out io.Writer, ev *eventbus.Envelope, raw bool) {
	fmt.Fprintf(out, "[%s] %s [%s] corr=%s\n", ev.Timestamp.Format(timeFormat), ev.EventType, ev.ID, ev.CorrelationID)
	if raw {
		fmt.Fprintf(out, "  %s\n", ev.Payload)
		return
	}

	// Добавляем детали в зависимости от типа события
	switch ev.EventType {
	case eventbus.TypePortalTeleported:
		if e, err := eventbus.Decode[eventbus.PortalTeleported](ev); err == nil {
			fmt.Fprintf(out, "  Chain %d: %s -> %s, blocks=%d entities=%d players=%d failed=%d\n",
				e.ChainID, formatNode(e.From), formatNode(e.To), e.Blocks, e.Entities, e.Players, e.Failed)
		}
	case eventbus.TypePortalExhausted:
		if e, err := eventbus.Decode[eventbus.PortalExhausted](ev); err == nil {
			fmt.Fprintf(out, "  Chain %d: %s, candidates=%d\n", e.ChainID, formatNode(e.From), e.Candidates)
		}
	case eventbus.TypePortalMemberPruned:
		if e, err := eventbus.Decode[eventbus.PortalMemberPruned](ev); err == nil {
			fmt.Fprintf(out, "  Chain %d: %s (%s)\n", e.ChainID, formatNode(e.Node), e.Reason)
		}
	case eventbus.TypePortalRejected:
		if e, err := eventbus.Decode[eventbus.PortalRejected](ev); err == nil {
			index := "-"
			if e.Index != nil {
				index = fmt.Sprint(*e.Index)
			}
			fmt.Fprintf(out, "  %s (%s) index=%s\n", formatNode(e.Node), e.Reason, index)
		}
	default:
		var v interface{}
		if json.Unmarshal(ev.Payload, &v) == nil {
			fmt.Fprintf(out, "  %v\n", v)
		}
	}
}

func formatNode(n eventbus.NodeRef) string {
	return fmt.Sprintf("%s(%d,%d,%d %s)", n.World, n.X, n.Y, n.Z, n.Facing)
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
