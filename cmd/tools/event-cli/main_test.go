package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/annel0/portalnet/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, typ string, payload interface{}) *eventbus.Envelope {
	t.Helper()
	ev, err := eventbus.NewEnvelope(typ, "corr-1", 5, payload)
	require.NoError(t, err)
	return ev
}

func TestPrintEventDecodesPayload(t *testing.T) {
	var out bytes.Buffer
	printEvent(&out, envelope(t, eventbus.TypePortalTeleported, eventbus.PortalTeleported{
		ChainID: 3,
		From:    eventbus.NodeRef{World: "overworld", X: 1, Y: 64, Z: 2, Facing: "north"},
		To:      eventbus.NodeRef{World: "nether", X: 10, Y: 40, Z: -5, Facing: "east"},
		Blocks:  27,
	}), false)

	assert.Contains(t, out.String(), "PortalTeleported")
	assert.Contains(t, out.String(), "corr=corr-1")
	assert.Contains(t, out.String(), "Chain 3: overworld(1,64,2 north) -> nether(10,40,-5 east)")
	assert.Contains(t, out.String(), "blocks=27")
}

func TestPrintEventRejectedWithIndex(t *testing.T) {
	var out bytes.Buffer
	idx := 4
	printEvent(&out, envelope(t, eventbus.TypePortalRejected, eventbus.PortalRejected{
		Node:   eventbus.NodeRef{World: "overworld"},
		Reason: eventbus.ReasonInvalidIndex,
		Index:  &idx,
	}), false)

	assert.Contains(t, out.String(), "(invalid_index) index=4")
}

func TestTailStopsAtLimit(t *testing.T) {
	var out bytes.Buffer
	stopped := 0
	tl := newTail(&out, 2, false, true, func() { stopped++ })

	for i := 0; i < 3; i++ {
		tl.handle(context.Background(), envelope(t, eventbus.TypePortalExhausted, eventbus.PortalExhausted{ChainID: 1}))
	}

	assert.Equal(t, 2, tl.total)
	assert.Equal(t, 1, stopped)
	assert.Empty(t, out.String(), "режим stats не печатает события")

	tl.summary()
	assert.Contains(t, out.String(), "Total events: 2")
	assert.Contains(t, out.String(), "PortalExhausted: 2 events")
}

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"a", "b"}, parseStringList(" a, ,b "))
}
