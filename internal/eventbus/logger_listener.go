package eventbus

import (
	"context"

	"github.com/annel0/portalnet/internal/logging"
)

// StartLoggingListener подписывается на события портальной сети и пишет их в лог.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s corr=%s prio=%d %s", ev.ID, ev.EventType, ev.Source, ev.CorrelationID, ev.Priority, ev.Payload)
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return nil
}
