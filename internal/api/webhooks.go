package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/annel0/portalnet/internal/eventbus"
	"github.com/annel0/portalnet/internal/logging"
)

// SignatureHeader - заголовок с HMAC-подписью тела
const SignatureHeader = "X-Webhook-Signature"

// OutboundWebhook - исходящий webhook, получающий события порталов
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name" binding:"required"`
	URL          string     `json:"url" binding:"required,url"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events" binding:"required,min=1"` // Типы событий или "*"
	Timeout      int        `json:"timeout"`                         // Таймаут в секундах
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// OutboundWebhookEvent - тело запроса webhook'а
type OutboundWebhookEvent struct {
	ID            string          `json:"id"`
	EventType     string          `json:"event_type"`
	Timestamp     int64           `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// WebhookForwarder пересылает события шины подписанным webhook'ам
type WebhookForwarder struct {
	mu         sync.RWMutex
	webhooks   map[uint64]*OutboundWebhook
	nextID     uint64
	httpClient *http.Client
	backoff    time.Duration
	sub        eventbus.Subscription
	wg         sync.WaitGroup
	log        *logging.Logger
}

// NewWebhookForwarder создаёт пересыльщик
func NewWebhookForwarder() *WebhookForwarder {
	return &WebhookForwarder{
		webhooks:   make(map[uint64]*OutboundWebhook),
		nextID:     1,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff:    time.Second,
		log:        logging.Default(),
	}
}

// Attach подписывает пересыльщик на все события шины
func (wf *WebhookForwarder) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Sources: []string{eventbus.Source}}, wf.handle)
	if err != nil {
		return err
	}
	wf.sub = sub
	return nil
}

// Close отписывается и ждёт незавершённые отправки
func (wf *WebhookForwarder) Close() {
	if wf.sub != nil {
		wf.sub.Unsubscribe()
	}
	wf.wg.Wait()
}

// AddWebhook добавляет webhook
func (wf *WebhookForwarder) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	webhook.ID = wf.nextID
	wf.nextID++
	webhook.CreatedAt = time.Now()
	if webhook.Timeout <= 0 {
		webhook.Timeout = 30
	}
	if webhook.RetryCount < 0 {
		webhook.RetryCount = 0
	}

	wf.webhooks[webhook.ID] = &webhook
	out := webhook
	return &out
}

// GetWebhooks возвращает копии webhook'ов, упорядоченные по ID
func (wf *WebhookForwarder) GetWebhooks() []OutboundWebhook {
	wf.mu.RLock()
	defer wf.mu.RUnlock()

	out := make([]OutboundWebhook, 0, len(wf.webhooks))
	for _, w := range wf.webhooks {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteWebhook удаляет webhook
func (wf *WebhookForwarder) DeleteWebhook(id uint64) bool {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	if _, exists := wf.webhooks[id]; !exists {
		return false
	}
	delete(wf.webhooks, id)
	return true
}

func (wf *WebhookForwarder) handle(ctx context.Context, ev *eventbus.Envelope) {
	event := OutboundWebhookEvent{
		ID:            ev.ID,
		EventType:     ev.EventType,
		Timestamp:     ev.Timestamp.Unix(),
		CorrelationID: ev.CorrelationID,
		Data:          json.RawMessage(ev.Payload),
	}
	body, err := json.Marshal(event)
	if err != nil {
		wf.log.Error("❌ Ошибка маршалинга события %s: %v", ev.EventType, err)
		return
	}

	wf.mu.RLock()
	var targets []OutboundWebhook
	for _, w := range wf.webhooks {
		if subscribed(w, ev.EventType) {
			targets = append(targets, *w)
		}
	}
	wf.mu.RUnlock()

	for _, w := range targets {
		wf.wg.Add(1)
		go func(w OutboundWebhook) {
			defer wf.wg.Done()
			wf.send(w, ev.EventType, body)
		}(w)
	}
}

func subscribed(w *OutboundWebhook, eventType string) bool {
	for _, e := range w.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// send отправляет тело с повторами; запрос пересоздаётся на каждую попытку
func (wf *WebhookForwarder) send(w OutboundWebhook, eventType string, body []byte) {
	success := false
	for attempt := 0; attempt <= w.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * wf.backoff)
		}
		status, err := wf.post(w, eventType, body)
		if err != nil {
			wf.log.Warn("⚠️  Попытка %d/%d для webhook %s: %v", attempt+1, w.RetryCount+1, w.Name, err)
			continue
		}
		if status >= 200 && status < 300 {
			success = true
			wf.log.Debug("Событие %s отправлено в webhook %s", eventType, w.Name)
			break
		}
		wf.log.Warn("⚠️  Webhook %s вернул статус %d на попытке %d", w.Name, status, attempt+1)
	}

	wf.mu.Lock()
	if stored, ok := wf.webhooks[w.ID]; ok {
		now := time.Now()
		stored.LastUsed = &now
		if !success {
			stored.FailureCount++
		}
	}
	wf.mu.Unlock()
}

func (wf *WebhookForwarder) post(w OutboundWebhook, eventType string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(w.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "portalnet/1.0")
	req.Header.Set("X-Event-Type", eventType)
	if w.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, w.Secret))
	}

	resp, err := wf.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Sign возвращает HMAC-SHA256 подпись тела в формате "sha256=<hex>"
func Sign(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
