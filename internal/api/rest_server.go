package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/portalnet/internal/auth"
	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/eventbus"
	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/middleware"
	"github.com/annel0/portalnet/internal/portal"
	"github.com/annel0/portalnet/internal/sequencer"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/volume"
	"github.com/annel0/portalnet/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Version - версия API в /api/server
const Version = "v0.1.0"

// RestServer - административный REST API: команда активации и просмотр реестра
type RestServer struct {
	router    *gin.Engine
	http      *http.Server
	activator *portal.Activator
	registry  *chain.Registry
	loop      portal.Loop
	signer    *auth.Signer
	webhooks  *WebhookForwarder
	bus       eventbus.EventBus
	metrics   *ServerMetrics
	log       *logging.Logger
}

// Config содержит зависимости REST сервера
type Config struct {
	Port      string // ":8088"
	Activator *portal.Activator
	Registry  *chain.Registry // Читается только через Loop
	Loop      portal.Loop
	Signer    *auth.Signer
	Webhooks  *WebhookForwarder // nil - без управления webhook'ами
	Bus       eventbus.EventBus // Для статистики; может быть nil
	Metrics   *prometheus.Registry
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) *RestServer {
	if cfg.Port == "" {
		cfg.Port = ":8088"
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("portal_api"))
	router.Use(middleware.NewRequestLogger(nil).Handler())

	promMw := middleware.NewPrometheusMiddleware("portal_api", cfg.Metrics)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:    router,
		activator: cfg.Activator,
		registry:  cfg.Registry,
		loop:      cfg.Loop,
		signer:    cfg.Signer,
		webhooks:  cfg.Webhooks,
		bus:       cfg.Bus,
		metrics:   NewServerMetrics(),
		log:       logging.Default(),
	}
	rs.http = &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.Use(rs.jwtMiddleware())
	{
		api.GET("/server", rs.handleServerInfo)
		api.GET("/chains", rs.handleListChains)
		api.GET("/chains/:id", rs.handleGetChain)

		admin := api.Group("/")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/portals/activate", rs.handleActivate)

			if rs.webhooks != nil {
				admin.GET("/admin/webhooks", rs.handleGetWebhooks)
				admin.POST("/admin/webhooks", rs.handleCreateWebhook)
				admin.DELETE("/admin/webhooks/:id", rs.handleDeleteWebhook)
				admin.GET("/admin/webhooks/events", rs.handleGetWebhookEventTypes)
			}
		}
	}
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ActivateRequest - команда активации узла по позиции активатора
type ActivateRequest struct {
	World       string `json:"world" binding:"required"`
	X           *int   `json:"x" binding:"required"`
	Y           *int   `json:"y" binding:"required"`
	Z           *int   `json:"z" binding:"required"`
	TargetIndex *int   `json:"target_index" binding:"omitempty,min=0"`
}

// ActivateResponse - итог активации
type ActivateResponse struct {
	Status        string               `json:"status"`
	ChainID       int                  `json:"chain_id"`
	Node          *chain.NodeLocation  `json:"node,omitempty"`
	Destination   *chain.NodeLocation  `json:"destination,omitempty"`
	Candidates    int                  `json:"candidates"`
	Pruned        []chain.NodeLocation `json:"pruned,omitempty"`
	Transfer      *volume.Report       `json:"transfer,omitempty"`
	CorrelationID string               `json:"correlation_id,omitempty"`
}

// jwtMiddleware проверяет JWT токен в заголовке Authorization
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{Message: "Отсутствует токен авторизации"})
			return
		}

		// Формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{Message: "Неверный формат токена"})
			return
		}

		claims, err := rs.signer.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{Message: "Недействительный токен"})
			return
		}

		c.Set("operator", claims.Operator)
		c.Set("is_admin", claims.IsAdmin)
		c.Next()
	}
}

// adminMiddleware проверяет, что оператор является администратором
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("is_admin") {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{Message: "Недостаточно прав доступа"})
			return
		}
		c.Next()
	}
}

// handleActivate выполняет команду активации и ждёт итога
func (rs *RestServer) handleActivate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса: " + err.Error()})
		return
	}

	cmd := portal.Command{
		World:       world.ID(req.World),
		Pos:         vec.Vec3{X: *req.X, Y: *req.Y, Z: *req.Z},
		TargetIndex: req.TargetIndex,
	}
	rs.log.Info("Команда активации от %s: %s %v index=%v", c.GetString("operator"), cmd.World, cmd.Pos, formatIndex(req.TargetIndex))

	out, err := rs.activator.Command(c.Request.Context(), cmd)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		rs.log.Error("Команда активации не выполнена: %v", err)
	}

	resp := GenericResponse{Success: err == nil, Message: "Активация выполнена"}
	if err != nil {
		resp.Message = err.Error()
	}
	if out.CorrelationID != "" {
		resp.Data = toActivateResponse(out)
	}
	c.JSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, portal.ErrUnknownWorld):
		return http.StatusNotFound
	case errors.Is(err, sequencer.ErrNotAPortal):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sequencer.ErrInvalidIndex):
		return http.StatusBadRequest
	case errors.Is(err, portal.ErrTooFar):
		return http.StatusForbidden
	case errors.Is(err, portal.ErrNotLoaded),
		errors.Is(err, sequencer.ErrOverlapping),
		errors.Is(err, sequencer.ErrNoValidDestination):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func toActivateResponse(o sequencer.Outcome) ActivateResponse {
	resp := ActivateResponse{
		Status:        o.Status.String(),
		ChainID:       o.ChainID,
		Candidates:    o.Candidates,
		Pruned:        o.Pruned,
		CorrelationID: o.CorrelationID,
	}
	if o.Node != (chain.NodeLocation{}) {
		node := o.Node
		resp.Node = &node
	}
	if o.Status == sequencer.StatusTeleported {
		dst := o.Destination
		resp.Destination = &dst
		report := o.Transfer
		resp.Transfer = &report
	}
	return resp
}

func formatIndex(idx *int) string {
	if idx == nil {
		return "cyclic"
	}
	return strconv.Itoa(*idx)
}

// handleListChains возвращает снимок всех цепочек
func (rs *RestServer) handleListChains(c *gin.Context) {
	var doc chain.Document
	if err := rs.loop.Call(c.Request.Context(), func() { doc = rs.registry.ToDocument() }); err != nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Цепочек: %d", len(doc.Chains)),
		Data:    doc.Chains,
	})
}

// handleGetChain возвращает одну цепочку
func (rs *RestServer) handleGetChain(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный ID цепочки"})
		return
	}

	var (
		rec    chain.ChainRecord
		getErr error
	)
	callErr := rs.loop.Call(c.Request.Context(), func() {
		ch, err := rs.registry.Chain(id)
		if err != nil {
			getErr = err
			return
		}
		rec = ch.Record()
	})
	switch {
	case callErr != nil:
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: callErr.Error()})
	case errors.Is(getErr, chain.ErrUnknownChain):
		c.JSON(http.StatusNotFound, GenericResponse{Message: getErr.Error()})
	case getErr != nil:
		c.JSON(http.StatusInternalServerError, GenericResponse{Message: getErr.Error()})
	default:
		c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Цепочка", Data: rec})
	}
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	info := map[string]interface{}{
		"version":     Version,
		"name":        "Portal Network Server",
		"status":      "running",
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   fmt.Sprintf("%.1f", rs.metrics.GetMemoryUsage()),
		"cpu_percent": fmt.Sprintf("%.1f", cpuPercent),
		"runtime":     rs.metrics.GetRuntimeStats(),
	}
	if rs.bus != nil {
		info["events"] = rs.bus.Metrics()
	}

	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Информация о сервере", Data: info})
}

func (rs *RestServer) handleGetWebhooks(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Webhook'и", Data: rs.webhooks.GetWebhooks()})
}

func (rs *RestServer) handleCreateWebhook(c *gin.Context) {
	var req OutboundWebhook
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса: " + err.Error()})
		return
	}
	known := map[string]bool{"*": true}
	for _, t := range eventbus.EventTypes() {
		known[t] = true
	}
	for _, e := range req.Events {
		if !known[e] {
			c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неизвестный тип события: " + e})
			return
		}
	}
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Webhook создан", Data: rs.webhooks.AddWebhook(req)})
}

func (rs *RestServer) handleDeleteWebhook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный ID webhook'а"})
		return
	}
	if !rs.webhooks.DeleteWebhook(id) {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "Webhook не найден"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Webhook удалён"})
}

func (rs *RestServer) handleGetWebhookEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Типы событий", Data: eventbus.EventTypes()})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает HTTP сервер; блокирует до Stop
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API слушает %s", rs.http.Addr)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает HTTP сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}
