package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/portalnet/internal/api"
	"github.com/annel0/portalnet/internal/auth"
	"github.com/annel0/portalnet/internal/config"
	"github.com/annel0/portalnet/internal/eventbus"
	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/observability"
	"github.com/annel0/portalnet/internal/portal"
	"github.com/annel0/portalnet/internal/sequencer"
	"github.com/annel0/portalnet/internal/storage"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/memworld"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (по умолчанию PORTAL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Logging.ToFile {
		if err := logging.InitDefaultLogger("server"); err != nil {
			log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
		}
		defer logging.CloseDefaultLogger()
	}
	logging.SetConsoleLevel(logging.ParseLevel(cfg.Logging.Level))

	logging.Info("🌀 Запуск сервера портальной сети...")

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logging.Warn("Ошибка остановки телеметрии: %v", err)
		}
	}()

	settings, err := portal.ParseSettings(cfg.Portal)
	if err != nil {
		return fmt.Errorf("настройки порталов: %w", err)
	}

	// === РЕЕСТР ЦЕПОЧЕК ===
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("хранилище: %w", err)
	}
	defer store.Close()

	registry, err := storage.LoadRegistry(ctx, store)
	if err != nil {
		return fmt.Errorf("загрузка реестра: %w", err)
	}
	registry.SetSafeExtent(settings.SafeExtent)
	logging.Info("📚 Реестр загружен: %d цепочек, следующий id %d", registry.Len(), registry.NextID())

	persister := storage.NewPersister(store, 5*time.Second)
	defer func() {
		fctx, fcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer fcancel()
		if err := persister.Flush(fctx); err != nil {
			logging.Error("❌ Реестр не сохранён при остановке: %v", err)
		}
		persister.Close()
	}()

	// === ШИНА СОБЫТИЙ ===
	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("шина событий: %w", err)
	}
	defer bus.Close()

	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("LoggingListener не запущен: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus, metricsReg)
	busMetrics.Start()
	defer busMetrics.Stop()

	// === МИР И ПОТОК СИМУЛЯЦИИ ===
	universe, err := buildUniverse(cfg.World)
	if err != nil {
		return err
	}
	defer universe.Stop()

	loop := world.NewLoop(256, cfg.World.TickRate())
	loop.OnTick(universe.Tick)
	loopCtx, stopLoop := context.WithCancel(ctx)
	go loop.Run(loopCtx)
	defer func() {
		stopLoop()
		<-loop.Done()
	}()

	// === СЕКВЕНСОР И АКТИВАЦИЯ ===
	seqLog := logging.GetSequencerLogger()
	defer logging.GetLoggerManager().CloseAll()
	if err := logging.GetLoggerManager().SetLogLevel("sequencer", logging.ParseLevel(cfg.Logging.Level), logging.TRACE); err != nil {
		logging.Warn("Уровень логгера секвенсора не задан: %v", err)
	}

	seq := sequencer.New(universe, registry, loop, sequencer.Options{
		Extractor:         settings.Extractor,
		Policy:            settings.Policy,
		PostTeleportTicks: settings.PostTeleportTicks,
		Persist:           persister.Submit,
		Bus:               bus,
		Metrics:           sequencer.NewMetrics(metricsReg),
		Logger:            seqLog,
	})
	activator := portal.NewActivator(universe, seq, loop, settings, bus)
	logging.Info("🔮 Политика переноса: %s/%s, близость: cyclic=%v remote=%v r=%d",
		cfg.Portal.Transfer, cfg.Portal.Players, settings.Gate.Cyclic, settings.Gate.Remote, settings.Gate.Radius)

	// === REST API ===
	signer, err := auth.NewSigner(cfg.Server.GetJWTSecret())
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	if cfg.Server.GetJWTSecret() == "" {
		token, err := signer.Generate("admin", true, 24*time.Hour)
		if err == nil {
			logging.Warn("🔐 PORTAL_JWT_SECRET не задан, временный admin токен: %s", token)
		}
	}

	webhooks := api.NewWebhookForwarder()
	if err := webhooks.Attach(ctx, bus); err != nil {
		return fmt.Errorf("webhooks: %w", err)
	}
	defer webhooks.Close()

	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	rest := api.NewRestServer(api.Config{
		Port:      restPort,
		Activator: activator,
		Registry:  registry,
		Loop:      loop,
		Signer:    signer,
		Webhooks:  webhooks,
		Bus:       bus,
		Metrics:   metricsReg,
	})
	go func() {
		if err := rest.Start(); err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
			cancel()
		}
	}()

	metricsAddr := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())
	metricsSrv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌍 Миры: %v", universe.Worlds())
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case <-ctx.Done():
		logging.Warn("Завершение работы после ошибки сервиса")
	}

	// === GRACEFUL SHUTDOWN ===
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := rest.Stop(sctx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := metricsSrv.Shutdown(sctx); err != nil {
		logging.Warn("Ошибка остановки /metrics: %v", err)
	}
	return nil
}

// openBus выбирает JetStream при заданном URL, иначе шину в памяти
func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📨 Шина событий в памяти")
		return eventbus.NewMemoryBus(1024), nil
	}
	retention := time.Duration(cfg.Retention) * time.Hour
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, retention)
	if err != nil {
		return nil, err
	}
	logging.Info("📨 Шина событий: NATS JetStream %s (стрим %s)", cfg.URL, cfg.Stream)
	return bus, nil
}

// buildUniverse создаёт встроенные миры по конфигурации
func buildUniverse(cfg config.WorldConfig) (*memworld.Universe, error) {
	if len(cfg.Worlds) == 0 {
		return nil, fmt.Errorf("не задан ни один мир")
	}

	var gen memworld.Generator
	switch cfg.Generator {
	case "", "flat":
		gen = memworld.FlatGenerator{Floor: 63}
	case "void":
		gen = memworld.VoidGenerator{}
	case "terrain":
		gen = memworld.NewTerrainGenerator(cfg.Seed)
	default:
		return nil, fmt.Errorf("неизвестный генератор %q", cfg.Generator)
	}

	u := memworld.NewUniverse(cfg.LoadDelay(), cfg.Workers)
	for _, name := range cfg.Worlds {
		u.AddWorld(memworld.NewWorld(world.ID(name), gen))
	}
	logging.Info("🗺️ Создано миров: %d (генератор %s)", len(cfg.Worlds), cfg.Generator)
	return u, nil
}
