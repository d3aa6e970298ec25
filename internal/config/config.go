package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Portal    PortalConfig    `yaml:"portal"`
	World     WorldConfig     `yaml:"world"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig выбирает бэкенд реестра цепочек
type StorageConfig struct {
	Backend  string      `yaml:"backend"` // memory | badger | maria | mongo | redis
	Path     string      `yaml:"path"`    // Каталог BadgerDB
	Compress bool        `yaml:"compress"`
	MariaDSN string      `yaml:"maria_dsn"`
	Mongo    MongoConfig `yaml:"mongo"`
	Redis    RedisConfig `yaml:"redis"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // Пусто - шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// PortalConfig - поведение переноса и распознавания узлов
type PortalConfig struct {
	Transfer  string        `yaml:"transfer"` // copy | cut
	Players   string        `yaml:"players"`  // include | exclude
	Proximity ProximityGate `yaml:"proximity"`
	Frame     FrameConfig   `yaml:"frame"`
	// LoadBearing: opaque | solid_top
	LoadBearing       string `yaml:"load_bearing"`
	PostTeleportTicks int    `yaml:"post_teleport_ticks"`
	SafeRadius        int    `yaml:"safe_radius"` // Горизонтальный радиус безопасного объёма
}

// ProximityGate - требование находиться рядом с узлом при активации
type ProximityGate struct {
	Cyclic bool `yaml:"cyclic"` // Для активации без индекса
	Remote bool `yaml:"remote"` // Для активации с явным индексом
	Radius int  `yaml:"radius"`
}

type FrameConfig struct {
	Mode     string `yaml:"mode"` // none | fixed | reference
	Material string `yaml:"material"`
	Rings    int    `yaml:"rings"`
}

// WorldConfig - встроенный мир в памяти
type WorldConfig struct {
	Worlds      []string `yaml:"worlds"`
	Generator   string   `yaml:"generator"` // void | flat | terrain
	Seed        int64    `yaml:"seed"`
	TickMs      int      `yaml:"tick_ms"`
	LoadDelayMs int      `yaml:"load_delay_ms"`
	Workers     int      `yaml:"workers"`
}

type ServerConfig struct {
	RESTPort    int    `yaml:"rest_port"`
	MetricsPort int    `yaml:"metrics_port"`
	JWTSecret   string `yaml:"jwt_secret"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	ToFile bool   `yaml:"to_file"`
}

// Default возвращает рабочую конфигурацию без внешних зависимостей
func Default() *Config {
	return &Config{
		Storage:  StorageConfig{Backend: "memory", Path: "data", Compress: true},
		EventBus: EventBusConfig{Stream: "PORTALS", Retention: 24},
		Portal: PortalConfig{
			Transfer:          "cut",
			Players:           "include",
			Proximity:         ProximityGate{Remote: false, Radius: 4},
			Frame:             FrameConfig{Mode: "none", Rings: 1},
			LoadBearing:       "opaque",
			PostTeleportTicks: 100,
			SafeRadius:        2,
		},
		World: WorldConfig{
			Worlds:      []string{"overworld", "nether"},
			Generator:   "flat",
			TickMs:      50,
			LoadDelayMs: 20,
		},
		Telemetry: TelemetryConfig{ServiceName: "portalnet"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// TickRate возвращает длительность тика
func (w WorldConfig) TickRate() time.Duration {
	return time.Duration(w.TickMs) * time.Millisecond
}

// LoadDelay возвращает искусственную задержку загрузки чанка
func (w WorldConfig) LoadDelay() time.Duration {
	return time.Duration(w.LoadDelayMs) * time.Millisecond
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "PORTAL_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "PORTAL_METRICS_PORT", 2112)
}

// GetJWTSecret возвращает секрет JWT: config -> env PORTAL_JWT_SECRET
func (s *ServerConfig) GetJWTSecret() string {
	if s.JWTSecret != "" {
		return s.JWTSecret
	}
	return os.Getenv("PORTAL_JWT_SECRET")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать из ENV PORTAL_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PORTAL_CONFIG")
		if path == "" {
			return Default(), nil // конфиг не задан, используем дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	return cfg, nil
}
