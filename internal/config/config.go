package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.

type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset"`
	Stream    StreamConfig    `yaml:"stream"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DatasetConfig описывает источник геоданных города.
type DatasetConfig struct {
	Path     string `yaml:"path"`      // GeoJSON или GeoJSON.gz с фичами города
	CacheDir string `yaml:"cache_dir"` // Директория BadgerDB-кэша импортированного датасета
}

// StreamConfig параметры стриминга чанков (валидируются в internal/stream).
type StreamConfig struct {
	ChunkSize             float64 `yaml:"chunk_size"`
	LoadRadius            float64 `yaml:"load_radius"`
	UnloadRadius          float64 `yaml:"unload_radius"`
	UpdateIntervalSeconds float64 `yaml:"update_interval_seconds"`
	FrameBudgetMs         float64 `yaml:"frame_budget_ms"`
	MaxTransitionsPerTick int     `yaml:"max_transitions_per_tick"`
	DistantAreaThreshold  float64 `yaml:"distant_area_threshold"`
	TickRate              int     `yaml:"tick_rate"` // Тиков в секунду
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "CITYSTREAM_REST_PORT", 8090)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "CITYSTREAM_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// DatasetPath возвращает путь к датасету с приоритетом: config -> env
func (d *DatasetConfig) DatasetPath() string {
	if d.Path != "" {
		return d.Path
	}
	return os.Getenv("CITYSTREAM_DATASET")
}

// Default возвращает конфигурацию со значениями по умолчанию.
// Дефолты соответствуют городу средней плотности: чанк 500 м, радиус загрузки 750 м.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			CacheDir: "data/dataset-cache",
		},
		Stream: StreamConfig{
			ChunkSize:             500,
			LoadRadius:            750,
			UnloadRadius:          1200,
			UpdateIntervalSeconds: 1.0,
			FrameBudgetMs:         5.0,
			MaxTransitionsPerTick: 8,
			DistantAreaThreshold:  250000, // м²: крупные водоёмы и парки
			TickRate:              60,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "citystream",
		},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV CITYSTREAM_CONFIG или возвращает дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CITYSTREAM_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	return cfg, nil
}
