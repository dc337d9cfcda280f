package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Camera      CameraConfig      `yaml:"camera"`
	Detector    DetectorConfig    `yaml:"detector"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Web         WebConfig         `yaml:"web"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	LogLevel    string            `yaml:"-"`
}

type StorageConfig struct {
	SamplesDir string `yaml:"samples_dir"` // root of the {label}_{name} sample directories
	ModelPath  string `yaml:"model_path"`  // trained model artifact
	LedgerPath string `yaml:"ledger_path"` // attendance CSV file
	ExportDir  string `yaml:"export_dir"`  // target of scheduled ledger exports
}

type RecognitionConfig struct {
	Backend        string  `yaml:"backend"` // lbph or opencv
	Threshold      float64 `yaml:"threshold"`
	RasterSize     int     `yaml:"raster_size"`
	SampleCount    int     `yaml:"sample_count"`
	HNSWMinSamples int     `yaml:"hnsw_min_samples"`
}

type CameraConfig struct {
	Driver       string        `yaml:"driver"` // webcam, replay or opencv
	Device       string        `yaml:"device"` // device path, replay directory or opencv device id
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	Retries      int           `yaml:"retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	FrameTimeout time.Duration `yaml:"frame_timeout"`
}

type DetectorConfig struct {
	Driver      string     `yaml:"driver"` // pigo, remote or opencv
	URL         string     `yaml:"url"`    // remote detector endpoint
	HaarCascade string     `yaml:"haar_cascade"`
	Pigo        PigoConfig `yaml:"pigo"`
}

type PigoConfig struct {
	Cascade          string  `yaml:"cascade"`
	MinSize          int     `yaml:"min_size"`
	MaxSize          int     `yaml:"max_size"`
	ShiftFactor      float64 `yaml:"shift_factor"`
	ScaleFactor      float64 `yaml:"scale_factor"`
	QualityThreshold float32 `yaml:"quality_threshold"`
	IoUThreshold     float64 `yaml:"iou_threshold"`
}

type LedgerConfig struct {
	Driver       string `yaml:"driver"` // csv, sqlite, postgres or mysql
	DatabaseURL  string `yaml:"-"`      // DSN for the SQL drivers (sqlite: file path)
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type WebConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	AdminUser         string   `yaml:"admin_user"`
	AdminPasswordHash string   `yaml:"-"` // bcrypt hash; empty disables authentication
	JWTSecret         string   `yaml:"-"`
	AllowedOrigins    []string `yaml:"-"` // extra CORS origins besides localhost
}

// AuthEnabled reports whether API requests must carry a bearer token.
func (c *WebConfig) AuthEnabled() bool {
	return c.AdminPasswordHash != ""
}

type ScheduleConfig struct {
	ExportAt string `yaml:"export_at"` // daily "HH:MM", empty disables
}

// envString returns the environment variable or the default when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive time.Duration ("250ms", "2s").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Defaults returns the configuration described by the embedded defaults.yaml.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.LogLevel = envString("LOG_LEVEL", "info")

	cfg.Storage.SamplesDir = envString("SAMPLES_DIR", cfg.Storage.SamplesDir)
	cfg.Storage.ModelPath = envString("MODEL_PATH", cfg.Storage.ModelPath)
	cfg.Storage.LedgerPath = envString("LEDGER_PATH", cfg.Storage.LedgerPath)
	cfg.Storage.ExportDir = envString("EXPORT_DIR", cfg.Storage.ExportDir)

	cfg.Recognition.Backend = envString("RECOGNITION_BACKEND", cfg.Recognition.Backend)
	cfg.Recognition.Threshold = envFloat("RECOGNITION_THRESHOLD", cfg.Recognition.Threshold)
	cfg.Recognition.RasterSize = envInt("RASTER_SIZE", cfg.Recognition.RasterSize)
	cfg.Recognition.SampleCount = envInt("SAMPLE_COUNT", cfg.Recognition.SampleCount)
	cfg.Recognition.HNSWMinSamples = envInt("HNSW_MIN_SAMPLES", cfg.Recognition.HNSWMinSamples)

	cfg.Camera.Driver = envString("CAMERA_DRIVER", cfg.Camera.Driver)
	cfg.Camera.Device = envString("CAMERA_DEVICE", cfg.Camera.Device)
	cfg.Camera.Width = envInt("CAMERA_WIDTH", cfg.Camera.Width)
	cfg.Camera.Height = envInt("CAMERA_HEIGHT", cfg.Camera.Height)
	cfg.Camera.Retries = envInt("CAMERA_RETRIES", cfg.Camera.Retries)
	cfg.Camera.RetryDelay = envDuration("CAMERA_RETRY_DELAY", cfg.Camera.RetryDelay)
	cfg.Camera.FrameTimeout = envDuration("CAMERA_FRAME_TIMEOUT", cfg.Camera.FrameTimeout)

	cfg.Detector.Driver = envString("DETECTOR", cfg.Detector.Driver)
	cfg.Detector.URL = envString("DETECTOR_URL", cfg.Detector.URL)
	cfg.Detector.HaarCascade = envString("HAAR_CASCADE", cfg.Detector.HaarCascade)
	cfg.Detector.Pigo.Cascade = envString("PIGO_CASCADE", cfg.Detector.Pigo.Cascade)
	cfg.Detector.Pigo.MinSize = envInt("PIGO_MIN_SIZE", cfg.Detector.Pigo.MinSize)
	cfg.Detector.Pigo.MaxSize = envInt("PIGO_MAX_SIZE", cfg.Detector.Pigo.MaxSize)

	cfg.Ledger.Driver = envString("LEDGER_DRIVER", cfg.Ledger.Driver)
	cfg.Ledger.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.Ledger.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Ledger.MaxOpenConns)
	cfg.Ledger.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Ledger.MaxIdleConns)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AdminUser = envString("WEB_ADMIN_USER", cfg.Web.AdminUser)
	cfg.Web.AdminPasswordHash = os.Getenv("WEB_ADMIN_PASSWORD_HASH")
	cfg.Web.JWTSecret = os.Getenv("WEB_JWT_SECRET")
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS")

	cfg.Schedule.ExportAt = envString("EXPORT_AT", cfg.Schedule.ExportAt)

	return cfg
}
