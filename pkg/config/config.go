package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config captures the full runtime configuration for a single normalization run.
type Config struct {
	App     AppConfig
	Tools   ToolsConfig
	Deploy  DeployConfig
	CDN     CDNConfig
	Storage StorageConfig
	Public  PublicConfig
	Kafka   KafkaConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"videonorm"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	Root        string `env:"APP_ROOT" envDefault:"."`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"debug"`
	LogEncoding string `env:"APP_LOG_ENCODING" envDefault:"json"`
}

type ToolsConfig struct {
	FFmpegPath   string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath  string        `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	ProbeTimeout time.Duration `env:"FFPROBE_TIMEOUT" envDefault:"10s"`
	// StreamStderr copies live ffmpeg output to the process stderr.
	StreamStderr bool          `env:"FFMPEG_STREAM_STDERR" envDefault:"false"`
}

// DeployConfig holds the raw deployment signals. They are resolved into a
// single environment name by the output router, not here.
type DeployConfig struct {
	Mode        string   `env:"NODE_ENV"`
	Environment string   `env:"ENVIRONMENT"`
	Env         string   `env:"ENV"`
	DatabaseURL string   `env:"DATABASE_URL"`
	ProdMarkers []string `env:"PRODUCTION_DB_MARKERS" envSeparator:"," envDefault:"prisma.io,postgres://"`
}

type CDNConfig struct {
	CloudName    string        `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey       string        `env:"CLOUDINARY_API_KEY"`
	APISecret    string        `env:"CLOUDINARY_API_SECRET"`
	UploadPrefix string        `env:"CLOUDINARY_UPLOAD_PREFIX" envDefault:"https://api.cloudinary.com"`
	Folder       string        `env:"CLOUDINARY_FOLDER" envDefault:"PlaylistViewer"`
	MaxBytes     int64         `env:"CDN_MAX_BYTES" envDefault:"104857600"`
	Timeout      time.Duration `env:"CDN_TIMEOUT" envDefault:"10m"`
}

type StorageConfig struct {
	Provider      string `env:"STORAGE_PROVIDER" envDefault:"gcs"`
	Endpoint      string `env:"STORAGE_ENDPOINT" envDefault:"storage.googleapis.com"`
	Region        string `env:"STORAGE_REGION" envDefault:"auto"`
	Bucket        string `env:"STORAGE_BUCKET" envDefault:"mochlist"`
	Folder        string `env:"STORAGE_FOLDER" envDefault:"videos"`
	AccessKey     string `env:"STORAGE_ACCESS_KEY"`
	SecretKey     string `env:"STORAGE_SECRET_KEY"`
	UseSSL        bool   `env:"STORAGE_USE_SSL" envDefault:"true"`
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"https://storage.googleapis.com"`
}

type PublicConfig struct {
	Dir       string `env:"PUBLIC_VIDEOS_DIR" envDefault:"public/videos"`
	URLPrefix string `env:"PUBLIC_VIDEOS_PREFIX" envDefault:"/videos"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic            string        `env:"KAFKA_VIDEO_TOPIC" envDefault:"videonorm.results"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=videonorm"`
}

type MetricsConfig struct {
	PushgatewayURL string `env:"METRICS_PUSHGATEWAY_URL"`
	Job            string `env:"METRICS_JOB" envDefault:"videonorm"`
}

// Load reads an optional dotenv file and parses environment variables into
// Config. Variables already present in the process environment win over the
// file.
func Load() (*Config, error) {
	if err := loadDotenv(envFile()); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envFile() string {
	if p := os.Getenv("APP_ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}

func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
