package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Storage     StorageConfig     `json:"storage"`
	Gotenberg   GotenbergConfig   `json:"gotenberg"`
	Email       EmailConfig       `json:"email"`
	Proxy       ProxyConfig       `json:"proxy"`
	Batch       BatchConfig       `json:"batch"`
	Certificate CertificateConfig `json:"certificate"`
	Fallback    FallbackConfig    `json:"fallback"`
}

type ServerConfig struct {
	Port         string   `json:"port"`
	Environment  string   `json:"environment"`
	BaseURL      string   `json:"base_url"`
	AllowOrigins []string `json:"allow_origins"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

const (
	StorageGCS   = "gcs"
	StorageMinIO = "minio"
)

type StorageConfig struct {
	Backend string      `json:"backend"`
	GCS     GCSConfig   `json:"gcs"`
	MinIO   MinIOConfig `json:"minio"`
}

type GCSConfig struct {
	BucketName      string `json:"bucket_name"`
	ProjectID       string `json:"project_id"`
	CredentialsPath string `json:"credentials_path"`
}

type MinIOConfig struct {
	Endpoint   string `json:"endpoint"`
	AccessKey  string `json:"access_key"`
	SecretKey  string `json:"-"`
	BucketName string `json:"bucket_name"`
	UseSSL     bool   `json:"use_ssl"`
	PublicURL  string `json:"public_url"`
}

type GotenbergConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout"`
}

type EmailConfig struct {
	ServiceURL         string        `json:"service_url"`
	Timeout            time.Duration `json:"timeout"`
	MaxAttachmentBytes int64         `json:"max_attachment_bytes"`
	Interval           time.Duration `json:"interval"`
}

type ProxyConfig struct {
	AllowedHosts []string      `json:"allowed_hosts"`
	Timeout      time.Duration `json:"timeout"`
	MaxBytes     int64         `json:"max_bytes"`
}

type BatchConfig struct {
	RecipientInterval time.Duration `json:"recipient_interval"`
	Upload            bool          `json:"upload"`
	GeneratedBy       string        `json:"generated_by"`
}

// CertificateConfig holds the system-wide appearance defaults, the first layer
// under every course's own settings.
type CertificateConfig struct {
	FontSize float64 `json:"font_size"`
	Align    string  `json:"align"`
	Color    string  `json:"color"`
}

type FallbackConfig struct {
	Dir    string        `json:"dir"`
	MaxAge time.Duration `json:"max_age"`
}

func (d *DatabaseConfig) DSN() string {
	// Cloud SQL Unix socket support
	if len(d.Host) > 0 && d.Host[0] == '/' {
		return fmt.Sprintf("%s:%s@unix(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, d.DBName)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Failed to load .env file: %v, using system environment variables\n", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			BaseURL:      getEnv("BASE_URL", ""),
			AllowOrigins: parseAllowOrigins(),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "constancias"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageGCS)),
			GCS: GCSConfig{
				BucketName:      getEnv("GCS_BUCKET_NAME", ""),
				ProjectID:       getEnv("GOOGLE_CLOUD_PROJECT", ""),
				CredentialsPath: getEnv("GCS_CREDENTIALS_PATH", ""),
			},
			MinIO: MinIOConfig{
				Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey:  getEnv("MINIO_SECRET_KEY", ""),
				BucketName: getEnv("MINIO_BUCKET_NAME", "constancias"),
				UseSSL:     getBool("MINIO_USE_SSL", false),
				PublicURL:  getEnv("MINIO_PUBLIC_URL", ""),
			},
		},
		Gotenberg: GotenbergConfig{
			URL:     getEnv("GOTENBERG_URL", "http://localhost:3000"),
			Timeout: getEnv("GOTENBERG_TIMEOUT", "30s"),
		},
		Email: EmailConfig{
			ServiceURL:         strings.TrimRight(getEnv("EMAIL_SERVICE_URL", ""), "/"),
			Timeout:            getDuration("EMAIL_TIMEOUT", 30*time.Second),
			MaxAttachmentBytes: getInt64("EMAIL_MAX_ATTACHMENT_BYTES", 4<<20),
			Interval:           getDuration("EMAIL_INTERVAL", 0),
		},
		Proxy: ProxyConfig{
			AllowedHosts: splitList(getEnv("PROXY_ALLOWED_HOSTS", "")),
			Timeout:      getDuration("PROXY_TIMEOUT", 20*time.Second),
			MaxBytes:     getInt64("PROXY_MAX_BYTES", 25<<20),
		},
		Batch: BatchConfig{
			RecipientInterval: getDuration("BATCH_RECIPIENT_INTERVAL", 0),
			Upload:            getBool("BATCH_UPLOAD", true),
			GeneratedBy:       getEnv("BATCH_GENERATED_BY", "system"),
		},
		Certificate: CertificateConfig{
			FontSize: getFloat("CERT_DEFAULT_FONT_SIZE", 16),
			Align:    getEnv("CERT_DEFAULT_ALIGN", "left"),
			Color:    getEnv("CERT_DEFAULT_COLOR", "#000000"),
		},
		Fallback: FallbackConfig{
			Dir:    getEnv("FALLBACK_DIR", "/tmp/constancias"),
			MaxAge: getDuration("FALLBACK_MAX_AGE", time.Hour),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageGCS, StorageMinIO:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %q or %q)", c.Storage.Backend, StorageGCS, StorageMinIO)
	}
	if c.Storage.Backend == StorageMinIO && (c.Storage.MinIO.AccessKey == "" || c.Storage.MinIO.SecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend")
	}
	if c.Certificate.FontSize <= 0 {
		return fmt.Errorf("CERT_DEFAULT_FONT_SIZE must be positive, got %v", c.Certificate.FontSize)
	}
	if c.Email.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("EMAIL_MAX_ATTACHMENT_BYTES must be positive")
	}
	if c.Proxy.MaxBytes <= 0 {
		return fmt.Errorf("PROXY_MAX_BYTES must be positive")
	}
	return nil
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseAllowOrigins() []string {
	if origins := splitList(os.Getenv("ALLOW_ORIGINS")); len(origins) > 0 {
		return origins
	}

	// FRONTEND_URL_* kept for older deployments
	var allowOrigins []string
	if url1 := getEnv("FRONTEND_URL_1", ""); url1 != "" {
		allowOrigins = append(allowOrigins, url1)
	}
	if url2 := getEnv("FRONTEND_URL_2", ""); url2 != "" {
		allowOrigins = append(allowOrigins, url2)
	}

	if len(allowOrigins) == 0 {
		allowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}
	}
	return allowOrigins
}
