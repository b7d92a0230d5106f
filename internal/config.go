package internal

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
)

// EnvDevelopment enables detailed error bodies.
const EnvDevelopment = "development"

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	GCP     GCPConfig         `yaml:"gcp"`
	AI      AIConfig          `yaml:"ai"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel    slog.Level `yaml:"log_level"`
	Environment string     `yaml:"environment"`
	HTTP        HTTPConfig `yaml:"http"`
	StaticDir   string     `yaml:"static_dir"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// Development reports whether detailed errors should reach clients.
func (c *ApplicationConfig) Development() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlite_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendFirestore, BackendSQLite)),
		validation.Field(&c.SQLitePath, validation.When(c.Backend == BackendSQLite, validation.Required)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// GCPConfig holds Google Cloud identifiers and credential locations.
type GCPConfig struct {
	// CredentialsFile is an explicit service-account key. Relative paths
	// resolve against Root.
	CredentialsFile   string `yaml:"credentials_file"`
	Root              string `yaml:"root"`
	FirebaseProjectID string `yaml:"firebase_project_id"`
	FirestoreDatabase string `yaml:"firestore_database"`
}

// AIConfig configures the Vertex AI model.
type AIConfig struct {
	Project  string        `yaml:"project"`
	Location string        `yaml:"location"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Location, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// ApplyEnv overlays the recognised environment variables onto c.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	if b, err := strconv.ParseBool(getenv("USE_MEMORY_STORE")); err == nil {
		if b {
			c.Storage.Backend = BackendMemory
		} else if c.Storage.Backend == BackendMemory {
			c.Storage.Backend = BackendFirestore
		}
	}
	set(&c.Storage.Backend, "STORAGE_BACKEND")
	set(&c.Storage.SQLitePath, "SQLITE_PATH")

	set(&c.GCP.CredentialsFile, "FIREBASE_CREDENTIALS_PATH", "GOOGLE_APPLICATION_CREDENTIALS")
	set(&c.GCP.FirebaseProjectID, "FIREBASE_PROJECT_ID")
	set(&c.GCP.FirestoreDatabase, "FIRESTORE_DATABASE")

	set(&c.AI.Project, "GOOGLE_CLOUD_PROJECT")
	set(&c.AI.Location, "VERTEX_AI_LOCATION")
	set(&c.AI.Model, "VERTEX_AI_MODEL")

	set(&c.App.HTTP.Host, "API_HOST")
	if p, err := strconv.Atoi(getenv("API_PORT")); err == nil {
		c.App.HTTP.Port = p
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.App.HTTP.CORSOrigins = splitList(v)
	}
	set(&c.App.Environment, "ENVIRONMENT")
	set(&c.App.StaticDir, "STATIC_DIR")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:    slog.LevelInfo,
			Environment: "production",
			HTTP: HTTPConfig{
				Host: "0.0.0.0",
				Port: 8000,
				CORSOrigins: []string{
					"http://localhost:3000",
					"http://localhost:5173",
					"http://localhost:5174",
				},
			},
			StaticDir: "./frontend/dist",
		},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			SQLitePath: "./thinkblock.db",
			Timeout:    15 * time.Second,
		},
		GCP: GCPConfig{
			Root: ".",
		},
		AI: AIConfig{
			Project:  "thinkblock",
			Location: "asia-northeast3",
			Model:    "gemini-2.0-flash",
			Timeout:  120 * time.Second,
		},
	}
}
