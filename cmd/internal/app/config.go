package app

import (
	"strings"
	"time"

	"petlink/cmd/internal/workpool"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// DatabaseURL selects the message store: empty is in-memory,
	// postgres:// uses pgx, sqlite:// or file: uses SQLite.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless a durable store is configured and reachable.
	ReadinessRequireDB bool

	// If false, callers are trusted by the X-User-ID header. Local development only.
	AuthRequired bool

	UploadDir      string
	PublicBasePath string
	MaxUploadBytes int64

	MessagePool workpool.Config
	GeneralPool workpool.Config
	FilePool    workpool.Config
	BatchPool   workpool.Config

	OperationRetention time.Duration
	SessionIdleTTL     time.Duration
	SweepInterval      time.Duration

	NATSURL           string
	NATSSubjectPrefix string
	PresenceAudience  string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("PETLINK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("PETLINK_LOG_LEVEL", "info"),
		LogFormat: EnvString("PETLINK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("PETLINK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PETLINK_HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      EnvDuration("PETLINK_HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       EnvDuration("PETLINK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("PETLINK_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("PETLINK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("PETLINK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PETLINK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PETLINK_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("PETLINK_READINESS_REQUIRE_DB", false),

		AuthRequired: EnvBool("PETLINK_AUTH_REQUIRED", true),

		UploadDir:      EnvString("PETLINK_UPLOAD_DIR", "uploads"),
		PublicBasePath: EnvString("PETLINK_PUBLIC_BASE_PATH", "/server"),
		MaxUploadBytes: int64(EnvInt("PETLINK_MAX_UPLOAD_BYTES", 10<<20)),

		MessagePool: loadPoolConfig("message", workpool.Config{CoreSize: 5, MaxSize: 20, QueueCapacity: 200, IdleTimeout: 60 * time.Second}),
		GeneralPool: loadPoolConfig("general", workpool.Config{CoreSize: 3, MaxSize: 10, QueueCapacity: 100, IdleTimeout: 60 * time.Second}),
		FilePool:    loadPoolConfig("file", workpool.Config{CoreSize: 8, MaxSize: 16, QueueCapacity: 50, IdleTimeout: 120 * time.Second}),
		BatchPool:   loadPoolConfig("batch", workpool.Config{CoreSize: 4, MaxSize: 8, QueueCapacity: 20, IdleTimeout: 300 * time.Second}),

		OperationRetention: EnvDuration("PETLINK_OPERATION_RETENTION", 15*time.Minute),
		SessionIdleTTL:     EnvDuration("PETLINK_SESSION_IDLE_TTL", 0),
		SweepInterval:      EnvDuration("PETLINK_SWEEP_INTERVAL", time.Minute),

		NATSURL:           EnvString("PETLINK_NATS_URL", ""),
		NATSSubjectPrefix: EnvString("PETLINK_NATS_SUBJECT_PREFIX", "petlink.deliver"),
		PresenceAudience:  EnvString("PETLINK_PRESENCE_AUDIENCE", "peers"),

		CORSAllowedOrigins:   EnvStrings("PETLINK_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("PETLINK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("PETLINK_CORS_MAX_AGE_SECONDS", 600),
	}
}

// loadPoolConfig overlays PETLINK_POOL_<NAME>_{CORE,MAX,QUEUE,IDLE} on def.
func loadPoolConfig(name string, def workpool.Config) workpool.Config {
	prefix := "PETLINK_POOL_" + strings.ToUpper(name) + "_"
	return workpool.Config{
		Name:          name,
		CoreSize:      EnvInt(prefix+"CORE", def.CoreSize),
		MaxSize:       EnvInt(prefix+"MAX", def.MaxSize),
		QueueCapacity: EnvInt(prefix+"QUEUE", def.QueueCapacity),
		IdleTimeout:   EnvDuration(prefix+"IDLE", def.IdleTimeout),
	}
}
