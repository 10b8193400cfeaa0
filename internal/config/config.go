package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	JobStore  JobStoreConfig
	Storage   StorageConfig
	Polly     PollyConfig
	Media     MediaConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Fetch     RetryConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Defaults  Defaults
}

type ServerConfig struct {
	Port string
	Env  string
	// Mode selects which halves run in this process: "all", "api" or "worker".
	Mode string
}

type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JobStoreConfig struct {
	Driver      string // "redis" or "postgres"
	PostgresDSN string
	TTL         time.Duration
}

type StorageConfig struct {
	Region            string
	Endpoint          string
	AccessKeyID       string
	SecretAccessKey   string
	UsePathStyle      bool
	OutputDestination string
	PresignTTL        time.Duration
}

type PollyConfig struct {
	Region string
}

type MediaConfig struct {
	FFmpegPath  string
	FFprobePath string
	SampleRate  int
}

type QueueConfig struct {
	Name     string
	MaxRetry int
}

type WorkerConfig struct {
	Concurrency     int
	WorkDir         string
	JanitorSchedule string
	StaleAfter      time.Duration
}

// RetryConfig bounds a component's own retry loop.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	Timeout   time.Duration
}

type WebhookConfig struct {
	RetryConfig
	UserAgent string
}

type RateLimitConfig struct {
	SubmitPerMin int
}

// Defaults holds the values applied to optional job spec fields. It is passed
// explicitly to the parser and compiler so tests can override single values.
type Defaults struct {
	TTSVolume           float64
	AudioVolume         float64
	MusicVolume         float64
	MusicLoop           bool
	CrossfadeDuration   float64
	DuckingFadeDuration float64
	VoiceID             string
	Engine              string
	TextType            string
	Preset              string
}

// StandardDefaults returns the stock spec defaults.
func StandardDefaults() Defaults {
	return Defaults{
		TTSVolume:           1.0,
		AudioVolume:         0.5,
		MusicVolume:         0.3,
		MusicLoop:           true,
		CrossfadeDuration:   2.0,
		DuckingFadeDuration: 0,
		VoiceID:             "Joanna",
		Engine:              "neural",
		TextType:            "text",
		Preset:              "medium",
	}
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("POSTGRES_DSN")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	bindings := map[string]string{
		"server.port":                 "SERVER_PORT",
		"server.env":                  "SERVER_ENV",
		"server.mode":                 "SERVER_MODE",
		"log.level":                   "LOG_LEVEL",
		"log.format":                  "LOG_FORMAT",
		"redis.addr":                  "REDIS_ADDR",
		"redis.password":              "REDIS_PASSWORD",
		"redis.db":                    "REDIS_DB",
		"jobstore.driver":             "JOBSTORE_DRIVER",
		"jobstore.postgres_dsn":       "POSTGRES_DSN",
		"jobstore.ttl_seconds":        "JOBS_TTL_SECONDS",
		"storage.region":              "S3_REGION",
		"storage.endpoint":            "S3_ENDPOINT",
		"storage.access_key_id":       "S3_ACCESS_KEY_ID",
		"storage.secret_access_key":   "S3_SECRET_ACCESS_KEY",
		"storage.use_path_style":      "S3_USE_PATH_STYLE",
		"storage.output_destination":  "OUTPUT_DESTINATION",
		"storage.presign_ttl_seconds": "PRESIGN_TTL_SECONDS",
		"polly.region":                "POLLY_REGION",
		"media.ffmpeg_path":           "FFMPEG_PATH",
		"media.ffprobe_path":          "FFPROBE_PATH",
		"queue.name":                  "QUEUE_NAME",
		"queue.max_retry":             "QUEUE_MAX_RETRY",
		"worker.concurrency":          "WORKER_CONCURRENCY",
		"worker.work_dir":             "WORK_DIR",
		"worker.janitor_schedule":     "JANITOR_SCHEDULE",
		"worker.stale_after":          "WORK_DIR_STALE_AFTER",
		"ratelimit.submit_per_min":    "RATELIMIT_SUBMIT_PER_MIN",
		"webhook.user_agent":          "WEBHOOK_USER_AGENT",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.mode", "all")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jobstore.driver", "redis")
	v.SetDefault("jobstore.ttl_seconds", 604800)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_path_style", false)
	v.SetDefault("storage.presign_ttl_seconds", 86400)
	v.SetDefault("polly.region", "us-east-1")
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.sample_rate", 44100)
	v.SetDefault("queue.name", "render")
	v.SetDefault("queue.max_retry", 3)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.work_dir", os.TempDir()+"/auto-vid")
	v.SetDefault("worker.janitor_schedule", "@every 30m")
	v.SetDefault("worker.stale_after", "6h")
	v.SetDefault("fetch.attempts", 3)
	v.SetDefault("fetch.base_delay", "1s")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("webhook.attempts", 3)
	v.SetDefault("webhook.base_delay", "1s")
	v.SetDefault("webhook.timeout", "30s")
	v.SetDefault("webhook.user_agent", "Auto-Vid/1.0")
	v.SetDefault("ratelimit.submit_per_min", 60)

	d := StandardDefaults()
	v.SetDefault("defaults.tts_volume", d.TTSVolume)
	v.SetDefault("defaults.audio_volume", d.AudioVolume)
	v.SetDefault("defaults.music_volume", d.MusicVolume)
	v.SetDefault("defaults.music_loop", d.MusicLoop)
	v.SetDefault("defaults.crossfade_duration", d.CrossfadeDuration)
	v.SetDefault("defaults.ducking_fade_duration", d.DuckingFadeDuration)
	v.SetDefault("defaults.voice_id", d.VoiceID)
	v.SetDefault("defaults.engine", d.Engine)
	v.SetDefault("defaults.text_type", d.TextType)
	v.SetDefault("defaults.preset", d.Preset)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
			Env:  v.GetString("server.env"),
			Mode: strings.ToLower(v.GetString("server.mode")),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JobStore: JobStoreConfig{
			Driver:      strings.ToLower(v.GetString("jobstore.driver")),
			PostgresDSN: v.GetString("jobstore.postgres_dsn"),
			TTL:         time.Duration(v.GetInt64("jobstore.ttl_seconds")) * time.Second,
		},
		Storage: StorageConfig{
			Region:            v.GetString("storage.region"),
			Endpoint:          v.GetString("storage.endpoint"),
			AccessKeyID:       v.GetString("storage.access_key_id"),
			SecretAccessKey:   v.GetString("storage.secret_access_key"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			OutputDestination: v.GetString("storage.output_destination"),
			PresignTTL:        time.Duration(v.GetInt64("storage.presign_ttl_seconds")) * time.Second,
		},
		Polly: PollyConfig{
			Region: v.GetString("polly.region"),
		},
		Media: MediaConfig{
			FFmpegPath:  v.GetString("media.ffmpeg_path"),
			FFprobePath: v.GetString("media.ffprobe_path"),
			SampleRate:  v.GetInt("media.sample_rate"),
		},
		Queue: QueueConfig{
			Name:     v.GetString("queue.name"),
			MaxRetry: v.GetInt("queue.max_retry"),
		},
		Worker: WorkerConfig{
			Concurrency:     v.GetInt("worker.concurrency"),
			WorkDir:         v.GetString("worker.work_dir"),
			JanitorSchedule: v.GetString("worker.janitor_schedule"),
			StaleAfter:      v.GetDuration("worker.stale_after"),
		},
		Fetch: RetryConfig{
			Attempts:  v.GetInt("fetch.attempts"),
			BaseDelay: v.GetDuration("fetch.base_delay"),
			Timeout:   v.GetDuration("fetch.timeout"),
		},
		Webhook: WebhookConfig{
			RetryConfig: RetryConfig{
				Attempts:  v.GetInt("webhook.attempts"),
				BaseDelay: v.GetDuration("webhook.base_delay"),
				Timeout:   v.GetDuration("webhook.timeout"),
			},
			UserAgent: v.GetString("webhook.user_agent"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin: v.GetInt("ratelimit.submit_per_min"),
		},
		Defaults: Defaults{
			TTSVolume:           v.GetFloat64("defaults.tts_volume"),
			AudioVolume:         v.GetFloat64("defaults.audio_volume"),
			MusicVolume:         v.GetFloat64("defaults.music_volume"),
			MusicLoop:           v.GetBool("defaults.music_loop"),
			CrossfadeDuration:   v.GetFloat64("defaults.crossfade_duration"),
			DuckingFadeDuration: v.GetFloat64("defaults.ducking_fade_duration"),
			VoiceID:             v.GetString("defaults.voice_id"),
			Engine:              v.GetString("defaults.engine"),
			TextType:            v.GetString("defaults.text_type"),
			Preset:              v.GetString("defaults.preset"),
		},
	}

	return cfg, nil
}

// RunsAPI reports whether this process serves HTTP.
func (c *Config) RunsAPI() bool {
	return c.Server.Mode == "" || c.Server.Mode == "all" || c.Server.Mode == "api"
}

// RunsWorker reports whether this process consumes the queue.
func (c *Config) RunsWorker() bool {
	return c.Server.Mode == "" || c.Server.Mode == "all" || c.Server.Mode == "worker"
}
