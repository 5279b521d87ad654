package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	// Telephony provider REST API (call control, recordings).
	ProviderBaseUrl               string `mapstructure:"provider_base_url"                validate:"required"`
	ProviderAccountSid            string `mapstructure:"provider_account_sid"             validate:"required"`
	ProviderAuthToken             string `mapstructure:"provider_auth_token"              validate:"required"`
	ProviderTimeout               int    `mapstructure:"provider_timeout"`
	ProviderRetryMaxAttempts      uint   `mapstructure:"provider_retry_max_attempts"`
	ProviderRetryBackoffMin       int    `mapstructure:"provider_retry_backoff_min"`
	ProviderRetryBackoffMax       int    `mapstructure:"provider_retry_backoff_max"`
	ProviderIntervalCB            uint32 `mapstructure:"provider_interval_cb"`
	ProviderConsecutiveFailuresCB uint32 `mapstructure:"provider_consecutive_failures_cb"`

	// Intelligence service (diarized transcripts, operator results).
	IntelligenceBaseUrl    string `mapstructure:"intelligence_base_url"    validate:"required"`
	IntelligenceServiceSid string `mapstructure:"intelligence_service_sid" validate:"required"`

	RecordingStatusCallbackUrl string `mapstructure:"recording_status_callback_url" validate:"required"`

	// Channel-role classification.
	BusinessPhoneNumbers string `mapstructure:"business_phone_numbers" validate:"required"`

	// Transcript pipeline.
	AutoProcessTranscripts    bool    `mapstructure:"auto_process_transcripts"`
	TranscriptPollInterval    int     `mapstructure:"transcript_poll_interval"`
	TranscriptPollMaxAttempts int     `mapstructure:"transcript_poll_max_attempts"`
	TranscriptWordGapSeconds  float64 `mapstructure:"transcript_word_gap_seconds"`
	TranscriptRedriveInterval int     `mapstructure:"transcript_redrive_interval"`
	TranscriptRedriveLimit    int     `mapstructure:"transcript_redrive_limit"`
	TranscriptRedriveMaxRuns  int     `mapstructure:"transcript_redrive_max_runs"`
	TranscriptRedrivePoolSize int     `mapstructure:"transcript_redrive_pool_size"`

	// Generative insight synthesis. Empty key downgrades to the heuristic path.
	OpenAIAPIKey             string `mapstructure:"openai_api_key"`
	OpenAIBaseUrl            string `mapstructure:"openai_base_url"`
	OpenAIModel              string `mapstructure:"openai_model"`
	OpenAITimeout            int    `mapstructure:"openai_timeout"`
	OpenAIRetryMaxAttempts   uint   `mapstructure:"openai_retry_max_attempts"`
	OpenAIRetryBackoffMin    int    `mapstructure:"openai_retry_backoff_min"`
	OpenAIRetryBackoffMax    int    `mapstructure:"openai_retry_backoff_max"`
	OpenAIIntervalCB         uint32 `mapstructure:"openai_interval_cb"`
	OpenAIConsecutiveFailsCB uint32 `mapstructure:"openai_consecutive_failures_cb"`

	// Flat ASR fallback model (OpenAI-compatible transcription endpoint).
	ASRModel string `mapstructure:"asr_model"`

	PostgresHost            string `mapstructure:"postgres_host"     validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username" validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password" validate:"required"`
	PostgresPort            string `mapstructure:"postgres_port"     validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database" validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	// Optional processed-call event publisher. Empty bootstrap disables it.
	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"`
	KafkaUsername              string `mapstructure:"kafka_username"`
	KafkaPassword              string `mapstructure:"kafka_password"`
	KafkaCallProcessedTopic    string `mapstructure:"kafka_call_processed_topic"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	// Optional recording audio archive. Empty endpoint disables it.
	MinioEndpointURL            string `mapstructure:"minio_endpoint_url"`
	MinioAccessKey              string `mapstructure:"minio_access_key"`
	MinioSecretKey              string `mapstructure:"minio_secret_key"`
	MinioBucketName             string `mapstructure:"minio_bucket_name"`
	MinioPathPrefix             string `mapstructure:"minio_path_prefix"`
	MinioMaxRetryAttempts       uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMinSeconds int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMaxSeconds int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioTimeout                int    `mapstructure:"minio_timeout"`
	MinioIntervalCB             uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB  uint32 `mapstructure:"minio_consecutive_failures_cb"`

	WebhookPort    string `mapstructure:"webhook_port"`
	WebhookTimeout int    `mapstructure:"webhook_timeout"`

	PoolSize int `mapstructure:"pool_size"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	HealthCheckerMonitorInterval int    `mapstructure:"health_checker_monitor_interval"`
	HealthCheckerSampleCallSid   string `mapstructure:"health_checker_sample_call_sid"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	return nil
}

// Validate enforces required settings. It is called from main rather than
// init so packages can be imported without a fully configured environment.
func Validate() error {
	return validator.New().Struct(&Conf)
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("PROVIDER_TIMEOUT", "30")
	viper.SetDefault("PROVIDER_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("PROVIDER_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("PROVIDER_RETRY_BACKOFF_MAX", "10")
	viper.SetDefault("PROVIDER_INTERVAL_CB", "30")
	viper.SetDefault("PROVIDER_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("AUTO_PROCESS_TRANSCRIPTS", "false")
	viper.SetDefault("TRANSCRIPT_POLL_INTERVAL", "5")
	viper.SetDefault("TRANSCRIPT_POLL_MAX_ATTEMPTS", "24")
	viper.SetDefault("TRANSCRIPT_WORD_GAP_SECONDS", "1.5")
	viper.SetDefault("TRANSCRIPT_REDRIVE_INTERVAL", "5")
	viper.SetDefault("TRANSCRIPT_REDRIVE_LIMIT", "50")
	viper.SetDefault("TRANSCRIPT_REDRIVE_MAX_RUNS", "6")
	viper.SetDefault("TRANSCRIPT_REDRIVE_POOL_SIZE", "3")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_TIMEOUT", "60")
	viper.SetDefault("OPENAI_RETRY_MAX_ATTEMPTS", "2")
	viper.SetDefault("OPENAI_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("OPENAI_RETRY_BACKOFF_MAX", "10")
	viper.SetDefault("OPENAI_INTERVAL_CB", "60")
	viper.SetDefault("OPENAI_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("ASR_MODEL", "whisper-1")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("KAFKA_CALL_PROCESSED_TOPIC", "crm.call.processed")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("WEBHOOK_PORT", "8088")
	viper.SetDefault("WEBHOOK_TIMEOUT", "15")
	viper.SetDefault("POOL_SIZE", "10")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}

// BusinessNumbers returns the configured business phone numbers as a slice.
func (c *Config) BusinessNumbers() []string {
	parts := strings.Split(c.BusinessPhoneNumbers, ",")

	numbers := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			numbers = append(numbers, p)
		}
	}

	return numbers
}
