package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Database drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// Pipeline execution modes
const (
	// ModeInline runs jobs on a worker pool inside the API process
	ModeInline = "inline"
	// ModeQueue publishes jobs to RabbitMQ for worker-service instances
	ModeQueue = "queue"
)

// Interaction counter backends
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// DefaultVideoTopology is the step order of the video job type when none is configured
var DefaultVideoTopology = []string{
	domain.StepValidate,
	domain.StepTranscode,
	domain.StepPin,
	domain.StepMint,
	domain.StepIndex,
}

var knownSteps = map[string]bool{
	domain.StepValidate:  true,
	domain.StepTranscode: true,
	domain.StepPin:       true,
	domain.StepMint:      true,
	domain.StepIndex:     true,
}

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `yaml:"app"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Redis        RedisConfig        `yaml:"redis"`
	Worker       WorkerConfig       `yaml:"worker"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Services     ServicesConfig     `yaml:"services"`
	Interactions InteractionsConfig `yaml:"interactions"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds SQL connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DriverName returns the configured driver, postgres when unset
func (d DatabaseConfig) DriverName() string {
	if d.Driver == "" {
		return DriverPostgres
	}
	return d.Driver
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string `yaml:"name"`
	Durable            bool   `yaml:"durable"`
	AutoDelete         bool   `yaml:"auto_delete"`
	Exclusive          bool   `yaml:"exclusive"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// DefaultLeaseTimeout is how long a job claim stays valid without a heartbeat
const DefaultLeaseTimeout = 2 * time.Minute

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	// ID names this process on job leases; a random id is used when empty
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	QueueSize       int           `yaml:"queue_size"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ResumeOnStart   bool          `yaml:"resume_on_start"`

	LeaseTimeout      time.Duration `yaml:"lease_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// RecoveryInterval is how often running jobs with an expired lease are re-dispatched
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
}

// RetryPolicyConfig bounds the attempts of a pipeline step
type RetryPolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ValidationConfig holds the local limits checked by the validate step
type ValidationConfig struct {
	MaxSizeBytes   int64    `yaml:"max_size_bytes"`
	MaxTitleLength int      `yaml:"max_title_length"`
	MaxTags        int      `yaml:"max_tags"`
	ContentTypes   []string `yaml:"content_types"`
}

// PipelineConfig holds job execution settings
type PipelineConfig struct {
	Mode       string                       `yaml:"mode"`
	Topologies map[string][]string          `yaml:"topologies"`
	Retry      RetryPolicyConfig            `yaml:"retry"`
	StepRetry  map[string]RetryPolicyConfig `yaml:"step_retry"`
	Validation ValidationConfig             `yaml:"validation"`
}

// ExecutionMode returns the configured mode, inline when unset
func (p PipelineConfig) ExecutionMode() string {
	if p.Mode == "" {
		return ModeInline
	}
	return p.Mode
}

// ServiceConfig locates an external collaborator; an empty base_url leaves it unconfigured
type ServiceConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServicesConfig holds the collaborators called by pipeline steps
type ServicesConfig struct {
	Transcoder ServiceConfig `yaml:"transcoder"`
	Pinning    ServiceConfig `yaml:"pinning"`
	Origin     ServiceConfig `yaml:"origin"`
	Indexer    ServiceConfig `yaml:"indexer"`
}

// InteractionsConfig selects the interaction counter backend
type InteractionsConfig struct {
	Backend string `yaml:"backend"`
}

// Load reads and parses the configuration file. ${VAR} references are expanded from
// the environment so secrets can stay in .env.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.Mode == "" {
		c.Pipeline.Mode = ModeInline
	}
	if len(c.Pipeline.Topologies) == 0 {
		c.Pipeline.Topologies = map[string][]string{
			domain.JobTypeVideo: append([]string(nil), DefaultVideoTopology...),
		}
	}
	if c.Interactions.Backend == "" {
		c.Interactions.Backend = BackendMemory
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Worker.LeaseTimeout == 0 {
		c.Worker.LeaseTimeout = DefaultLeaseTimeout
	}
	if c.Worker.HeartbeatInterval == 0 {
		c.Worker.HeartbeatInterval = c.Worker.LeaseTimeout / 3
	}
	if c.Worker.RecoveryInterval == 0 {
		c.Worker.RecoveryInterval = c.Worker.LeaseTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks if the configuration is valid for the API service
func (c *Config) Validate() error {
	return c.ValidateAPIConfig()
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validatePipeline(); err != nil {
		return err
	}

	if err := c.Worker.validateLease(); err != nil {
		return err
	}

	if c.Pipeline.ExecutionMode() == ModeQueue {
		if c.Database.DriverName() == DriverMemory {
			return fmt.Errorf("queue mode requires a shared database, not %q", DriverMemory)
		}
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return c.validateInteractions()
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if err := c.Worker.validateLease(); err != nil {
		return err
	}

	if c.Pipeline.ExecutionMode() != ModeQueue {
		return fmt.Errorf("worker service requires pipeline mode %q", ModeQueue)
	}

	switch c.Database.DriverName() {
	case DriverMemory, DriverSQLite:
		return fmt.Errorf("worker service requires a networked database, not %q", c.Database.DriverName())
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validatePipeline(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

func (w WorkerConfig) validateLease() error {
	if w.LeaseTimeout < 0 || w.HeartbeatInterval < 0 || w.RecoveryInterval < 0 {
		return fmt.Errorf("worker lease settings must not be negative")
	}

	lease := w.LeaseTimeout
	if lease == 0 {
		lease = DefaultLeaseTimeout
	}
	if w.HeartbeatInterval >= lease {
		return fmt.Errorf("worker heartbeat_interval %s must be shorter than lease_timeout %s", w.HeartbeatInterval, lease)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.DriverName() {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
		return nil
	case DriverPostgres, DriverPgx:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.ExecutionMode() {
	case ModeInline, ModeQueue:
	default:
		return fmt.Errorf("unsupported pipeline mode: %q", c.Pipeline.Mode)
	}

	for jobType, steps := range c.Pipeline.Topologies {
		if len(steps) == 0 {
			return fmt.Errorf("pipeline topology %q has no steps", jobType)
		}
		seen := make(map[string]bool, len(steps))
		for _, s := range steps {
			if !knownSteps[s] {
				return fmt.Errorf("pipeline topology %q uses unknown step %q", jobType, s)
			}
			if seen[s] {
				return fmt.Errorf("pipeline topology %q repeats step %q", jobType, s)
			}
			seen[s] = true
		}
	}

	if err := c.Pipeline.Retry.validate("retry"); err != nil {
		return err
	}
	for step, p := range c.Pipeline.StepRetry {
		if !knownSteps[step] {
			return fmt.Errorf("step_retry names unknown step %q", step)
		}
		if err := p.validate("step_retry." + step); err != nil {
			return err
		}
	}

	return nil
}

func (p RetryPolicyConfig) validate(name string) error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("%s max_attempts must not be negative", name)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%s timeout must not be negative", name)
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return fmt.Errorf("%s multiplier must be at least 1", name)
	}
	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return fmt.Errorf("%s base_delay must not exceed max_delay", name)
	}
	return nil
}

func (c *Config) validateInteractions() error {
	switch c.Interactions.Backend {
	case "", BackendMemory:
		return nil
	case BackendSQL:
		if c.Database.DriverName() == DriverMemory {
			return fmt.Errorf("interactions backend %q requires a SQL database", BackendSQL)
		}
		return nil
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for interactions backend %q", BackendRedis)
		}
		return nil
	default:
		return fmt.Errorf("unsupported interactions backend: %q", c.Interactions.Backend)
	}
}
