// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	strs "idledger/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// Node configures a ledger node.
type Node struct {
	Name        string
	GenesisFile string
	// Storage is "memory" or "postgres".
	Storage string
	// Ordering is "local" or "kafka".
	Ordering      string
	OrderingTopic string
	ReplyWait     time.Duration
}

type Postgres struct {
	DSN      string
	MaxConns int32
}

// RedisConfig is used by agents that keep links in Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

type Kafka struct {
	Brokers  []string
	ClientID string
}

// Agent configures an agent process.
type Agent struct {
	Name            string
	Seed            string
	Endpoint        string
	NodeURL         string
	PollInterval    time.Duration
	PollDeadline    time.Duration
	RequestDeadline time.Duration
	InvitationDir   string
}

type Circuit struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// Config is everything cmd/node and cmd/agent read at startup.
type Config struct {
	Server   Server
	Node     Node
	Postgres Postgres
	Redis    RedisConfig
	Kafka    Kafka
	Agent    Agent
	Circuit  Circuit
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}
	integer := func(key string, def int) int {
		n, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}

	cfg := Config{
		Server: Server{
			Addr:            getEnv("IDLEDGER_ADDR", ":8080"),
			ShutdownTimeout: duration("IDLEDGER_SHUTDOWN_TIMEOUT", 10*time.Second),
			LogLevel:        getEnv("IDLEDGER_LOG_LEVEL", "info"),
			LogFormat:       getEnv("IDLEDGER_LOG_FORMAT", "json"),
		},
		Node: Node{
			Name:          getEnv("NODE_NAME", "node1"),
			GenesisFile:   os.Getenv("NODE_GENESIS_FILE"),
			Storage:       getEnv("NODE_STORAGE", "memory"),
			Ordering:      getEnv("NODE_ORDERING", "local"),
			OrderingTopic: getEnv("NODE_ORDERING_TOPIC", "idledger.txns"),
			ReplyWait:     duration("NODE_REPLY_WAIT", 2*time.Second),
		},
		Postgres: Postgres{
			DSN:      os.Getenv("POSTGRES_DSN"),
			MaxConns: int32(integer("POSTGRES_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "idledger"),
		},
		Kafka: Kafka{
			Brokers:  strs.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			ClientID: getEnv("KAFKA_CLIENT_ID", "idledger"),
		},
		Agent: Agent{
			Name:            getEnv("AGENT_NAME", "agent"),
			Seed:            os.Getenv("AGENT_SEED"),
			Endpoint:        os.Getenv("AGENT_ENDPOINT"),
			NodeURL:         getEnv("AGENT_NODE_URL", "http://localhost:8080"),
			PollInterval:    duration("AGENT_POLL_INTERVAL", 250*time.Millisecond),
			PollDeadline:    duration("AGENT_POLL_DEADLINE", 10*time.Second),
			RequestDeadline: duration("AGENT_REQUEST_DEADLINE", 2*time.Minute),
			InvitationDir:   getEnv("AGENT_INVITATION_DIR", "."),
		},
		Circuit: Circuit{
			FailureThreshold: integer("CIRCUIT_FAILURE_THRESHOLD", 5),
			SuccessThreshold: integer("CIRCUIT_SUCCESS_THRESHOLD", 1),
			Cooldown:         duration("CIRCUIT_COOLDOWN", 30*time.Second),
		},
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Node.Storage {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("NODE_STORAGE=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown NODE_STORAGE %q", c.Node.Storage)
	}
	switch c.Node.Ordering {
	case "local":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("NODE_ORDERING=kafka requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown NODE_ORDERING %q", c.Node.Ordering)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
