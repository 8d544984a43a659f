package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config armazena a configuração da aplicação
type Config struct {
	ServerPort  int    `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	StoreDriver string `envconfig:"STORE_DRIVER"` // postgres | memory; vazio = deduz de DATABASE_URL

	FreshnessWindow   time.Duration `envconfig:"FRESHNESS_WINDOW" default:"120s"`
	ChallengeTTL      time.Duration `envconfig:"CHALLENGE_TTL" default:"2m"`
	LoginFailureDelay time.Duration `envconfig:"LOGIN_FAILURE_DELAY" default:"150ms"`
	SessionTTL        time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty   bool     `envconfig:"LOG_PRETTY" default:"false"`
}

// Load carrega a configuração das variáveis de ambiente
func Load(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Driver devolve o backend de armazenamento efetivo
func (c *Config) Driver() string {
	if c.StoreDriver != "" {
		return c.StoreDriver
	}
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}

// Validate rejeita durações não positivas e drivers desconhecidos
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET não pode ser vazio")
	}
	durations := map[string]time.Duration{
		"FRESHNESS_WINDOW":    c.FreshnessWindow,
		"CHALLENGE_TTL":       c.ChallengeTTL,
		"LOGIN_FAILURE_DELAY": c.LoginFailureDelay,
		"SESSION_TTL":         c.SessionTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s deve ser positivo (recebido %s)", name, d)
		}
	}

	switch c.Driver() {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres exige DATABASE_URL")
		}
	default:
		return fmt.Errorf("STORE_DRIVER desconhecido: %q", c.StoreDriver)
	}
	return nil
}
