package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port              int           `env:"PORT,default=8080"`
	DBPath            string        `env:"MENUROOM_DB_PATH,default=./data/menuroom.db"`
	Store             string        `env:"MENUROOM_STORE,default=sqlite"`
	MongoURI          string        `env:"MENUROOM_MONGO_URI"`
	MongoDatabase     string        `env:"MENUROOM_MONGO_DATABASE,default=menuroom"`
	CatalogSeed       string        `env:"MENUROOM_CATALOG_SEED"`
	AllowedOrigins    string        `env:"MENUROOM_ALLOWED_ORIGINS,default=*"`
	AutosaveInterval  time.Duration `env:"MENUROOM_AUTOSAVE_INTERVAL,default=5m"`
	AutosaveKeep      int           `env:"MENUROOM_AUTOSAVE_KEEP,default=20"`
	MessagesPerSecond float64       `env:"MENUROOM_MESSAGES_PER_SECOND,default=20"`
	MessageBurst      int           `env:"MENUROOM_MESSAGE_BURST,default=40"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
}

// Load reads envFile when it exists, then the process environment. Values
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MENUROOM_MONGO_URI is required when MENUROOM_STORE=mongo")
		}
	default:
		return fmt.Errorf("unknown MENUROOM_STORE %q", c.Store)
	}
	if c.AutosaveInterval <= 0 {
		return errors.New("MENUROOM_AUTOSAVE_INTERVAL must be positive")
	}
	if c.MessagesPerSecond <= 0 || c.MessageBurst <= 0 {
		return errors.New("message rate and burst must be positive")
	}
	return nil
}

func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
