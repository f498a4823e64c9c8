package main

import (
	"errors"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL    string `envconfig:"MENUCLIENT_URL" default:"ws://localhost:8080/ws"`
	APIURL string `envconfig:"MENUCLIENT_API_URL" default:"http://localhost:8080"`
	Room   string `envconfig:"MENUCLIENT_ROOM"`
	UserID string `envconfig:"MENUCLIENT_USER_ID"`
	// MENUCLIENT_NAME is shown to other members, defaults to the user id
	Name     string `envconfig:"MENUCLIENT_NAME"`
	Colours  bool   `envconfig:"MENUCLIENT_COLOURS" default:"true"`
	LogLevel string `envconfig:"MENUCLIENT_LOG_LEVEL" default:"WARN"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

func (c *Config) Validate() error {
	if c.Room == "" {
		return errors.New("a room is required (--room or MENUCLIENT_ROOM)")
	}
	if c.UserID == "" {
		return errors.New("a user id is required (--user or MENUCLIENT_USER_ID)")
	}
	if c.Name == "" {
		c.Name = c.UserID
	}
	return nil
}
