package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Secrets are the REDCap project credentials kept out of the command line
type Secrets struct {
	APIKey string `mapstructure:"api_key"`
	URL    string `mapstructure:"url"`
}

// LoadSecrets reads a JSON secrets file of the form {"api_key": "...", "url": "..."}
func LoadSecrets(path string) (*Secrets, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}

	var s Secrets
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode secrets file %s: %w", path, err)
	}

	if s.APIKey == "" || s.URL == "" {
		return nil, errors.New("failed to load " + path + " - did you fill in your REDCap project's API key and URL?")
	}
	return &s, nil
}
