package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "aido"
	keyringAPIKey  = "openai_api_key"
)

// StoreAPIKey saves key in the OS keyring, where Load finds it when neither
// the environment nor the config file provides one.
func StoreAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingAPIKey
	}
	if err := keyring.Set(keyringService, keyringAPIKey, key); err != nil {
		return fmt.Errorf("store api key in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored key. A missing entry is not an error.
func DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringAPIKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete api key from keyring: %w", err)
	}
	return nil
}

func keyringAPIKeyValue() string {
	v, err := keyring.Get(keyringService, keyringAPIKey)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("keyring unavailable", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(v)
}
