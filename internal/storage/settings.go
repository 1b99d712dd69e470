package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyScriptURL is returned when an empty endpoint URL is saved
	ErrEmptyScriptURL = errors.New("script URL is required")

	// ErrInvalidScriptURL is returned when the endpoint URL is not accepted
	ErrInvalidScriptURL = errors.New("invalid script URL")
)

// Settings holds the operator-supplied action endpoint
type Settings struct {
	kv            KeyValueStore
	allowedPrefix string
}

// NewSettings creates settings backed by kv. URLs saved through
// SetScriptURL must start with allowedPrefix unless it is empty.
func NewSettings(kv KeyValueStore, allowedPrefix string) *Settings {
	return &Settings{kv: kv, allowedPrefix: allowedPrefix}
}

// ScriptURL returns the configured action endpoint, or "" when unset
func (s *Settings) ScriptURL(ctx context.Context) (string, error) {
	var u string
	if _, err := GetJSON(ctx, s.kv, KeyScriptURL, &u); err != nil {
		return "", err
	}
	return u, nil
}

// SetScriptURL validates and stores the action endpoint
func (s *Settings) SetScriptURL(ctx context.Context, raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", ErrEmptyScriptURL
	}
	if s.allowedPrefix != "" && !strings.HasPrefix(u, s.allowedPrefix) {
		return "", fmt.Errorf("%w: must start with %s", ErrInvalidScriptURL, s.allowedPrefix)
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: %s", ErrInvalidScriptURL, u)
	}
	if err := SetJSON(ctx, s.kv, KeyScriptURL, u); err != nil {
		return "", err
	}
	return u, nil
}

// SeedScriptURL stores u when no endpoint has been configured yet.
// The allowed prefix is not enforced for seeded values.
func (s *Settings) SeedScriptURL(ctx context.Context, u string) error {
	u = strings.TrimSpace(u)
	if u == "" {
		return nil
	}
	current, err := s.ScriptURL(ctx)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return SetJSON(ctx, s.kv, KeyScriptURL, u)
}
