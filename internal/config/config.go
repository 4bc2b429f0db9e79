// Package config loads runtime settings for the redblack command and reads
// and writes key files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/secmsg/redblack-go/pkg/redblack"
)

// Config holds settings read from the environment.
type Config struct {
	KeyFile    string `env:"REDBLACK_KEY_FILE" env-default:"redblack.key.json"`
	LogLevel   string `env:"REDBLACK_LOG_LEVEL" env-default:"info"`
	LogFormat  string `env:"REDBLACK_LOG_FORMAT" env-default:"text"`
	ListenAddr string `env:"REDBLACK_LISTEN_ADDR" env-default:"127.0.0.1:8080"`
}

// Load reads Config from the environment. When envFile is set it is loaded
// first and must exist; otherwise a .env file in the working directory is
// used if present. Variables already set in the environment take precedence.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		path, err := SecurePath(envFile)
		if err != nil {
			return nil, fmt.Errorf("secure path: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, nil
}

// SecurePath validates that a file path doesn't escape the working directory
// and returns its absolute form.
func SecurePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	base, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	rel, err := filepath.Rel(base, absPath)
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes working directory", path)
	}
	return absPath, nil
}

// LoadKeyPair reads a KeyPair JSON document. The public key is recomputed
// from the private key and must match when present.
func LoadKeyPair(path string) (redblack.KeyPair, error) {
	absPath, err := SecurePath(path)
	if err != nil {
		return redblack.KeyPair{}, fmt.Errorf("secure path: %w", err)
	}
	data, err := os.ReadFile(absPath) // #nosec G304 -- absPath validated by SecurePath
	if err != nil {
		return redblack.KeyPair{}, fmt.Errorf("read file: %w", err)
	}
	defer redblack.ZeroizeBytes(data)

	var kp redblack.KeyPair
	if err := json.Unmarshal(data, &kp); err != nil {
		return redblack.KeyPair{}, fmt.Errorf("unmarshal JSON: %w", err)
	}
	pub, err := redblack.PublicKeyFromPrivate(kp.PrivateKey)
	if err != nil {
		return redblack.KeyPair{}, err
	}
	if kp.PublicKey != "" && !strings.EqualFold(kp.PublicKey, pub) {
		return redblack.KeyPair{}, errors.New("public key does not match private key")
	}
	kp.PublicKey = pub
	return kp, nil
}

// SaveKeyPair writes kp as JSON, readable only by the owner. An existing file
// is not overwritten.
func SaveKeyPair(path string, kp redblack.KeyPair) error {
	absPath, err := SecurePath(path)
	if err != nil {
		return fmt.Errorf("secure path: %w", err)
	}
	data, err := json.MarshalIndent(kp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	defer redblack.ZeroizeBytes(data)

	f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) // #nosec G304 -- absPath validated by SecurePath
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return f.Close()
}
