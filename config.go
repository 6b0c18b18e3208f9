package pusher

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the connection parameters for a Client (spec.md §6's
// Configuration surface).
type Config struct {
	// Key is the Pusher application key.
	Key string
	// Insecure selects ws:// and port 80 instead of wss:// and port 443.
	// The zero value (false) defaults to the encrypted endpoint.
	Insecure bool
	// EndpointString, when set, overrides the constructed endpoint URL
	// entirely (used by tests to point at a fake server).
	EndpointString string
}

type yamlConfig struct {
	Key            string `yaml:"key"`
	Insecure       bool   `yaml:"insecure"`
	EndpointString string `yaml:"endpoint_string"`
}

// ConfigFromYAML decodes a Config from YAML, e.g. a checked-in application
// config file. The "key" field is required.
func ConfigFromYAML(r io.Reader) (Config, error) {
	var y yamlConfig
	if err := yaml.NewDecoder(r).Decode(&y); err != nil {
		return Config{}, fmt.Errorf("pusher: decoding yaml config: %w", err)
	}
	if y.Key == "" {
		return Config{}, fmt.Errorf("pusher: yaml config missing required %q field", "key")
	}
	return Config{Key: y.Key, Insecure: y.Insecure, EndpointString: y.EndpointString}, nil
}

// ConfigFromEnv builds a Config from PUSHER_KEY / PUSHER_INSECURE /
// PUSHER_ENDPOINT environment variables. If envFile is non-empty, it is
// loaded via godotenv before the environment is read, for local
// development convenience.
func ConfigFromEnv(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("pusher: loading env file %q: %w", envFile, err)
		}
	}
	key := os.Getenv("PUSHER_KEY")
	if key == "" {
		return Config{}, fmt.Errorf("pusher: PUSHER_KEY is not set")
	}
	return Config{
		Key:            key,
		Insecure:       os.Getenv("PUSHER_INSECURE") == "true",
		EndpointString: os.Getenv("PUSHER_ENDPOINT"),
	}, nil
}
