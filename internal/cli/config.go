package cli

import (
	"os"
	"strings"
	"time"
)

// Config holds CLI configuration
type Config struct {
	ServerURL    string
	Username     string
	Password     string
	PasswordFile string
	Output       string
	Verbose      bool
	Timeout      time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:    getEnvOrDefault("RELAY_SERVER", "http://localhost:3000"),
		Username:     os.Getenv("RELAY_USER"),
		Password:     os.Getenv("RELAY_PASSWORD"),
		PasswordFile: os.Getenv("RELAY_PASSWORD_FILE"),
		Output:       "text",
		Verbose:      false,
		Timeout:      10 * time.Second,
	}
}

// LoadPassword reads the password from the password file if not already set
func (c *Config) LoadPassword() error {
	if c.Password != "" || c.PasswordFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No password file is fine
		}
		return err
	}

	c.Password = strings.TrimRight(string(data), "\r\n")
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
