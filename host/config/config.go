// Package config holds the environment variable names the host tools read
// and loads them from an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables recognised by the host tools
const (
	EnvPort          = "ARMLINK_PORT"
	EnvBaud          = "ARMLINK_BAUD"
	EnvTimeoutFactor = "ARMLINK_TIMEOUT_FACTOR"
	EnvLegacyTag     = "ARMLINK_LEGACY_TAG"
	EnvLogLevel      = "ARMLINK_LOG_LEVEL"

	EnvMQTTBroker   = "ARMLINK_MQTT_BROKER"
	EnvMQTTClientID = "ARMLINK_MQTT_CLIENT_ID"
	EnvMQTTUsername = "ARMLINK_MQTT_USERNAME"
	EnvMQTTPassword = "ARMLINK_MQTT_PASSWORD"
	EnvTopicPrefix  = "ARMLINK_TOPIC_PREFIX"
	EnvPollInterval = "ARMLINK_POLL_INTERVAL"
)

// DefaultEnvFile is loaded when no file is named explicitly
const DefaultEnvFile = ".env"

// LoadDotEnv loads variables from the given files (DefaultEnvFile when none
// are given) without overriding variables already set in the process
// environment. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}
