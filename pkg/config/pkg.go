package config

import (
	"os"

	"github.com/apex/log"
)

// DefaultDotenvPath is where the staging daemon looks for its dotenv file
// when STAGING_DOTENV_PATH isn't set.
const DefaultDotenvPath = "/etc/staging/staging.env"

var configer Configer = &DotenvConfig{}

func SetConfig(c Configer) {
	configer = c
}

func GetConfig() Configer {
	return configer
}

// MustLoadFromStagingDotenv loads the daemon configuration from the dotenv
// file at STAGING_DOTENV_PATH (or DefaultDotenvPath) and installs it as the
// package-level config. Exits on a missing or unreadable file.
func MustLoadFromStagingDotenv() Configer {
	path := os.Getenv("STAGING_DOTENV_PATH")
	if path == "" {
		path = DefaultDotenvPath
	}

	c := NewDotenvConfig(path)
	if err := c.Load(); err != nil {
		log.Fatalf("Unable to load dotenv file %s: %s", path, err)
	}

	SetConfig(c)
	return c
}

func LoadFromPath(path string) error {
	return configer.LoadFromPath(path)
}

func Load() error {
	return configer.Load()
}

func GetKey(key string) string {
	return configer.GetKey(key)
}

func MustGetKey(key string) string {
	return configer.MustGetKey(key)
}

func GetKeyWithDefault(key, defaultValue string) string {
	return configer.GetKeyWithDefault(key, defaultValue)
}

func GetIntKey(key string) int {
	return configer.GetIntKey(key)
}

func MustGetIntKey(key string) int {
	return configer.MustGetIntKey(key)
}

func GetIntKeyWithDefault(key string, defaultValue int) int {
	return configer.GetIntKeyWithDefault(key, defaultValue)
}
