// Package config prepares the Viper instance shared by every command: search
// paths, environment binding and the optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. AWARDS_STORE_API_KEY.
const EnvPrefix = "AWARDS"

// Source describes where settings came from, for the startup log line.
type Source struct {
	ConfigFile string
	DotEnv     string
}

// New returns a Viper instance bound to the environment. When path is empty
// the usual locations are searched for config.yaml and a missing file is not
// an error; an explicit path must exist.
func New(path string) (*viper.Viper, Source, error) {
	var src Source
	loaded, err := LoadDotEnv(".env")
	if err != nil {
		return nil, src, err
	}
	src.DotEnv = loaded

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, src, fmt.Errorf("read config %s: %w", path, err)
		}
		src.ConfigFile = v.ConfigFileUsed()
		return v, src, nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/award-digest/")
	v.AddConfigPath("$HOME/.award-digest")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, src, fmt.Errorf("read config: %w", err)
		}
	} else {
		src.ConfigFile = v.ConfigFileUsed()
	}
	return v, src, nil
}

// LoadDotEnv exports the variables of each existing file without overriding
// variables already set. It returns the files that were read.
func LoadDotEnv(paths ...string) (string, error) {
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return strings.Join(loaded, ","), nil
}
