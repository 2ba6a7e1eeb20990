// Package config loads the tool configuration from config files, dotenv
// files and the environment.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem every component shares; tests swap in a MemMapFs.
var AppFs = afero.NewOsFs()

// Config holds the application configuration.
type Config struct {
	DatabaseURL   string
	MigrationsDir string
	Debug         bool
}

// Load resolves configuration in precedence order: environment variables
// (DBKEEPER_*), .env.local, .env, then .dbkeeper.yaml found in the working
// directory, $HOME, or ~/.config/dbkeeper.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName(".dbkeeper")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "dbkeeper"))

	viper.SetEnvPrefix("DBKEEPER")
	viper.AutomaticEnv()

	viper.SetDefault("migrations_dir", "migrations")
	viper.SetDefault("debug", false)

	// A missing config file is fine; defaults and env cover it.
	_ = viper.ReadInConfig()

	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	cfg := &Config{
		DatabaseURL:   viper.GetString("database_url"),
		MigrationsDir: viper.GetString("migrations_dir"),
		Debug:         viper.GetBool("debug"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// Save writes the configuration to ~/.config/dbkeeper/.dbkeeper.yaml.
func Save(cfg *Config) error {
	viper.Set("database_url", cfg.DatabaseURL)
	viper.Set("migrations_dir", cfg.MigrationsDir)
	viper.Set("debug", cfg.Debug)

	home, err := homedir.Dir()
	if err != nil {
		return err
	}
	configDir := filepath.Join(home, ".config", "dbkeeper")
	if err := AppFs.MkdirAll(configDir, 0o755); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(configDir, ".dbkeeper.yaml"))
}
