package config

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func SetDefaults() {
	viper.SetDefault("api.base_url", "https://app.coqui.ai")
	viper.SetDefault("output.format", "plain")
	viper.SetDefault("synthesize.speed", 1.0)
}

// Load reads ~/.coqui/config.yaml (or ./coqui.yaml) plus COQUI_* environment
// variables. A missing config file is fine.
func Load() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.coqui")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("COQUI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			logrus.WithError(err).Warn("failed to read config file")
		}
	}
}
