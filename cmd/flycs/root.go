package main

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/siqueiraa/flycs/pkg/config"
)

const defaultConfigFile = "flycs.yaml"

var (
	cfgFile string
	appCfg  config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:           "flycs",
	Short:         "declarative data pipeline modeling",
	Long:          `flycs loads pipeline and asset definitions, validates them and renders the manifest consumed by the orchestrator.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		appCfg = cfg
		return setupLogging(cfg)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("flycs failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./flycs.yaml when present)")
	rootCmd.PersistentFlags().String("root", "", "project root holding queries/, views/, functions/, procedures/")
	rootCmd.PersistentFlags().String("pipelines", "", "pipeline definitions directory, relative to the root")
	rootCmd.PersistentFlags().StringSlice("env", nil, "environments to resolve schedules for")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (console or json)")
	rootCmd.PersistentFlags().Int("concurrency", 0, "number of files loaded in parallel")

	bindings := map[string]string{
		"project.root":         "root",
		"project.pipelines":    "pipelines",
		"project.environments": "env",
		"log.level":            "log-level",
		"log.format":           "log-format",
		"loader.concurrency":   "concurrency",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			log.Panic().Err(err).Msg("failed to bind flags")
		}
	}

	rootCmd.AddCommand(validateCmd, renderCmd, publishCmd, tablesCmd, avroCmd)
}

// loadConfig reads the config file over the defaults, then applies FLYCS_
// environment variables and flags.
func loadConfig() (config.AppConfig, error) {
	cfg := config.Default()

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	v := viper.GetViper()
	v.SetEnvPrefix("FLYCS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"project.root", "project.pipelines", "log.level", "log.format",
		"catalog.path", "publish.s3.bucket", "publish.s3.region",
		"publish.s3.endpoint", "publish.s3.prefix",
		"publish.s3.accessKey", "publish.s3.secretKey",
	} {
		if err := v.BindEnv(key); err != nil {
			return cfg, err
		}
	}

	overrideString(v, "project.root", &cfg.Project.Root)
	overrideString(v, "project.pipelines", &cfg.Project.Pipelines)
	overrideString(v, "log.level", &cfg.Log.Level)
	overrideString(v, "log.format", &cfg.Log.Format)
	overrideString(v, "catalog.path", &cfg.Catalog.Path)
	overrideString(v, "publish.s3.bucket", &cfg.Publish.S3.Bucket)
	overrideString(v, "publish.s3.region", &cfg.Publish.S3.Region)
	overrideString(v, "publish.s3.endpoint", &cfg.Publish.S3.Endpoint)
	overrideString(v, "publish.s3.prefix", &cfg.Publish.S3.Prefix)
	overrideString(v, "publish.s3.accessKey", &cfg.Publish.S3.AccessKey)
	overrideString(v, "publish.s3.secretKey", &cfg.Publish.S3.SecretKey)
	if v.IsSet("project.environments") {
		if envs := v.GetStringSlice("project.environments"); len(envs) > 0 {
			cfg.Project.Environments = envs
		}
	}
	if v.IsSet("loader.concurrency") && v.GetInt("loader.concurrency") > 0 {
		cfg.Loader.Concurrency = v.GetInt("loader.concurrency")
	}

	return cfg, cfg.Validate()
}

func overrideString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
}

func setupLogging(cfg config.AppConfig) error {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return errors.New("invalid log level " + cfg.Log.Level)
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}
