package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spigell/excel-interviewer/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "excel-interviewer"
)

type Config struct {
	QuestionsFile string           `mapstructure:"questions-file"`
	Store         *StoreConfig     `mapstructure:"store"`
	Artifact      *ArtifactConfig  `mapstructure:"artifact"`
	Interview     *InterviewConfig `mapstructure:"interview"`
	Judge         *JudgeConfig     `mapstructure:"judge"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type ArtifactConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max-bytes"`
	MaxCells int    `mapstructure:"max-cells"`
}

type InterviewConfig struct {
	MaxTurns          int     `mapstructure:"max-turns"`
	FollowUpThreshold float64 `mapstructure:"follow-up-threshold"`
	InactivityMinutes int     `mapstructure:"inactivity-minutes"`
}

type JudgeConfig struct {
	Mode                string        `mapstructure:"mode"`
	TimeoutMs           int           `mapstructure:"timeout-ms"`
	WeightDeterministic float64       `mapstructure:"weight-deterministic"`
	ConfidenceTolerance float64       `mapstructure:"confidence-tolerance"`
	Gemini              *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "excel-interviewer conducts adaptive spreadsheet-skills interviews in the terminal",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("judge.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is excel-interviewer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Secrets like GEMINI_API_KEY_FILE may live in a local .env file.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// A missing default config is fine, every option has a default. An
	// unparseable one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}

	if config.Store == nil {
		config.Store = &StoreConfig{}
	}
	if config.Artifact == nil {
		config.Artifact = &ArtifactConfig{}
	}
	if config.Interview == nil {
		config.Interview = &InterviewConfig{}
	}
	if config.Judge == nil {
		config.Judge = &JudgeConfig{}
	}
	if config.Judge.Gemini == nil {
		config.Judge.Gemini = &GeminiConfig{}
	}
	if config.QuestionsFile == "" {
		config.QuestionsFile = "questions.yaml"
	}

	return config, nil
}

func newStore(config *Config) (store.Store, error) {
	switch config.Store.Driver {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		path := config.Store.Path
		if path == "" {
			path = app + ".db"
		}
		return store.NewSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", config.Store.Driver)
	}
}

func (c *InterviewConfig) inactivityTimeout() time.Duration {
	return time.Duration(c.InactivityMinutes) * time.Minute
}
