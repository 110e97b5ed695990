package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the hiring platform service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LiveKit   LiveKitConfig   `mapstructure:"livekit"`
	Interview InterviewConfig `mapstructure:"interview"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles a connection string from the individual fields unless an
// explicit url is configured.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// LiveKitConfig contains the real-time room service credentials.
// All three values must be present (and not placeholders) for interviews to
// run in live mode; anything less falls back to demo mode, which is a valid
// configuration rather than an error. The actual check lives in the
// interview package (session initializer).
type LiveKitConfig struct {
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// InterviewConfig contains interview session settings
type InterviewConfig struct {
	Questions        []string           `mapstructure:"questions"`
	QuestionInterval time.Duration      `mapstructure:"question_interval"`
	SessionTTL       time.Duration      `mapstructure:"session_ttl"`
	CleanupCron      string             `mapstructure:"cleanup_cron"`
	NextStage        string             `mapstructure:"next_stage"`
	Audio            AudioCaptureConfig `mapstructure:"audio"`
	Video            VideoCaptureConfig `mapstructure:"video"`
}

// AudioCaptureConfig holds desired local microphone capture parameters.
type AudioCaptureConfig struct {
	SampleRate  int `mapstructure:"sample_rate"`
	Channels    int `mapstructure:"channels"`
	BitrateKbps int `mapstructure:"bitrate_kbps"`
}

// VideoCaptureConfig holds desired local camera capture parameters.
type VideoCaptureConfig struct {
	Width       int `mapstructure:"width"`
	Height      int `mapstructure:"height"`
	Framerate   int `mapstructure:"framerate"`
	BitrateKbps int `mapstructure:"bitrate_kbps"`
}

func (i InterviewConfig) Validate() error {
	if len(i.Questions) == 0 {
		return fmt.Errorf("interview.questions must not be empty")
	}
	if i.QuestionInterval <= 0 {
		return fmt.Errorf("interview.question_interval must be > 0")
	}
	return nil
}

// ChatConfig contains the assistant API settings
type ChatConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	AppName  string        `mapstructure:"app_name"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// UploadsConfig controls resume upload handling
type UploadsConfig struct {
	Dir               string   `mapstructure:"dir"`
	MaxBytes          int64    `mapstructure:"max_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

func (u UploadsConfig) Normalize() UploadsConfig {
	if u.Dir == "" {
		u.Dir = "uploads"
	}
	if u.MaxBytes <= 0 {
		u.MaxBytes = 5 << 20
	}
	if len(u.AllowedExtensions) == 0 {
		u.AllowedExtensions = []string{".pdf", ".doc", ".docx"}
	}
	return u
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("general.listen", ":5090")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("livekit.token_ttl", time.Hour)
	viper.SetDefault("interview.questions", DefaultQuestions)
	viper.SetDefault("interview.question_interval", 30*time.Second)
	viper.SetDefault("interview.session_ttl", 45*time.Minute)
	viper.SetDefault("interview.cleanup_cron", "@hourly")
	viper.SetDefault("interview.next_stage", "hr")
	viper.SetDefault("interview.audio.sample_rate", 48000)
	viper.SetDefault("interview.audio.channels", 1)
	viper.SetDefault("interview.audio.bitrate_kbps", 64)
	viper.SetDefault("interview.video.width", 1280)
	viper.SetDefault("interview.video.height", 720)
	viper.SetDefault("interview.video.framerate", 30)
	viper.SetDefault("interview.video.bitrate_kbps", 1500)
	viper.SetDefault("chat.app_name", "onboardly")
	viper.SetDefault("chat.timeout", 30*time.Second)

	if path == "" {
		viper.AddConfigPath("./app/config") // path to look for the config file in
		viper.AddConfigPath("./config")     // path to look for the config file in
		viper.AddConfigPath(".")            // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ONBOARDLY")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (ONBOARDLY_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// unmarshal config
	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Uploads = config.Uploads.Normalize()

	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Interview.Validate(); err != nil {
		panic(err)
	}
	return &config
}

// DefaultQuestions is the fixed interview script used when no custom list is
// configured. Mirrors the question set the avatar agent is prompted with.
var DefaultQuestions = []string{
	"Tell me about yourself and your professional background.",
	"Can you describe a challenging project you worked on and how you overcame the obstacles?",
	"How do you stay updated with the latest technologies in your field?",
	"Describe a time when you had to work with a difficult team member. How did you handle it?",
	"Where do you see yourself in the next 5 years?",
	"What interests you most about this position and our company?",
}
