package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type UserConfig struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Avatar      string `mapstructure:"avatar"`
	AvatarColor string `mapstructure:"avatar_color"`
}

type AudioConfig struct {
	SampleRate     int    `mapstructure:"sample_rate"`
	FrameMs        int    `mapstructure:"frame_ms"`
	MicPath        string `mapstructure:"mic_path"`
	OutputPath     string `mapstructure:"output_path"`
	RequireGesture bool   `mapstructure:"require_gesture"`
}

type VADConfig struct {
	Threshold float64       `mapstructure:"threshold"`
	Smoothing float64       `mapstructure:"smoothing"`
	Debounce  time.Duration `mapstructure:"debounce"`
	Hold      time.Duration `mapstructure:"hold"`
	Interval  time.Duration `mapstructure:"interval"`
}

type NoiseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"`
}

type Config struct {
	Mode               string        `mapstructure:"mode"`
	LogLevel           string        `mapstructure:"log_level"`
	ControlPort        int           `mapstructure:"control_port"`
	Secret             string        `mapstructure:"secret"`
	SignalURL          string        `mapstructure:"signal_url"`
	APIURL             string        `mapstructure:"api_url"`
	AuthToken          string        `mapstructure:"auth_token"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	User               UserConfig    `mapstructure:"user"`
	Room               string        `mapstructure:"room"`
	ICEServers         []string      `mapstructure:"ice_servers"`
	Audio              AudioConfig   `mapstructure:"audio"`
	VAD                VADConfig     `mapstructure:"vad"`
	PlaybackRetryDelay time.Duration `mapstructure:"playback_retry_delay"`
	NoiseSuppression   NoiseConfig   `mapstructure:"noise_suppression"`
	MediaTypePolicy    string        `mapstructure:"media_type_policy"`
}

var ErrUserRequired = errors.New("user.id is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("control_port", 8090)
	v.SetDefault("secret", "change-me")
	v.SetDefault("signal_url", "ws://localhost:3000/ws")
	v.SetDefault("api_url", "http://localhost:3000")
	v.SetDefault("auth_token", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("user.id", "")
	v.SetDefault("user.name", "")
	v.SetDefault("user.avatar", "")
	v.SetDefault("user.avatar_color", "")
	v.SetDefault("room", "")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("audio.sample_rate", 8000)
	v.SetDefault("audio.frame_ms", 20)
	v.SetDefault("audio.mic_path", "")
	v.SetDefault("audio.output_path", "")
	v.SetDefault("audio.require_gesture", false)
	v.SetDefault("vad.threshold", 15)
	v.SetDefault("vad.smoothing", 0.3)
	v.SetDefault("vad.debounce", "200ms")
	v.SetDefault("vad.hold", "200ms")
	v.SetDefault("vad.interval", "50ms")
	v.SetDefault("playback_retry_delay", "1s")
	v.SetDefault("noise_suppression.enabled", false)
	v.SetDefault("noise_suppression.mode", "medium")
	v.SetDefault("media_type_policy", "infer")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then CALL_* variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg(".env not loaded")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("CALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("control_port", cfg.ControlPort).
		Str("signal_url", cfg.SignalURL).
		Str("user_id", cfg.User.ID).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.User.ID == "" {
		return ErrUserRequired
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := domain.ParseNoiseMode(c.NoiseSuppression.Mode); err != nil {
		return fmt.Errorf("noise_suppression.mode: %w", err)
	}
	return nil
}

func (c *Config) Policy() (app.MediaTypePolicy, error) {
	return app.ParseMediaTypePolicy(c.MediaTypePolicy)
}
