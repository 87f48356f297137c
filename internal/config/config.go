// Package config loads billy-bassistant configuration from the environment.
// Values come from the process environment (optionally seeded from a .env
// file by cmd/billy) with defaults matching the stock hardware setup.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	Server struct {
		Port        string
		MetricsPort string
		LogLevel    string
	}
	OpenAI struct {
		APIKey string
		Model  string
		Voice  string
	}
	Audio struct {
		ChunkMS          int
		SampleRate       int
		SilenceThreshold float64
		MicTimeout       time.Duration
		TextOnly         bool
		SoundsDir        string
		SongsDir         string
		Volume           float64
	}
	Motor struct {
		Backend      string // "log" or "null"
		Profile      string // "modern", "classic" or "legacy"
		Articulation float64
		Smoothing    float64
	}
	MQTT struct {
		Host     string
		Port     int
		Username string
		Password string
	}
	HomeAssistant struct {
		URL      string
		Token    string
		Language string
	}
	Personality struct {
		Path        string
		AllowUpdate bool
	}
}

// Load reads configuration from the environment with defaults.
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.metrics_port", "9091")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("openai.model", "gpt-4o-mini-realtime-preview")
	v.SetDefault("openai.voice", "ash")

	v.SetDefault("audio.chunk_ms", 50)
	v.SetDefault("audio.sample_rate", 24000)
	v.SetDefault("audio.silence_threshold", 2000)
	v.SetDefault("audio.mic_timeout_seconds", 5)
	v.SetDefault("audio.sounds_dir", "sounds")
	v.SetDefault("audio.songs_dir", "songs")
	v.SetDefault("audio.volume", 1.0)

	v.SetDefault("motor.backend", "log")
	v.SetDefault("motor.profile", "modern")
	v.SetDefault("motor.articulation", 5)
	v.SetDefault("motor.smoothing", 1.0)

	v.SetDefault("ha.url", "http://localhost:8123")
	v.SetDefault("ha.language", "en")

	v.SetDefault("personality.path", "persona.ini")
	v.SetDefault("personality.allow_update", true)

	// Map envs
	v.BindEnv("server.port", "WEB_PORT")
	v.BindEnv("server.metrics_port", "METRICS_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("openai.model", "OPENAI_MODEL")
	v.BindEnv("openai.voice", "VOICE")

	v.BindEnv("audio.chunk_ms", "CHUNK_MS")
	v.BindEnv("audio.silence_threshold", "SILENCE_THRESHOLD")
	v.BindEnv("audio.mic_timeout_seconds", "MIC_TIMEOUT_SECONDS")
	v.BindEnv("audio.text_only", "TEXT_ONLY_MODE")
	v.BindEnv("audio.sounds_dir", "SOUNDS_DIR")
	v.BindEnv("audio.songs_dir", "SONGS_DIR")
	v.BindEnv("audio.volume", "PLAYBACK_VOLUME")

	v.BindEnv("motor.backend", "MOTOR_BACKEND")
	v.BindEnv("motor.profile", "BILLY_PINS")
	v.BindEnv("motor.articulation", "MOUTH_ARTICULATION")
	v.BindEnv("motor.smoothing", "MOUTH_SMOOTHING")

	v.BindEnv("mqtt.host", "MQTT_HOST")
	v.BindEnv("mqtt.port", "MQTT_PORT")
	v.BindEnv("mqtt.username", "MQTT_USERNAME")
	v.BindEnv("mqtt.password", "MQTT_PASSWORD")

	v.BindEnv("ha.url", "HA_URL")
	v.BindEnv("ha.token", "HA_TOKEN")
	v.BindEnv("ha.language", "HA_LANG")

	v.BindEnv("personality.path", "PERSONA_PATH")
	v.BindEnv("personality.allow_update", "ALLOW_UPDATE_PERSONALITY_INI")

	var c Config
	c.Server.Port = v.GetString("server.port")
	c.Server.MetricsPort = v.GetString("server.metrics_port")
	c.Server.LogLevel = v.GetString("server.log_level")

	c.OpenAI.APIKey = v.GetString("openai.api_key")
	c.OpenAI.Model = v.GetString("openai.model")
	c.OpenAI.Voice = v.GetString("openai.voice")

	c.Audio.ChunkMS = v.GetInt("audio.chunk_ms")
	c.Audio.SampleRate = v.GetInt("audio.sample_rate")
	c.Audio.SilenceThreshold = v.GetFloat64("audio.silence_threshold")
	c.Audio.MicTimeout = time.Duration(v.GetInt("audio.mic_timeout_seconds")) * time.Second
	c.Audio.TextOnly = v.GetBool("audio.text_only")
	c.Audio.SoundsDir = v.GetString("audio.sounds_dir")
	c.Audio.SongsDir = v.GetString("audio.songs_dir")
	c.Audio.Volume = v.GetFloat64("audio.volume")

	c.Motor.Backend = v.GetString("motor.backend")
	c.Motor.Profile = v.GetString("motor.profile")
	c.Motor.Articulation = v.GetFloat64("motor.articulation")
	c.Motor.Smoothing = v.GetFloat64("motor.smoothing")

	c.MQTT.Host = v.GetString("mqtt.host")
	c.MQTT.Port = v.GetInt("mqtt.port")
	c.MQTT.Username = v.GetString("mqtt.username")
	c.MQTT.Password = v.GetString("mqtt.password")

	c.HomeAssistant.URL = v.GetString("ha.url")
	c.HomeAssistant.Token = v.GetString("ha.token")
	c.HomeAssistant.Language = v.GetString("ha.language")

	c.Personality.Path = v.GetString("personality.path")
	c.Personality.AllowUpdate = v.GetBool("personality.allow_update")

	return c
}
