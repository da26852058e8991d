// Package config resolves the process environment into a Config value using
// viper, following the same SetDefault/AutomaticEnv bootstrap used by the
// signaling server in this repo's domain sibling.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ICEServer mirrors the wire shape of a WebRTC ICE server entry.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Config is the fully resolved process configuration.
type Config struct {
	CaptureDeviceIndex int
	CaptureSampleRate  int

	ServerHost string
	ServerPort int

	FloorTimeout time.Duration

	ICEServers []ICEServer

	RecordingsDir string

	LogLevel string
	LogFile  string
}

// Load resolves defaults, an optional config file at configFilePath (skipped
// if it does not exist), and environment variables into a Config. A set
// environment variable takes precedence over the config file's value.
func Load(configFilePath string) (Config, error) {
	v := viper.New()

	v.SetDefault("capture.deviceindex", 1)
	v.SetDefault("capture.samplerate", 48000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("floor.timeout", "30s")
	v.SetDefault("ice.stunserver", "stun:stun.l.google.com:19302")
	v.SetDefault("ice.turnserver", "")
	v.SetDefault("ice.turnusername", "")
	v.SetDefault("ice.turnpassword", "")
	v.SetDefault("recordings.dir", "./recordings")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnv(v, "capture.deviceindex", "STREAM_DEVICE_INDEX")
	bindEnv(v, "server.host", "STREAM_HOST")
	bindEnv(v, "server.port", "STREAM_PORT")
	bindEnv(v, "capture.samplerate", "STREAM_SAMPLE_RATE")
	bindEnv(v, "floor.timeout", "PTT_TIMEOUT")
	bindEnv(v, "ice.turnserver", "TURN_SERVER")
	bindEnv(v, "ice.turnusername", "TURN_USERNAME")
	bindEnv(v, "ice.turnpassword", "TURN_PASSWORD")
	bindEnv(v, "recordings.dir", "RECORDINGS_DIR")
	bindEnv(v, "log.level", "LOG_LEVEL")
	bindEnv(v, "log.file", "LOG_FILE")

	if configFilePath != "" {
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	timeout, err := time.ParseDuration(v.GetString("floor.timeout"))
	if err != nil {
		timeout = 30 * time.Second
	}

	cfg := Config{
		CaptureDeviceIndex: v.GetInt("capture.deviceindex"),
		CaptureSampleRate:  v.GetInt("capture.samplerate"),
		ServerHost:         v.GetString("server.host"),
		ServerPort:         v.GetInt("server.port"),
		FloorTimeout:       timeout,
		RecordingsDir:      v.GetString("recordings.dir"),
		LogLevel:           v.GetString("log.level"),
		LogFile:            v.GetString("log.file"),
	}

	cfg.ICEServers = append(cfg.ICEServers, ICEServer{URLs: []string{v.GetString("ice.stunserver")}})
	if turn := v.GetString("ice.turnserver"); turn != "" {
		cfg.ICEServers = append(cfg.ICEServers, ICEServer{
			URLs:       []string{turn},
			Username:   v.GetString("ice.turnusername"),
			Credential: v.GetString("ice.turnpassword"),
		})
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}
