package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/voxpipe/pkg/logger"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Paths      PathsConfig      `mapstructure:"paths"`
	Audio      AudioConfig      `mapstructure:"audio"`
	Filters    FiltersConfig    `mapstructure:"filters"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	Transcoder TranscoderConfig `mapstructure:"transcoder"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Apprise    AppriseConfig    `mapstructure:"apprise"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type PathsConfig struct {
	// TempDir holds intermediate stage outputs; OutputDir holds deliverables.
	TempDir   string `mapstructure:"temp_dir"`
	OutputDir string `mapstructure:"output_dir"`
}

// AudioConfig describes the canonical PCM form every stage consumes and
// produces, plus the compressed deliverable encoding.
type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	MP3Bitrate string `mapstructure:"mp3_bitrate"`
}

// FiltersConfig holds the tunable parameters for the filter graphs.
type FiltersConfig struct {
	HighpassHz    int     `mapstructure:"highpass_hz"`
	LowpassHz     int     `mapstructure:"lowpass_hz"`
	NoiseReduceDB float64 `mapstructure:"noise_reduce_db"`
	NoiseFloorDB  float64 `mapstructure:"noise_floor_db"`

	ClarityHz      int     `mapstructure:"clarity_hz"`
	ClarityWidthHz int     `mapstructure:"clarity_width_hz"`
	ClarityGainDB  float64 `mapstructure:"clarity_gain_db"`

	LoudnessTargetLUFS float64 `mapstructure:"loudness_target_lufs"`
	LoudnessTruePeak   float64 `mapstructure:"loudness_true_peak"`
	LoudnessRange      float64 `mapstructure:"loudness_range"`

	SilenceThresholdDB float64 `mapstructure:"silence_threshold_db"`
	SilenceMinDuration float64 `mapstructure:"silence_min_duration"`
}

type DownloaderConfig struct {
	// BinPath is the yt-dlp executable.
	BinPath string `mapstructure:"bin_path"`
	// ProbeRateLimitRPM throttles metadata probes (0 = no limit).
	ProbeRateLimitRPM int `mapstructure:"probe_rate_limit_rpm"`
}

type TranscoderConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	// MaxConcurrent bounds the number of transcoding processes spawned at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type PipelineConfig struct {
	// CleanupTemp is the default for requests that do not specify it.
	CleanupTemp bool `mapstructure:"cleanup_temp"`
	// JobTimeoutMinutes caps an entire pipeline run (0 = no limit).
	JobTimeoutMinutes int `mapstructure:"job_timeout_minutes"`
}

type AppriseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Key     string `mapstructure:"key"`
	Tag     string `mapstructure:"tag"`
}

// ChangeCallback is called when config changes.
type ChangeCallback func(old, new *Config)

// Manager handles config loading and hot-reload via polling.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	cfg       *Config
	callbacks []ChangeCallback
	stop      chan struct{}
	stopOnce  sync.Once

	path        string
	lastModTime time.Time
}

// NewManager creates a config manager with hot-reload support.
func NewManager(path string) (*Manager, error) {
	v, cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	var lastMod time.Time
	if stat, err := os.Stat(path); err == nil {
		lastMod = stat.ModTime()
	}

	m := &Manager{
		v:           v,
		cfg:         cfg,
		stop:        make(chan struct{}),
		path:        path,
		lastModTime: lastMod,
	}

	go m.pollForChanges(10 * time.Second)

	return m, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) OnChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) pollForChanges(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			stat, err := os.Stat(m.path)
			if err != nil {
				continue
			}

			m.mu.RLock()
			lastMod := m.lastModTime
			m.mu.RUnlock()

			if !stat.ModTime().After(lastMod) {
				continue
			}

			logger.Infof("config file changed, reloading: %s", m.path)

			_, newCfg, err := read(m.path)
			if err != nil {
				logger.Errorf("config reload failed: %v", err)
				continue
			}

			m.mu.Lock()
			m.lastModTime = stat.ModTime()
			oldCfg := m.cfg
			m.cfg = newCfg
			callbacks := m.callbacks
			m.mu.Unlock()

			for _, cb := range callbacks {
				cb(oldCfg, newCfg)
			}
		}
	}
}

// Load is a convenience function for one-time loading.
func Load(path string) (*Config, error) {
	_, cfg, err := read(path)
	return cfg, err
}

func read(path string) (*viper.Viper, *Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("VOXPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	return v, &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("paths.temp_dir", "data/tmp")
	v.SetDefault("paths.output_dir", "data/out")

	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.mp3_bitrate", "192k")

	v.SetDefault("filters.highpass_hz", 80)
	v.SetDefault("filters.lowpass_hz", 12000)
	v.SetDefault("filters.noise_reduce_db", 12.0)
	v.SetDefault("filters.noise_floor_db", -25.0)
	v.SetDefault("filters.clarity_hz", 3000)
	v.SetDefault("filters.clarity_width_hz", 1000)
	v.SetDefault("filters.clarity_gain_db", 2.0)
	v.SetDefault("filters.loudness_target_lufs", -16.0)
	v.SetDefault("filters.loudness_true_peak", -1.5)
	v.SetDefault("filters.loudness_range", 11.0)
	v.SetDefault("filters.silence_threshold_db", -35.0)
	v.SetDefault("filters.silence_min_duration", 0.4)

	v.SetDefault("downloader.bin_path", "yt-dlp")
	v.SetDefault("downloader.probe_rate_limit_rpm", 0)

	v.SetDefault("transcoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcoder.ffprobe_path", "ffprobe")
	v.SetDefault("transcoder.max_concurrent", 2)

	v.SetDefault("pipeline.cleanup_temp", true)
	v.SetDefault("pipeline.job_timeout_minutes", 0)

	v.SetDefault("apprise.enabled", false)
}
