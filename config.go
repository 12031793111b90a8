package video_fetcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvToolPath overrides Config.Tool.BinaryPath when set.
const EnvToolPath = "VIDEO_FETCHER_YTDLP"

// PartnerRule is a set of site-specific media URL patterns, applied only to pages on Domain. If a pattern has a
// capture group, the first group is the locator, otherwise the whole match is.
type PartnerRule struct {
	Domain   string   `yaml:"domain"`
	Patterns []string `yaml:"patterns"`
}

type ToolConfig struct {
	BinaryPath       string   `yaml:"binary_path"`
	OutputTemplate   string   `yaml:"output_template"`
	GeoBypass        bool     `yaml:"geo_bypass"`
	ExtractorRetries int      `yaml:"extractor_retries"`
	AudioFormat      string   `yaml:"audio_format"`
	ExtraArgs        []string `yaml:"extra_args"`
}

type CookieConfig struct {
	// FileName is looked for beside the executable and in the working directory.
	FileName string `yaml:"file_name"`
	// UserPath is the last location checked; a leading "~/" is expanded.
	UserPath string `yaml:"user_path"`
	// Domain is the video service domain whose entries are relevant in a cookie store.
	Domain string `yaml:"domain"`
}

// Config is built once at startup and passed to every component; nothing reads it from a global.
type Config struct {
	UserAgent         string        `yaml:"user_agent"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	MaxPageBytes      int64         `yaml:"max_page_bytes"`
	VideoServiceHosts []string      `yaml:"video_service_hosts"`
	MediaExtensions   []string      `yaml:"media_extensions"`
	Partners          []PartnerRule `yaml:"partners"`
	// ProxyEndpoint is the path suffix of redirector frames that carry the real locator in their "v" parameter.
	ProxyEndpoint string `yaml:"proxy_endpoint"`
	// ContainerClass marks generic elements that wrap a player frame.
	ContainerClass string `yaml:"container_class"`
	// PlayerDataAttribute holds an embeddable player's JSON setup payload.
	PlayerDataAttribute string `yaml:"player_data_attribute"`

	ChunkSize     int          `yaml:"chunk_size"`
	Browsers      []string     `yaml:"browsers"`
	BotSignatures []string     `yaml:"bot_signatures"`
	Cookies       CookieConfig `yaml:"cookies"`
	Tool          ToolConfig   `yaml:"tool"`
}

func DefaultConfig() Config {
	return Config{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		FetchTimeout:      30 * time.Second,
		MaxPageBytes:      16 << 20,
		VideoServiceHosts: []string{"youtube.com", "youtu.be", "youtube-nocookie.com"},
		MediaExtensions:   []string{"mp4", "mkv", "mov", "avi", "wmv", "flv", "webm"},
		Partners: []PartnerRule{
			{
				Domain: "tiz-cycling.tv",
				Patterns: []string{
					`(https?://video\.tiz-cycling\.io/[^"']+\.mp4)`,
					`(https?://[^"']+/Tiz-Cycling/[^"']+\.mp4)`,
					`v=(https?://[^&"']+\.mp4)`,
				},
			},
		},
		ProxyEndpoint:       "video.php",
		ContainerClass:      "video-wrapper",
		PlayerDataAttribute: "data-setup",
		ChunkSize:           8192,
		Browsers:            []string{"chrome", "firefox", "edge", "safari"},
		BotSignatures: []string{
			"Sign in to confirm you're not a bot",
			"Sign in to confirm you’re not a bot",
			"confirm you are not a bot",
		},
		Cookies: CookieConfig{
			FileName: "cookies.txt",
			UserPath: "~/.config/yt-dlp/cookies.txt",
			Domain:   "youtube.com",
		},
		Tool: ToolConfig{
			BinaryPath:       "yt-dlp",
			OutputTemplate:   "%(title)s.%(ext)s",
			GeoBypass:        true,
			ExtractorRetries: 3,
			AudioFormat:      "mp3",
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. An empty path just returns the defaults (plus environment
// overrides).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if toolPath := os.Getenv(EnvToolPath); toolPath != "" {
		cfg.Tool.BinaryPath = toolPath
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.UserAgent == "":
		return fmt.Errorf("user_agent must not be empty")
	case len(c.VideoServiceHosts) == 0:
		return fmt.Errorf("video_service_hosts must not be empty")
	case len(c.MediaExtensions) == 0:
		return fmt.Errorf("media_extensions must not be empty")
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk_size must be positive")
	case c.Tool.BinaryPath == "":
		return fmt.Errorf("tool.binary_path must not be empty")
	}
	return nil
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
