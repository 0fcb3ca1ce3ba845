/*
Package config loads the TOML configuration shared by the pixel server and
the command-line client.
*/
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/janelia-flyem/pixaccess/pixel"
)

const (
	// DefaultHTTPAddress is the default address of the pixel server.
	DefaultHTTPAddress = "localhost:8200"

	// DefaultFilesBucket keeps uploaded files in memory.
	DefaultFilesBucket = "mem://"

	// DefaultMaxPlaneMB bounds the size of one XY plane of a stored array.
	DefaultMaxPlaneMB = 256
)

// Config is the parsed TOML configuration.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Files      FilesConfig
	Auth       AuthConfig
	Kafka      KafkaConfig
	Logging    pixel.LogConfig
	Client     ClientConfig
	Repository []RepositoryConfig
}

// ServerConfig is the [server] section.
type ServerConfig struct {
	HTTPAddress    string   `toml:"http_address"`
	MaxConnections int      `toml:"max_connections"` // 0 is unlimited
	CorsDomains    []string `toml:"cors_domains"`
	MaxUploadMB    int      `toml:"max_upload_mb"` // in-memory part of multipart parsing
}

// StoreConfig is the [store] section.  An empty path keeps pixels in memory.
type StoreConfig struct {
	Path        string
	Compression string // "none", "snappy" or "zstd"
	Checksum    bool
	MaxPlaneMB  int `toml:"max_plane_mb"` // 0 uses DefaultMaxPlaneMB
}

// FilesConfig is the [files] section giving a gocloud blob URL for uploads,
// e.g. "file:///data/uploads", "gs://bucket" or "mem://".
type FilesConfig struct {
	Bucket string
}

// AuthConfig is the [auth] section.  Requests must carry a JWT signed with
// SecretKey when it is set.
type AuthConfig struct {
	SecretKey string `toml:"secret_key"`
}

// KafkaConfig is the [kafka] section for activity events.
type KafkaConfig struct {
	Servers []string
	Topic   string
}

// ClientConfig is the [client] section.
type ClientConfig struct {
	ConnectTimeout int `toml:"connect_timeout"` // seconds
	CallTimeout    int `toml:"call_timeout"`    // seconds, 0 is none
	ReadCacheMB    int `toml:"read_cache_mb"`
	ThumbnailCache int `toml:"thumbnail_cache"` // number of thumbnails
}

// RepositoryConfig is one [[repository]] entry naming a pixel server.
type RepositoryConfig struct {
	ID    string
	URL   string
	Token string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddress: DefaultHTTPAddress, MaxUploadMB: 32},
		Store:  StoreConfig{Compression: "snappy", MaxPlaneMB: DefaultMaxPlaneMB},
		Files:  FilesConfig{Bucket: DefaultFilesBucket},
		Client: ClientConfig{ConnectTimeout: 10, ReadCacheMB: 64, ThumbnailCache: 256},
	}
}

// Load reads configuration from a TOML file on top of the defaults.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	c := Default()
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config %q: %v", filename, err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("bad configuration in %q: %v", filename, err)
	}
	pixel.Debugf("Loaded configuration from %s\n", filename)
	return c, nil
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	// [store].path
	if c.Store.Path != "" {
		if c.Store.Path, err = pixel.ConvertToAbsolute(c.Store.Path, configDir); err != nil {
			return fmt.Errorf("error converting store path to absolute path: %v", err)
		}
	}

	// [logging].logfile
	if c.Logging.Logfile != "" {
		if c.Logging.Logfile, err = pixel.ConvertToAbsolute(c.Logging.Logfile, configDir); err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
		}
	}

	// [files].bucket given as file:// with a relative path
	const fileScheme = "file://"
	if strings.HasPrefix(c.Files.Bucket, fileScheme) {
		p := strings.TrimPrefix(c.Files.Bucket, fileScheme)
		if !filepath.IsAbs(p) {
			abs, err := pixel.ConvertToAbsolute(p, configDir)
			if err != nil {
				return fmt.Errorf("error converting files bucket to absolute path: %v", err)
			}
			c.Files.Bucket = fileScheme + abs
		}
	}
	return nil
}

// Validate checks settings that cannot be checked by TOML decoding.
func (c *Config) Validate() error {
	if _, err := pixel.ParseCompression(c.Store.Compression); err != nil {
		return err
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if c.Store.MaxPlaneMB < 0 {
		return fmt.Errorf("max_plane_mb must not be negative")
	}
	if len(c.Kafka.Servers) != 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka servers given without a topic")
	}
	seen := make(map[string]struct{}, len(c.Repository))
	for i, repo := range c.Repository {
		if repo.ID == "" || repo.URL == "" {
			return fmt.Errorf("repository %d needs both id and url", i)
		}
		if _, dup := seen[repo.ID]; dup {
			return fmt.Errorf("repository id %q given more than once", repo.ID)
		}
		seen[repo.ID] = struct{}{}
	}
	return nil
}

// FindRepository returns the repository with the given id.
func (c *Config) FindRepository(id string) (RepositoryConfig, error) {
	for _, repo := range c.Repository {
		if repo.ID == id {
			return repo, nil
		}
	}
	return RepositoryConfig{}, fmt.Errorf("no repository %q in configuration", id)
}

func (c ClientConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

func (c ClientConfig) CallTimeoutDuration() time.Duration {
	return time.Duration(c.CallTimeout) * time.Second
}
