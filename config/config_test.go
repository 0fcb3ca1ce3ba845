package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `
[server]
http_address = "localhost:9000"
max_connections = 16
cors_domains = ["*"]

[store]
path = "pixels.db"
compression = "zstd"
checksum = true
max_plane_mb = 64

[files]
bucket = "file://uploads"

[auth]
secret_key = "shh"

[logging]
logfile = "logs/pixd.log"
max_log_size = 100
max_log_age = 30

[client]
call_timeout = 600
read_cache_mb = 16

[[repository]]
id = "main"
url = "http://localhost:9000/"
token = "abc"

[[repository]]
id = "archive"
url = "http://archive:9000/"
`

func writeConfig(t *testing.T, contents string) (dir, path string) {
	dir = t.TempDir()
	path = filepath.Join(dir, "pixd.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return
}

func TestLoad(t *testing.T) {
	dir, path := writeConfig(t, testConfig)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unable to load config: %v\n", err)
	}
	if c.Server.HTTPAddress != "localhost:9000" || c.Server.MaxConnections != 16 {
		t.Errorf("bad server section: %+v\n", c.Server)
	}
	if c.Store.Path != filepath.Join(dir, "pixels.db") {
		t.Errorf("store path not made absolute: %s\n", c.Store.Path)
	}
	if c.Store.MaxPlaneMB != 64 {
		t.Errorf("bad plane limit: %d\n", c.Store.MaxPlaneMB)
	}
	if c.Files.Bucket != "file://"+filepath.Join(dir, "uploads") {
		t.Errorf("files bucket not made absolute: %s\n", c.Files.Bucket)
	}
	if c.Logging.Logfile != filepath.Join(dir, "logs", "pixd.log") || c.Logging.MaxSize != 100 {
		t.Errorf("bad logging section: %+v\n", c.Logging)
	}
	// Unset values keep their defaults.
	if c.Client.ConnectTimeout != 10 || c.Client.CallTimeoutDuration().Seconds() != 600 {
		t.Errorf("bad client section: %+v\n", c.Client)
	}
	repo, err := c.FindRepository("archive")
	if err != nil {
		t.Fatal(err)
	}
	if repo.URL != "http://archive:9000/" || repo.Token != "" {
		t.Errorf("bad repository: %+v\n", repo)
	}
	if _, err := c.FindRepository("missing"); err == nil {
		t.Errorf("expected error for missing repository")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Errorf("expected error for empty filename")
	}
	bad := []string{
		"[store]\ncompression = \"lz4\"\n",
		"[store]\nmax_plane_mb = -1\n",
		"[kafka]\nservers = [\"k:9092\"]\n",
		"[[repository]]\nid = \"a\"\nurl = \"http://a/\"\n[[repository]]\nid = \"a\"\nurl = \"http://b/\"\n",
		"[[repository]]\nurl = \"http://a/\"\n",
		"[server\n",
	}
	for _, contents := range bad {
		_, path := writeConfig(t, contents)
		if _, err := Load(path); err == nil {
			t.Errorf("expected error loading:\n%s\n", strings.TrimSpace(contents))
		}
	}
}
