package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# fileshover Configuration File
#
# Every key can be overridden with an environment variable: upper-case the
# path, replace dots with underscores and prefix FILESHOVER_, e.g.
#   FILESHOVER_LOGGING_LEVEL=DEBUG
#   FILESHOVER_ADAPTERS_HTTP_PORT=8080
# CLI flags (--root, --port, --workers, --bind, --log-level) win over both.
`

// InitConfig writes a sample configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed. It refuses to replace an existing file
// unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Files.Filesystem["root"] = DefaultSampleRoot

	content, err := generateYAMLWithComments(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as commented YAML.
//
// The document is built as a yaml.Node tree rather than marshaled from the
// struct: keys follow the mapstructure names viper reads back, durations are
// written as "30s" and every key carries its own comment.
func generateYAMLWithComments(cfg *Config) (string, error) {
	h := cfg.Adapters.HTTP
	fs, err := decodeFilesystemOptions(cfg.Files.Filesystem)
	if err != nil {
		return "", err
	}

	doc := mapping(
		section("logging", "Log output",
			entry("level", "DEBUG, INFO, WARN or ERROR", str(cfg.Logging.Level)),
			entry("format", "text or json", str(cfg.Logging.Format)),
			entry("output", "stdout, stderr or a file path", str(cfg.Logging.Output)),
		),
		section("server", "Server-wide settings",
			entry("shutdown_timeout", "Maximum time to wait for all adapters to stop", str(cfg.Server.ShutdownTimeout.String())),
			section("metrics", "Prometheus endpoint (GET /metrics)",
				entry("enabled", "", boolean(cfg.Server.Metrics.Enabled)),
				entry("port", "", integer(int64(cfg.Server.Metrics.Port))),
			),
		),
		section("files", "Where served files come from",
			entry("type", "Only filesystem is supported", str(cfg.Files.Type)),
			section("filesystem", "",
				entry("root", "Directory to serve; nothing outside it is ever read", str(fs.Root)),
				entry("buffer_size", "Read buffer per open file in bytes (0 = 32KiB)", integer(int64(fs.BufferSize))),
				entry("sniff_content_type", "Detect the type of unknown extensions from file content", boolean(fs.SniffContentType)),
			),
		),
		section("adapters", "Protocol adapters",
			section("http", "HTTP/1.1, one request per connection",
				entry("enabled", "", boolean(h.Enabled)),
				entry("bind_address", "Interface to listen on (empty = all)", str(h.BindAddress)),
				entry("port", "", integer(int64(h.Port))),
				entry("workers", "Connections served concurrently", integer(int64(h.Workers))),
				entry("queue_size", "Accepted connections waiting for a worker", integer(int64(h.QueueSize))),
				entry("read_timeout", "Deadline for reading the whole request", str(h.ReadTimeout.String())),
				entry("write_timeout", "Deadline for each chunk written", str(h.WriteTimeout.String())),
				entry("shutdown_timeout", "Wait for in-flight connections before force-closing them", str(h.ShutdownTimeout.String())),
				entry("metrics_log_interval", "Period of the status log line (0s = off)", str(h.MetricsLogInterval.String())),
				entry("accept_rate", "Accepted connections per second (0 = unlimited)", float(h.AcceptRate)),
				entry("accept_burst", "", integer(int64(h.AcceptBurst))),
				entry("reuse_port", "Open the listener with SO_REUSEPORT", boolean(h.ReusePort)),
				entry("max_header_bytes", "Request line plus headers", integer(int64(h.MaxHeaderBytes))),
				entry("max_header_count", "", integer(int64(h.MaxHeaderCount))),
				entry("max_body_bytes", "", integer(h.MaxBodyBytes)),
			),
		),
	)

	var b strings.Builder
	b.WriteString(configHeader)
	b.WriteString("\n")

	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	return b.String(), nil
}

// ============================================================================
// yaml.Node builders
// ============================================================================

type pair struct {
	key   *yaml.Node
	value *yaml.Node
}

func mapping(pairs ...pair) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range pairs {
		n.Content = append(n.Content, p.key, p.value)
	}
	return n
}

func entry(key, comment string, value *yaml.Node) pair {
	if comment != "" {
		comment = "# " + comment
	}
	return pair{
		key:   &yaml.Node{Kind: yaml.ScalarNode, Value: key, HeadComment: comment},
		value: value,
	}
}

func section(key, comment string, pairs ...pair) pair {
	return entry(key, comment, mapping(pairs...))
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v, Style: yaml.DoubleQuotedStyle}
}

func integer(v int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v, 10)}
}

func float(v float64) *yaml.Node {
	value := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(value, ".") {
		value += ".0"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: value}
}

func boolean(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}
