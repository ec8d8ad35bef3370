package manifest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aescanero/capo/internal/application/registry"
	"github.com/aescanero/capo/pkg/adapters/capabilities/httpcap"
	"github.com/aescanero/capo/pkg/adapters/capabilities/llm"
	"github.com/aescanero/capo/pkg/adapters/capabilities/lua"
	"github.com/aescanero/capo/pkg/adapters/capabilities/static"
	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Capability kinds a manifest may declare
const (
	KindStatic = "static"
	KindLua    = "lua"
	KindHTTP   = "http"
	KindLLM    = "llm"
)

// Manifest lists the capabilities to register at startup
type Manifest struct {
	Capabilities []Entry `yaml:"capabilities"`

	// baseDir resolves relative script paths
	baseDir string
}

// Entry declares one capability version
type Entry struct {
	Name        string    `yaml:"name"`
	Version     string    `yaml:"version"`
	Active      bool      `yaml:"active"`
	Kind        string    `yaml:"kind"`
	Description string    `yaml:"description"`
	Config      yaml.Node `yaml:"config"`
}

// Dependencies are the shared clients capabilities are built with
type Dependencies struct {
	// LLMClient is required only when an llm capability is declared
	LLMClient    llm.MessageClient
	LLMModel     string
	LLMMaxTokens int64
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Load reads and parses a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.baseDir = filepath.Dir(path)
	return m, nil
}

// Parse parses manifest YAML
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	for i := range m.Capabilities {
		entry := &m.Capabilities[i]
		if entry.Name == "" {
			return nil, fmt.Errorf("capability %d: name is required", i)
		}
		if entry.Version == "" {
			entry.Version = domain.DefaultVersion
		}
		switch entry.Kind {
		case KindStatic, KindLua, KindHTTP, KindLLM:
		default:
			return nil, fmt.Errorf("capability %s@%s: unknown kind %q", entry.Name, entry.Version, entry.Kind)
		}
	}

	return &m, nil
}

// NeedsLLM reports whether any entry is an llm capability
func (m *Manifest) NeedsLLM() bool {
	for _, entry := range m.Capabilities {
		if entry.Kind == KindLLM {
			return true
		}
	}
	return false
}

// Register builds every declared capability and adds it to reg. It stops at
// the first failure.
func (m *Manifest) Register(reg *registry.Registry, deps Dependencies) error {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, entry := range m.Capabilities {
		capability, err := m.build(entry, deps, logger)
		if err != nil {
			return fmt.Errorf("capability %s@%s: %w", entry.Name, entry.Version, err)
		}

		opts := []registry.RegisterOption{registry.WithDescription(entry.Description)}
		if entry.Active {
			opts = append(opts, registry.WithActive())
		}
		if err := reg.Register(entry.Name, entry.Version, capability, opts...); err != nil {
			return fmt.Errorf("capability %s@%s: %w", entry.Name, entry.Version, err)
		}

		logger.Info("capability registered",
			zap.String("capability", entry.Name),
			zap.String("version", entry.Version),
			zap.String("kind", entry.Kind),
			zap.Bool("active", entry.Active))
	}

	return nil
}

func (m *Manifest) build(entry Entry, deps Dependencies, logger *zap.Logger) (ports.Capability, error) {
	switch entry.Kind {
	case KindStatic:
		var cfg static.Config
		if err := decodeConfig(entry.Config, &cfg); err != nil {
			return nil, err
		}
		return static.New(cfg), nil

	case KindLua:
		var cfg lua.Config
		if err := decodeConfig(entry.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.File != "" && !filepath.IsAbs(cfg.File) && m.baseDir != "" {
			cfg.File = filepath.Join(m.baseDir, cfg.File)
		}
		return lua.New(entry.Name, cfg)

	case KindHTTP:
		var cfg httpcap.Config
		if err := decodeConfig(entry.Config, &cfg); err != nil {
			return nil, err
		}
		cfg.URL = os.ExpandEnv(cfg.URL)
		for k, v := range cfg.Headers {
			cfg.Headers[k] = os.ExpandEnv(v)
		}
		return httpcap.New(cfg, deps.HTTPClient)

	case KindLLM:
		var cfg llm.Config
		if err := decodeConfig(entry.Config, &cfg); err != nil {
			return nil, err
		}
		return llm.New(cfg, deps.LLMClient, deps.LLMModel, deps.LLMMaxTokens, logger.With(zap.String("capability", entry.Name)))

	default:
		return nil, fmt.Errorf("unknown kind %q", entry.Kind)
	}
}

// decodeConfig converts a YAML config node into a kind's JSON-tagged config
func decodeConfig(node yaml.Node, out interface{}) error {
	if node.Kind == 0 {
		return nil
	}

	var generic interface{}
	if err := node.Decode(&generic); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	data, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
