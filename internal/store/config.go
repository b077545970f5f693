package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
)

// CliConfig is the user-facing config document at ~/.mina/config.json. The
// JSON field names are a compatibility contract with earlier releases; do
// not rename them.
type CliConfig struct {
	Slippage     float64           `json:"slippage"`
	AutoDeposit  bool              `json:"autoDeposit"`
	DefaultChain string            `json:"defaultChain"`
	RPC          map[string]string `json:"rpc"`
}

func DefaultCliConfig() CliConfig {
	return CliConfig{
		Slippage:     0.5,
		AutoDeposit:  true,
		DefaultChain: "arbitrum",
		RPC:          map[string]string{},
	}
}

const (
	KeySlippage     = "slippage"
	KeyAutoDeposit  = "autoDeposit"
	KeyDefaultChain = "defaultChain"
	rpcKeyPrefix    = "rpc."
)

// ConfigStore reads and writes config.json. Reads never fail: a missing or
// unparsable file yields the defaults so a corrupt document cannot brick
// the CLI.
type ConfigStore struct {
	path string
	lock *flock.Flock
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{
		path: filepath.Join(dir, "config.json"),
		lock: flock.New(filepath.Join(dir, "config.lock")),
	}
}

func (s *ConfigStore) Path() string { return s.path }

func (s *ConfigStore) Load() CliConfig {
	cfg := DefaultCliConfig()
	buf, err := os.ReadFile(s.path)
	if err != nil {
		return cfg
	}
	// Fields absent from the file keep their defaults; present fields win.
	var loaded struct {
		Slippage     *float64          `json:"slippage"`
		AutoDeposit  *bool             `json:"autoDeposit"`
		DefaultChain *string           `json:"defaultChain"`
		RPC          map[string]string `json:"rpc"`
	}
	if err := json.Unmarshal(buf, &loaded); err != nil {
		return cfg
	}
	if loaded.Slippage != nil {
		cfg.Slippage = *loaded.Slippage
	}
	if loaded.AutoDeposit != nil {
		cfg.AutoDeposit = *loaded.AutoDeposit
	}
	if loaded.DefaultChain != nil && strings.TrimSpace(*loaded.DefaultChain) != "" {
		cfg.DefaultChain = *loaded.DefaultChain
	}
	if loaded.RPC != nil {
		cfg.RPC = loaded.RPC
	}
	return cfg
}

// Get returns the value for a whitelisted key. Unset rpc.<chain> entries
// return nil rather than an error.
func (s *ConfigStore) Get(key string) (any, error) {
	cfg := s.Load()
	switch {
	case key == KeySlippage:
		return cfg.Slippage, nil
	case key == KeyAutoDeposit:
		return cfg.AutoDeposit, nil
	case key == KeyDefaultChain:
		return cfg.DefaultChain, nil
	case isRPCKey(key):
		if url, ok := cfg.RPC[rpcChain(key)]; ok {
			return url, nil
		}
		return nil, nil
	default:
		return nil, unknownKeyError(key)
	}
}

// Set validates the key, coerces the raw value, and persists the updated
// document. The coerced value is returned so callers can echo it.
func (s *ConfigStore) Set(key, raw string) (any, error) {
	value := ParseValue(raw)

	var stored any
	err := withLock(s.lock, func() error {
		cfg := s.Load()
		switch {
		case key == KeySlippage:
			num, ok := value.(float64)
			if !ok {
				return clierr.New(clierr.CodeUsage, "slippage must be a number")
			}
			if num <= 0 || num >= 100 {
				return clierr.New(clierr.CodeUsage, "slippage must be between 0 and 100")
			}
			cfg.Slippage = num
			stored = num
		case key == KeyAutoDeposit:
			b, ok := value.(bool)
			if !ok {
				return clierr.New(clierr.CodeUsage, "autoDeposit must be true or false")
			}
			cfg.AutoDeposit = b
			stored = b
		case key == KeyDefaultChain:
			cfg.DefaultChain = strings.ToLower(strings.TrimSpace(raw))
			stored = cfg.DefaultChain
		case isRPCKey(key):
			if cfg.RPC == nil {
				cfg.RPC = map[string]string{}
			}
			url := strings.TrimSpace(raw)
			if url == "" {
				return clierr.New(clierr.CodeUsage, "rpc url must not be empty")
			}
			cfg.RPC[rpcChain(key)] = url
			stored = url
		default:
			return unknownKeyError(key)
		}
		return writeJSONAtomic(s.path, cfg)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// All lists the effective config in a stable order: the scalar keys
// first, then rpc.<chain> sorted by chain.
func (s *ConfigStore) All() []ConfigEntry {
	cfg := s.Load()
	entries := []ConfigEntry{
		{Key: KeySlippage, Value: cfg.Slippage},
		{Key: KeyAutoDeposit, Value: cfg.AutoDeposit},
		{Key: KeyDefaultChain, Value: cfg.DefaultChain},
	}
	chains := make([]string, 0, len(cfg.RPC))
	for chain := range cfg.RPC {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	for _, chain := range chains {
		entries = append(entries, ConfigEntry{Key: rpcKeyPrefix + chain, Value: cfg.RPC[chain]})
	}
	return entries
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ParseValue coerces a raw CLI string: booleans first, then numbers, then
// the string itself.
func ParseValue(raw string) any {
	clean := strings.TrimSpace(raw)
	switch strings.ToLower(clean) {
	case "true":
		return true
	case "false":
		return false
	}
	if num, err := strconv.ParseFloat(clean, 64); err == nil {
		return num
	}
	return clean
}

func isRPCKey(key string) bool {
	if !strings.HasPrefix(key, rpcKeyPrefix) {
		return false
	}
	chain := rpcChain(key)
	return chain != "" && !strings.Contains(chain, ".")
}

func rpcChain(key string) string {
	return strings.TrimSpace(strings.TrimPrefix(key, rpcKeyPrefix))
}

func unknownKeyError(key string) error {
	return clierr.New(clierr.CodeUnknownKey, fmt.Sprintf("unknown config key %q (valid: %s, %s, %s, rpc.<chain>)", key, KeySlippage, KeyAutoDeposit, KeyDefaultChain))
}
