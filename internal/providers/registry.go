package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"feedmux/internal/logger"
	"feedmux/internal/pkg/symbol"
)

// Entry is one provider row from providers.yaml, ordered by priority.
type Entry struct {
	ID           string `mapstructure:"id" yaml:"id"`
	Priority     int    `mapstructure:"priority" yaml:"priority"`
	Streaming    bool   `mapstructure:"streaming" yaml:"streaming"`
	PollInterval string `mapstructure:"poll_interval" yaml:"poll_interval"`
	Enabled      *bool  `mapstructure:"enabled" yaml:"enabled"`
}

func (e Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Interval parses poll_interval, falling back to zero so the feed layer
// applies its own default cadence.
func (e Entry) Interval() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(e.PollInterval))
	if err != nil {
		return 0
	}
	return d
}

// FileConfig maps providers.yaml.
type FileConfig struct {
	Symbols   []string `mapstructure:"symbols" yaml:"symbols"`
	Providers []Entry  `mapstructure:"providers" yaml:"providers"`
}

// Snapshot is the immutable view handed to listeners and readers.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Symbols  []string
	Entries  []Entry
}

// ChangeListener fires after every successful reload.
type ChangeListener func(Snapshot)

// Registry watches providers.yaml and keeps a validated, priority-sorted
// snapshot of the provider roster and the symbol list.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("provider registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read provider config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("provider registry reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the current roster.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Entry returns the roster row for id.
func (r *Registry) Entry(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.snapshot.Entries {
		if strings.EqualFold(e.ID, strings.TrimSpace(id)) {
			return e, true
		}
	}
	return Entry{}, false
}

// OnChange registers fn for reload notifications.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readProviderFile(r.path)
	if err != nil {
		return err
	}
	entries := make([]Entry, 0, len(cfg.Providers))
	seen := make(map[string]bool)
	for _, e := range cfg.Providers {
		e.ID = strings.ToLower(strings.TrimSpace(e.ID))
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		if !e.IsEnabled() {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})

	symbols := symbol.NormalizeList(cfg.Symbols)
	if len(entries) == 0 {
		return fmt.Errorf("provider config %s has no enabled providers", r.path)
	}

	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Symbols:  symbols,
		Entries:  entries,
	}
	r.mu.Unlock()
	logger.Infof("provider registry loaded %d providers, %d symbols from %s",
		len(entries), len(symbols), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("provider registry listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	return Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Symbols:  append([]string(nil), src.Symbols...),
		Entries:  append([]Entry(nil), src.Entries...),
	}
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

// providerSchema validates the document shape before decoding, so a typo
// in providers.yaml fails loudly instead of silently dropping a provider.
const providerSchema = `{
  "type": "object",
  "required": ["providers"],
  "properties": {
    "symbols": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "providers": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "priority"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "priority": {"type": "integer", "minimum": 1},
          "streaming": {"type": "boolean"},
          "poll_interval": {"type": "string"},
          "enabled": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var compiledSchema = jsonschema.MustCompileString("providers.json", providerSchema)

func readProviderFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read provider config failed: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return FileConfig{}, fmt.Errorf("parse provider config failed: %w", err)
	}
	if err := compiledSchema.Validate(jsonify(doc)); err != nil {
		return FileConfig{}, fmt.Errorf("provider config %s invalid: %w", path, err)
	}

	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse provider config failed: %w", err)
	}
	return cfg, nil
}

// jsonify converts yaml.Unmarshal output (map[string]any with interface
// keys in nested maps) to the plain JSON shapes jsonschema validates.
func jsonify(v any) any {
	raw, err := json.Marshal(convertKeys(v))
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func convertKeys(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = convertKeys(child)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = convertKeys(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = convertKeys(child)
		}
		return out
	default:
		return val
	}
}
