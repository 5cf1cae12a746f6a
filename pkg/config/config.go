// Package config loads the driftsync configuration file: global policy
// defaults plus the list of sync mappings. Per-mapping override fields are
// pointers so an unset override is distinguishable from an explicitly empty
// one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/driftsync/driftsync/pkg/backup"
	"github.com/driftsync/driftsync/pkg/conflict"
	"github.com/driftsync/driftsync/pkg/snapshot"
	"github.com/driftsync/driftsync/pkg/util"
)

// ConfigFileName is the default configuration file, looked up in the working
// directory and in the user config directory.
const ConfigFileName = "driftsync.yaml"

// Direction controls which side is authoritative for a mapping.
type Direction string

const (
	Bidirectional  Direction = "bidirectional"
	ProjectToVault Direction = "project-to-vault"
	VaultToProject Direction = "vault-to-project"
)

// ParseDirection validates a config value. The empty string maps to
// bidirectional.
func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case "":
		return Bidirectional, nil
	case Bidirectional, ProjectToVault, VaultToProject:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q (expected bidirectional, project-to-vault or vault-to-project)", raw)
	}
}

// Policy holds the global sync behavior defaults.
type Policy struct {
	ConflictStrategy string   `mapstructure:"conflictStrategy"`
	FileTypes        []string `mapstructure:"fileTypes"`
	ExcludePatterns  []string `mapstructure:"excludePatterns"`
	FollowSymlinks   bool     `mapstructure:"followSymlinks"`
	CreateBackups    bool     `mapstructure:"createBackups"`
	BackupFormat     string   `mapstructure:"backupFormat"`
	SyncDeletions    bool     `mapstructure:"syncDeletions"`
	ConfirmDeletions bool     `mapstructure:"confirmDeletions"`
	// MaxBackupsPerFile caps how many timestamped safety copies of one file
	// are kept; older ones are pruned. Zero keeps all of them.
	MaxBackupsPerFile int `mapstructure:"maxBackupsPerFile"`
}

// Mapping is one configured project/vault pair. The override fields replace
// the corresponding Policy default only when set.
type Mapping struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	ProjectRoot string `mapstructure:"projectRoot"`
	VaultRoot   string `mapstructure:"vaultRoot"`
	DocsSubpath string `mapstructure:"docsSubpath"`
	Enabled     bool   `mapstructure:"enabled"`
	Direction   string `mapstructure:"direction"`

	ConflictStrategyOverride *string   `mapstructure:"conflictStrategyOverride"`
	FileTypesOverride        *[]string `mapstructure:"fileTypesOverride"`
	ExcludePatternsOverride  *[]string `mapstructure:"excludePatternsOverride"`
}

// WatchConfig tunes the change watcher.
type WatchConfig struct {
	IdleSeconds int    `mapstructure:"idleSeconds"`
	LogFile     string `mapstructure:"logFile"`
}

// HooksConfig lists shell commands run around every sync invocation.
// SECURITY: commands execute as provided; they are only as trustworthy as
// this file.
type HooksConfig struct {
	PreSync  []string `mapstructure:"preSync"`
	PostSync []string `mapstructure:"postSync"`
}

// Config is the full parsed configuration file.
type Config struct {
	Policy   Policy      `mapstructure:"policy"`
	Watch    WatchConfig `mapstructure:"watch"`
	Hooks    HooksConfig `mapstructure:"hooks"`
	Mappings []Mapping   `mapstructure:"mappings"`

	// path is where the file was loaded from, used to anchor the snapshot
	// document next to it.
	path string
}

// EffectivePolicy is the merged, validated policy for one mapping, computed
// once at the start of a run and immutable afterwards.
type EffectivePolicy struct {
	Direction         Direction
	ConflictStrategy  conflict.Strategy
	FileTypes         []string
	ExcludePatterns   []string
	FollowSymlinks    bool
	CreateBackups     bool
	BackupFormat      backup.Format
	MaxBackupsPerFile int
	SyncDeletions     bool
	ConfirmDeletions  bool
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Policy: Policy{
			ConflictStrategy:  string(conflict.StrategyNewerWins),
			FileTypes:         []string{".md"},
			FollowSymlinks:    false,
			CreateBackups:     true,
			BackupFormat:      string(backup.FormatNone),
			MaxBackupsPerFile: 5,
			SyncDeletions:     true,
			ConfirmDeletions:  true,
		},
		Watch: WatchConfig{
			IdleSeconds: 3,
		},
	}
}

// Load reads the configuration from path, or from the default lookup
// locations when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		expanded, err := util.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "driftsync"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", v.ConfigFileUsed(), err)
	}
	cfg.path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("policy.conflictStrategy", def.Policy.ConflictStrategy)
	v.SetDefault("policy.fileTypes", def.Policy.FileTypes)
	v.SetDefault("policy.followSymlinks", def.Policy.FollowSymlinks)
	v.SetDefault("policy.createBackups", def.Policy.CreateBackups)
	v.SetDefault("policy.backupFormat", def.Policy.BackupFormat)
	v.SetDefault("policy.maxBackupsPerFile", def.Policy.MaxBackupsPerFile)
	v.SetDefault("policy.syncDeletions", def.Policy.SyncDeletions)
	v.SetDefault("policy.confirmDeletions", def.Policy.ConfirmDeletions)
	v.SetDefault("watch.idleSeconds", def.Watch.IdleSeconds)
}

// Path returns where the config was loaded from, empty for a default config.
func (c *Config) Path() string { return c.path }

// SnapshotPath returns the snapshot document location, next to the config
// file, or in the working directory when no file was loaded.
func (c *Config) SnapshotPath() string {
	if c.path == "" {
		return snapshot.DefaultFileName
	}
	return filepath.Join(filepath.Dir(c.path), snapshot.DefaultFileName)
}

// Validate checks the whole file: policy values must parse and every mapping
// must be well-formed with a unique ID.
func (c *Config) Validate() error {
	if _, err := conflict.ParseStrategy(c.Policy.ConflictStrategy); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if _, err := backup.ParseFormat(c.Policy.BackupFormat); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Policy.MaxBackupsPerFile < 0 {
		return fmt.Errorf("policy.maxBackupsPerFile must not be negative")
	}
	if c.Watch.IdleSeconds < 0 {
		return fmt.Errorf("watch.idleSeconds must not be negative")
	}

	seen := make(map[string]bool, len(c.Mappings))
	for i := range c.Mappings {
		m := &c.Mappings[i]
		if err := m.Validate(); err != nil {
			return fmt.Errorf("mapping %d: %w", i, err)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate mapping id %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// Validate checks a single mapping entry.
func (m *Mapping) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("id must not be empty")
	}
	if strings.TrimSpace(m.ProjectRoot) == "" {
		return fmt.Errorf("projectRoot must not be empty")
	}
	if strings.TrimSpace(m.VaultRoot) == "" {
		return fmt.Errorf("vaultRoot must not be empty")
	}
	if _, err := ParseDirection(m.Direction); err != nil {
		return err
	}
	if m.ConflictStrategyOverride != nil {
		if _, err := conflict.ParseStrategy(*m.ConflictStrategyOverride); err != nil {
			return err
		}
	}
	return nil
}

// MappingByID returns the mapping with the given ID.
func (c *Config) MappingByID(id string) (*Mapping, bool) {
	for i := range c.Mappings {
		if c.Mappings[i].ID == id {
			return &c.Mappings[i], true
		}
	}
	return nil, false
}

// EnabledMappings returns all mappings with the enabled flag set, in file
// order.
func (c *Config) EnabledMappings() []*Mapping {
	var enabled []*Mapping
	for i := range c.Mappings {
		if c.Mappings[i].Enabled {
			enabled = append(enabled, &c.Mappings[i])
		}
	}
	return enabled
}

// EffectiveProjectRoot returns the mapping's project root with the tilde
// expanded and the optional docs sub-path applied.
func (m *Mapping) EffectiveProjectRoot() string {
	expanded, err := util.ExpandPath(m.ProjectRoot)
	if err != nil {
		expanded = m.ProjectRoot
	}
	return applySubpath(expanded, m.DocsSubpath)
}

// EffectiveVaultRoot returns the mapping's vault root with the tilde
// expanded and the optional docs sub-path applied.
func (m *Mapping) EffectiveVaultRoot() string {
	expanded, err := util.ExpandPath(m.VaultRoot)
	if err != nil {
		expanded = m.VaultRoot
	}
	return applySubpath(expanded, m.DocsSubpath)
}

func applySubpath(root, subpath string) string {
	subpath = strings.Trim(strings.TrimSpace(subpath), "/")
	if subpath == "" {
		return filepath.Clean(root)
	}
	return filepath.Join(root, filepath.FromSlash(subpath))
}

// EffectivePolicy merges a mapping's overrides over the global policy.
// Override pointers replace the default even when they point at an empty
// list; nil pointers leave the default in place.
func (c *Config) EffectivePolicy(m *Mapping) (EffectivePolicy, error) {
	direction, err := ParseDirection(m.Direction)
	if err != nil {
		return EffectivePolicy{}, err
	}

	strategyRaw := c.Policy.ConflictStrategy
	if m.ConflictStrategyOverride != nil {
		strategyRaw = *m.ConflictStrategyOverride
	}
	strategy, err := conflict.ParseStrategy(strategyRaw)
	if err != nil {
		return EffectivePolicy{}, err
	}

	format, err := backup.ParseFormat(c.Policy.BackupFormat)
	if err != nil {
		return EffectivePolicy{}, err
	}

	fileTypes := c.Policy.FileTypes
	if m.FileTypesOverride != nil {
		fileTypes = *m.FileTypesOverride
	}
	excludePatterns := c.Policy.ExcludePatterns
	if m.ExcludePatternsOverride != nil {
		excludePatterns = *m.ExcludePatternsOverride
	}

	return EffectivePolicy{
		Direction:         direction,
		ConflictStrategy:  strategy,
		FileTypes:         append([]string(nil), fileTypes...),
		ExcludePatterns:   append([]string(nil), excludePatterns...),
		FollowSymlinks:    c.Policy.FollowSymlinks,
		CreateBackups:     c.Policy.CreateBackups,
		BackupFormat:      format,
		MaxBackupsPerFile: c.Policy.MaxBackupsPerFile,
		SyncDeletions:     c.Policy.SyncDeletions,
		ConfirmDeletions:  c.Policy.ConfirmDeletions,
	}, nil
}

// IdleWindow returns the watcher debounce duration.
func (c *Config) IdleWindow() time.Duration {
	return time.Duration(c.Watch.IdleSeconds) * time.Second
}

// WriteDefault writes a commented starter configuration to path. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}
	return nil
}

const defaultConfigYAML = `# driftsync configuration
policy:
  # newer-wins | project-wins | vault-wins | ask
  conflictStrategy: newer-wins
  # Only files with one of these suffixes are synced. Compound suffixes like
  # .excalidraw.md are matched in full.
  fileTypes:
    - .md
  # Path segments (exact or substring) or glob patterns to skip.
  excludePatterns: []
  followSymlinks: false
  createBackups: true
  # none | gz | zst
  backupFormat: none
  # Timestamped safety copies kept per file, oldest pruned. 0 keeps all.
  maxBackupsPerFile: 5
  syncDeletions: true
  confirmDeletions: true

watch:
  # Seconds of quiet after the last file event before a sync run starts.
  idleSeconds: 3
  # Optional log file for long-running watch sessions.
  logFile: ""

# Shell commands run before and after every sync invocation.
hooks:
  preSync: []
  postSync: []

mappings:
  - id: main
    name: Main notes
    projectRoot: ~/project/docs
    vaultRoot: ~/vault
    # Optional sub-path applied to both roots.
    docsSubpath: ""
    enabled: true
    # bidirectional | project-to-vault | vault-to-project
    direction: bidirectional
`
