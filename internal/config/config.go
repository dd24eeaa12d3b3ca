// Package config provides configuration management for the dashboard.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/fieldwatch/fieldwatch/internal/geo"
	"github.com/fieldwatch/fieldwatch/internal/orders"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

// Config represents the main dashboard configuration.
type Config struct {
	Version    string           `yaml:"version"`
	System     SystemConfig     `yaml:"system"`
	Server     ServerConfig     `yaml:"server"`
	Bus        BusConfig        `yaml:"bus"`
	Sensors    []SensorConfig   `yaml:"sensors"`
	Geofences  []GeofenceConfig `yaml:"geofences"`
	Watchlists WatchlistsConfig `yaml:"watchlists"`
	Orders     OrderSet         `yaml:"orders"`
	Alerts     AlertsConfig     `yaml:"alerts"`

	// Internal fields
	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
	encKey   []byte          `yaml:"-"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Name     string        `yaml:"name"`
	Timezone string        `yaml:"timezone"`
	DataDir  string        `yaml:"data_dir"`
	Logging  LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// BusConfig holds embedded event bus settings.
type BusConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SensorConfig describes a sensor registered at startup.
type SensorConfig struct {
	ID        string           `yaml:"id,omitempty"`
	Name      string           `yaml:"name"`
	Type      string           `yaml:"type"`
	Zone      string           `yaml:"zone,omitempty"`
	Location  *LocationConfig  `yaml:"location,omitempty"`
	AuthToken string           `yaml:"auth_token,omitempty"`
	Rules     RulesConfig      `yaml:"rules,omitempty"`
	Metadata  map[string]any   `yaml:"metadata,omitempty"`
}

// LocationConfig holds a sensor's fixed position.
type LocationConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// RulesConfig holds per-sensor rule thresholds. Unset fields fall back to
// the per-type defaults.
type RulesConfig struct {
	GeofenceID     string   `yaml:"geofence_id,omitempty"`
	BatteryLow     float64  `yaml:"battery_low,omitempty"`
	SpeedLimit     float64  `yaml:"speed_limit,omitempty"`
	SmokeThreshold float64  `yaml:"smoke_threshold,omitempty"`
	GasThreshold   float64  `yaml:"gas_threshold,omitempty"`
	TempMin        *float64 `yaml:"temp_min,omitempty"`
	TempMax        *float64 `yaml:"temp_max,omitempty"`
}

// GeofenceConfig describes a geofence loaded at startup.
type GeofenceConfig struct {
	ID       string           `yaml:"id,omitempty"`
	Name     string           `yaml:"name,omitempty"`
	Type     string           `yaml:"type"` // circle or polygon
	Center   *LocationConfig  `yaml:"center,omitempty"`
	RadiusM  float64          `yaml:"radius_m,omitempty"`
	Vertices []LocationConfig `yaml:"vertices,omitempty"`
}

// WatchlistsConfig holds the seed watchlists.
type WatchlistsConfig struct {
	Faces   []string `yaml:"faces,omitempty"`
	Plates  []string `yaml:"plates,omitempty"`
	Devices []string `yaml:"devices,omitempty"`
}

// AlertsConfig holds alert manager settings.
type AlertsConfig struct {
	MaxHistory    int  `yaml:"max_history"`
	Persist       bool `yaml:"persist"`
	RetentionDays int  `yaml:"retention_days,omitempty"`
}

// OrderSet is a list of standing orders that decodes leniently: a
// malformed entry is skipped with a log line instead of failing the
// whole load, so a bad order degrades to a smaller (possibly empty)
// order set rather than aborting startup.
type OrderSet []orders.Order

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *OrderSet) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		slog.Warn("Ignoring orders section: expected a list", "line", value.Line)
		*s = nil
		return nil
	}

	out := make([]orders.Order, 0, len(value.Content))
	for i, node := range value.Content {
		var o orders.Order
		if err := node.Decode(&o); err != nil {
			slog.Warn("Skipping malformed standing order", "index", i, "line", node.Line, "error", err)
			continue
		}
		out = append(out, o)
	}
	*s = out
	return nil
}

// Load loads configuration from a YAML file. Environment references of the
// form ${VAR} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.path = path
	cfg.encKey = getEncryptionKey()

	if err := cfg.decryptSecrets(); err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// Default returns a configuration of pure defaults bound to path. Used to
// bootstrap a deployment that has no config file yet.
func Default(path string) *Config {
	cfg := &Config{path: path, encKey: getEncryptionKey()}
	cfg.setDefaults()
	return cfg
}

// Save saves the configuration to a YAML file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnlocked()
}

// saveUnlocked saves without acquiring lock (caller must hold lock)
func (c *Config) saveUnlocked() error {
	// Copy for saving, leaving the mutex behind.
	cfgCopy := &Config{
		Version:    c.Version,
		System:     c.System,
		Server:     c.Server,
		Bus:        c.Bus,
		Sensors:    c.Sensors,
		Geofences:  c.Geofences,
		Watchlists: c.Watchlists,
		Orders:     c.Orders,
		Alerts:     c.Alerts,
		path:       c.path,
		encKey:     c.encKey,
	}
	if err := cfgCopy.encryptSecrets(); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	data, err := yaml.Marshal(cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# FieldWatch Configuration\n# Auto-generated - manual edits are preserved\n\n"
	data = append([]byte(header), data...)

	// Atomic write
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return os.Rename(tmpPath, c.path)
}

// Watch starts watching for configuration file changes.
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback for config changes.
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk.
func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Copy fields individually to avoid copying the mutex.
	c.Version = newCfg.Version
	c.System = newCfg.System
	c.Server = newCfg.Server
	c.Bus = newCfg.Bus
	c.Sensors = newCfg.Sensors
	c.Geofences = newCfg.Geofences
	c.Watchlists = newCfg.Watchlists
	c.Orders = newCfg.Orders
	c.Alerts = newCfg.Alerts
	c.encKey = newCfg.encKey
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// GetSensor returns a sensor definition by id.
func (c *Config) GetSensor(id string) *SensorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Sensors {
		if c.Sensors[i].ID == id {
			return &c.Sensors[i]
		}
	}
	return nil
}

// UpsertSensor adds or updates a sensor definition and persists the file.
func (c *Config) UpsertSensor(sc SensorConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Sensors {
		if c.Sensors[i].ID == sc.ID {
			c.Sensors[i] = sc
			return c.saveUnlocked()
		}
	}

	c.Sensors = append(c.Sensors, sc)
	return c.saveUnlocked()
}

// RemoveSensor removes a sensor definition by id and persists the file.
func (c *Config) RemoveSensor(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Sensors {
		if c.Sensors[i].ID == id {
			c.Sensors = append(c.Sensors[:i], c.Sensors[i+1:]...)
			return c.saveUnlocked()
		}
	}

	return fmt.Errorf("sensor not found: %s", id)
}

// SensorSpecs converts the configured sensors into registry specs.
func (c *Config) SensorSpecs() []sensors.Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]sensors.Spec, 0, len(c.Sensors))
	for _, sc := range c.Sensors {
		spec := sensors.Spec{
			ID:       sc.ID,
			Name:     sc.Name,
			Type:     sensors.Type(sc.Type),
			Zone:     sc.Zone,
			Metadata: sc.Metadata,
			Config: sensors.Config{
				GeofenceID:     sc.Rules.GeofenceID,
				BatteryLow:     sc.Rules.BatteryLow,
				SpeedLimit:     sc.Rules.SpeedLimit,
				SmokeThreshold: sc.Rules.SmokeThreshold,
				GasThreshold:   sc.Rules.GasThreshold,
				TempMin:        sc.Rules.TempMin,
				TempMax:        sc.Rules.TempMax,
			},
		}
		if sc.Location != nil {
			spec.Location = &geo.Point{Lat: sc.Location.Lat, Lon: sc.Location.Lon}
		}
		specs = append(specs, spec)
	}
	return specs
}

// GeofenceList converts the configured geofences to domain fences.
func (c *Config) GeofenceList() []geo.Geofence {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fences := make([]geo.Geofence, 0, len(c.Geofences))
	for _, gc := range c.Geofences {
		fence := geo.Geofence{
			ID:      gc.ID,
			Name:    gc.Name,
			Type:    geo.FenceType(gc.Type),
			RadiusM: gc.RadiusM,
		}
		if gc.Center != nil {
			fence.Center = geo.Point{Lat: gc.Center.Lat, Lon: gc.Center.Lon}
		}
		for _, v := range gc.Vertices {
			fence.Vertices = append(fence.Vertices, geo.Point{Lat: v.Lat, Lon: v.Lon})
		}
		fences = append(fences, fence)
	}
	return fences
}

// OrderList returns a copy of the configured standing orders.
func (c *Config) OrderList() []orders.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]orders.Order, len(c.Orders))
	copy(out, c.Orders)
	return out
}

// SetPath sets the path used for saving the config file.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// GetPath returns the current config file path.
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// setDefaults sets default values for unset fields.
func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.System.Name == "" {
		c.System.Name = "fieldwatch"
	}
	if c.System.Timezone == "" {
		c.System.Timezone = "UTC"
	}
	if c.System.DataDir == "" {
		c.System.DataDir = "/data"
	}
	if c.System.Logging.Level == "" {
		c.System.Logging.Level = "info"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Bus.Host == "" {
		c.Bus.Host = "127.0.0.1"
	}
	if c.Bus.Port == 0 {
		c.Bus.Port = 14222
	}
	if c.Alerts.MaxHistory == 0 {
		c.Alerts.MaxHistory = 1000
	}
	if c.Alerts.RetentionDays == 0 {
		c.Alerts.RetentionDays = 30
	}
}

// encryptSecrets encrypts sensitive fields.
func (c *Config) encryptSecrets() error {
	for i := range c.Sensors {
		if c.Sensors[i].AuthToken != "" && !strings.HasPrefix(c.Sensors[i].AuthToken, "encrypted:") {
			encrypted, err := encrypt(c.encKey, c.Sensors[i].AuthToken)
			if err != nil {
				return err
			}
			c.Sensors[i].AuthToken = "encrypted:" + encrypted
		}
	}
	return nil
}

// decryptSecrets decrypts sensitive fields.
func (c *Config) decryptSecrets() error {
	for i := range c.Sensors {
		if strings.HasPrefix(c.Sensors[i].AuthToken, "encrypted:") {
			encrypted := strings.TrimPrefix(c.Sensors[i].AuthToken, "encrypted:")
			decrypted, err := decrypt(c.encKey, encrypted)
			if err != nil {
				return err
			}
			c.Sensors[i].AuthToken = decrypted
		}
	}
	return nil
}

// getEncryptionKey returns the encryption key from environment or falls
// back to the built-in development key.
func getEncryptionKey() []byte {
	keyStr := os.Getenv("FIELDWATCH_ENCRYPTION_KEY")
	if keyStr != "" {
		key, err := base64.StdEncoding.DecodeString(keyStr)
		if err == nil && len(key) == 32 {
			return key
		}
	}

	// Must be exactly 32 bytes for AES-256.
	return []byte("fieldwatch-dev-key-change-me!!!!")
}

// encrypt encrypts a string using AES-GCM.
func encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a string using AES-GCM.
func decrypt(key []byte, ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
