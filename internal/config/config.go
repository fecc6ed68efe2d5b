// Package config loads the playground configuration from an HCL file.
// Every knob has a default, so a missing file yields a fully working
// configuration.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/pokerbots/playground/internal/archive"
	"github.com/pokerbots/playground/internal/game"
	"github.com/pokerbots/playground/internal/sandbox"
)

// Backend selects how bot code is executed.
const (
	BackendInProcess  = "in_process"
	BackendSubprocess = "subprocess"
)

// Config is the complete playground configuration. Blocks are pointers
// so an HCL file may omit any of them.
type Config struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Engine  *EngineSettings  `hcl:"engine,block"`
	Sandbox *SandboxSettings `hcl:"sandbox,block"`
	Limits  *LimitSettings   `hcl:"limits,block"`
	Storage *StorageSettings `hcl:"storage,block"`
}

// ServerSettings contains process-level configuration.
type ServerSettings struct {
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
	TableID  string `hcl:"table_id,optional"`
}

// EngineSettings contains the chip economy and match pacing.
type EngineSettings struct {
	StartingStack       int     `hcl:"starting_stack,optional"`
	SmallBlind          int     `hcl:"small_blind,optional"`
	BigBlind            int     `hcl:"big_blind,optional"`
	HandIntervalSeconds float64 `hcl:"hand_interval_seconds,optional"`
}

// SandboxSettings controls bot execution.
type SandboxSettings struct {
	Backend                string  `hcl:"backend,optional"`
	DecisionTimeoutSeconds float64 `hcl:"decision_timeout_seconds,optional"`
	MaxStateBytes          int     `hcl:"max_state_bytes,optional"`
	MaxConcurrent          int     `hcl:"max_concurrent,optional"`
	Python                 string  `hcl:"python,optional"`
	MemoryLimitMB          int     `hcl:"memory_limit_mb,optional"`
	CPUSeconds             int     `hcl:"cpu_seconds,optional"`
}

// LimitSettings bounds bot uploads.
type LimitSettings struct {
	MaxUploadMB          int `hcl:"max_upload_mb,optional"`
	MaxArchiveMembers    int `hcl:"max_archive_members,optional"`
	MaxFileBytes         int `hcl:"max_file_bytes,optional"`
	MaxUncompressedBytes int `hcl:"max_uncompressed_bytes,optional"`
}

// StorageSettings locates the runtime data directories.
type StorageSettings struct {
	DataDir         string `hcl:"data_dir,optional"`
	HandsDir        string `hcl:"hands_dir,optional"`
	UploadsDir      string `hcl:"uploads_dir,optional"`
	ArtifactsDir    string `hcl:"artifacts_dir,optional"`
	LeaderboardPath string `hcl:"leaderboard_path,optional"`
}

// Default returns the production defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the HCL file at filename, or returns defaults when the file
// does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Engine == nil {
		c.Engine = &EngineSettings{}
	}
	if c.Sandbox == nil {
		c.Sandbox = &SandboxSettings{}
	}
	if c.Limits == nil {
		c.Limits = &LimitSettings{}
	}
	if c.Storage == nil {
		c.Storage = &StorageSettings{}
	}

	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.TableID == "" {
		c.Server.TableID = "table-1"
	}

	if c.Engine.StartingStack == 0 {
		c.Engine.StartingStack = 10000
	}
	if c.Engine.SmallBlind == 0 {
		c.Engine.SmallBlind = 50
	}
	if c.Engine.BigBlind == 0 {
		c.Engine.BigBlind = 100
	}
	if c.Engine.HandIntervalSeconds == 0 {
		c.Engine.HandIntervalSeconds = 1.0
	}

	if c.Sandbox.Backend == "" {
		c.Sandbox.Backend = BackendSubprocess
	}
	if c.Sandbox.DecisionTimeoutSeconds == 0 {
		c.Sandbox.DecisionTimeoutSeconds = 2.0
	}
	if c.Sandbox.MaxStateBytes == 0 {
		c.Sandbox.MaxStateBytes = 64 * 1024
	}
	if c.Sandbox.MaxConcurrent == 0 {
		c.Sandbox.MaxConcurrent = 4
	}
	if c.Sandbox.Python == "" {
		c.Sandbox.Python = "python3"
	}
	if c.Sandbox.MemoryLimitMB == 0 {
		c.Sandbox.MemoryLimitMB = 256
	}
	if c.Sandbox.CPUSeconds == 0 {
		// One second of slack past the wall-clock timeout.
		c.Sandbox.CPUSeconds = int(math.Ceil(c.Sandbox.DecisionTimeoutSeconds)) + 1
	}

	if c.Limits.MaxUploadMB == 0 {
		c.Limits.MaxUploadMB = 10
	}
	if c.Limits.MaxArchiveMembers == 0 {
		c.Limits.MaxArchiveMembers = 128
	}
	if c.Limits.MaxFileBytes == 0 {
		c.Limits.MaxFileBytes = 1 << 20
	}
	if c.Limits.MaxUncompressedBytes == 0 {
		c.Limits.MaxUncompressedBytes = 2 << 20
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.HandsDir == "" {
		c.Storage.HandsDir = filepath.Join(c.Storage.DataDir, "hands")
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = filepath.Join(c.Storage.DataDir, "uploads")
	}
	if c.Storage.ArtifactsDir == "" {
		c.Storage.ArtifactsDir = filepath.Join(c.Storage.DataDir, "artifacts")
	}
	if c.Storage.LeaderboardPath == "" {
		c.Storage.LeaderboardPath = filepath.Join(c.Storage.DataDir, "leaderboard.db")
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Engine.SmallBlind <= 0 {
		return fmt.Errorf("small blind must be positive")
	}
	if c.Engine.BigBlind <= c.Engine.SmallBlind {
		return fmt.Errorf("big blind must be greater than small blind")
	}
	if c.Engine.StartingStack < c.Engine.BigBlind {
		return fmt.Errorf("starting stack must cover at least one big blind")
	}
	if c.Engine.HandIntervalSeconds < 0 {
		return fmt.Errorf("hand interval must not be negative")
	}
	if c.Sandbox.Backend != BackendInProcess && c.Sandbox.Backend != BackendSubprocess {
		return fmt.Errorf("unknown sandbox backend %q", c.Sandbox.Backend)
	}
	if c.Sandbox.DecisionTimeoutSeconds <= 0 {
		return fmt.Errorf("decision timeout must be positive")
	}
	if c.Sandbox.MaxConcurrent < 1 {
		return fmt.Errorf("sandbox concurrency must be at least 1")
	}
	if c.Limits.MaxUploadMB < 1 {
		return fmt.Errorf("upload limit must be at least 1MB")
	}
	return nil
}

// EngineParams converts to the engine's chip parameters.
func (c *Config) EngineParams() game.Params {
	return game.Params{
		StartingStack: c.Engine.StartingStack,
		SmallBlind:    c.Engine.SmallBlind,
		BigBlind:      c.Engine.BigBlind,
	}
}

// SandboxConfig converts to the runtime configuration.
func (c *Config) SandboxConfig() sandbox.Config {
	return sandbox.Config{
		Timeout:       time.Duration(c.Sandbox.DecisionTimeoutSeconds * float64(time.Second)),
		MaxStateBytes: c.Sandbox.MaxStateBytes,
		MaxConcurrent: int64(c.Sandbox.MaxConcurrent),
	}
}

// ArchiveLimits converts to the upload validator limits.
func (c *Config) ArchiveLimits() archive.Limits {
	lim := archive.DefaultLimits()
	lim.MaxUploadBytes = int64(c.Limits.MaxUploadMB) << 20
	lim.MaxMembers = c.Limits.MaxArchiveMembers
	lim.MaxFileBytes = int64(c.Limits.MaxFileBytes)
	lim.MaxUncompressedBytes = int64(c.Limits.MaxUncompressedBytes)
	return lim
}

// HandInterval returns the pause between hands.
func (c *Config) HandInterval() time.Duration {
	return time.Duration(c.Engine.HandIntervalSeconds * float64(time.Second))
}
