// Package config loads the cluster-wide and per-node configuration
// enumerated in spec.md §6 from a YAML file laid over built-in defaults.
// CLI flags do not override these values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/driftdb/cluster/pkg/types"
	"gopkg.in/yaml.v3"
)

// CompactionPriority selects the dispatch order in CompactionScheduler.
type CompactionPriority string

const (
	PriorityBalance    CompactionPriority = "BALANCE"
	PriorityInnerCross CompactionPriority = "INNER_CROSS"
	PriorityCrossInner CompactionPriority = "CROSS_INNER"
)

// Config holds every configuration knob named in spec.md §6.
type Config struct {
	// Cluster-wide, must match bit-for-bit across members.
	ReplicationNum    int      `yaml:"replicationNum"`
	HashSalt          int32    `yaml:"hashSalt"`
	PartitionInterval int64    `yaml:"partitionInterval"`
	ClusterName       string   `yaml:"clusterName"`
	SeedNodeURLs      []string `yaml:"seedNodeUrls"`

	// Compaction.
	ConcurrentCompactionThread int                `yaml:"concurrentCompactionThread"`
	TargetCompactionFileSize   int64              `yaml:"targetCompactionFileSize"`
	EnableSeqSpaceCompaction   bool               `yaml:"enableSeqSpaceCompaction"`
	EnableUnseqSpaceCompaction bool               `yaml:"enableUnseqSpaceCompaction"`
	CompactionPriority         CompactionPriority `yaml:"compactionPriority"`

	// Schema / routing.
	DefaultStorageGroupLevel int  `yaml:"defaultStorageGroupLevel"`
	EnableAutoCreateSchema   bool `yaml:"enableAutoCreateSchema"`
	MRemoteSchemaCacheSize   int  `yaml:"mRemoteSchemaCacheSize"`

	// Timeouts (milliseconds on the wire; parsed into time.Duration).
	ReadOperationTimeoutMs  int64 `yaml:"readOperationTimeoutMs"`
	WriteOperationTimeoutMs int64 `yaml:"writeOperationTimeoutMs"`
	StartUpTimeThresholdMs  int64 `yaml:"startUpTimeThresholdMs"`
	HeartbeatIntervalMs     int64 `yaml:"heartbeatIntervalMs"`

	// Node identity / network, not part of StartUpStatus.
	NodeDataDir string `yaml:"nodeDataDir"`
	MetaBind    string `yaml:"metaBind"`
	DataBind    string `yaml:"dataBind"`
	ClientBind  string `yaml:"clientBind"`
}

// DefaultJoinRetry is the number of times JoinCluster retries a
// PARTITION_TABLE_UNAVAILABLE response before giving up (spec.md §4.3.1).
const DefaultJoinRetry = 10

// JoinRetryInterval is the sleep between JoinCluster retries.
const JoinRetryInterval = 5 * time.Second

// SlotCount is the fixed number of virtual slots PartitionTable assigns.
const SlotCount = 16384

// Default returns a Config with the teacher-repo-style sane defaults.
func Default() *Config {
	return &Config{
		ReplicationNum:             3,
		HashSalt:                   0,
		PartitionInterval:          86400,
		ClusterName:                "default-cluster",
		ConcurrentCompactionThread: 4,
		TargetCompactionFileSize:   128 * 1024 * 1024,
		EnableSeqSpaceCompaction:   true,
		EnableUnseqSpaceCompaction: true,
		CompactionPriority:         PriorityBalance,
		DefaultStorageGroupLevel:   1,
		EnableAutoCreateSchema:     true,
		MRemoteSchemaCacheSize:     10000,
		ReadOperationTimeoutMs:     30000,
		WriteOperationTimeoutMs:    30000,
		StartUpTimeThresholdMs:     60000,
		HeartbeatIntervalMs:        500,
		NodeDataDir:                "./data",
		MetaBind:                   "127.0.0.1:9003",
		DataBind:                   "127.0.0.1:9004",
		ClientBind:                 "127.0.0.1:9005",
	}
}

// Load reads a YAML config file and overlays it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ReadOperationTimeout returns the configured read timeout as a Duration.
func (c *Config) ReadOperationTimeout() time.Duration {
	return time.Duration(c.ReadOperationTimeoutMs) * time.Millisecond
}

// WriteOperationTimeout returns the configured write timeout as a Duration.
func (c *Config) WriteOperationTimeout() time.Duration {
	return time.Duration(c.WriteOperationTimeoutMs) * time.Millisecond
}

// StartUpTimeThreshold returns the configured startup deadline as a Duration.
func (c *Config) StartUpTimeThreshold() time.Duration {
	return time.Duration(c.StartUpTimeThresholdMs) * time.Millisecond
}

// HeartbeatInterval returns the configured leader heartbeat interval as a
// Duration, matching the Raft-level heartbeat cadence by default (spec.md
// §5, "heartbeats at the Raft-configured interval").
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// StartUpStatus extracts the cluster-wide fields that must match bit-for-bit
// across every member (spec.md §3).
func (c *Config) StartUpStatus() types.StartUpStatus {
	return types.StartUpStatus{
		PartitionInterval: c.PartitionInterval,
		HashSalt:          c.HashSalt,
		ReplicationNum:    c.ReplicationNum,
		ClusterName:       c.ClusterName,
		SeedNodeURLs:      c.SeedNodeURLs,
	}
}
