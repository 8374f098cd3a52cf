// Package capacity resolves node names to static hardware descriptions
// (CPU cores, GPU count) from cluster configuration.
//
// Cluster configs map node-name glob patterns to hardware classes, so a
// thousand-node cluster is described in a handful of lines:
//
//	clusters:
//	  - hostname: alpine
//	    node_classes:
//	      - pattern: "gpu-*"
//	        cpu_cores: 64
//	        gpu_count: 8
//	      - pattern: "c[0-9][0-9][0-9]"
//	        cpu_cores: 128
//
// Lookups hand out immutable Snapshot values: a request holds one
// snapshot for its whole lifetime, so configuration reloads never mutate
// capacity data under an in-flight aggregation.
package capacity

import (
	"errors"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Hardware is the static capacity of one node.
type Hardware struct {
	CPUCores int `yaml:"cpu_cores" json:"cpu_cores"`
	GPUCount int `yaml:"gpu_count" json:"gpu_count"`
}

// Config errors.
var (
	ErrNoCPUCores     = errors.New("node class must declare cpu_cores > 0")
	ErrNegativeGPUs   = errors.New("node class gpu_count must be >= 0")
	ErrEmptyPattern   = errors.New("node class pattern is required")
	ErrInvalidPattern = errors.New("invalid node class pattern")
	ErrUnknownCluster = errors.New("unknown cluster hostname")
)

// NodeClass maps a node-name pattern to a hardware description.
// Patterns use doublestar glob semantics.
type NodeClass struct {
	Pattern  string `yaml:"pattern"`
	Hardware `yaml:",inline"`
}

// ClusterConfig describes one cluster's node classes.
type ClusterConfig struct {
	Hostname    string      `yaml:"hostname"`
	NodeClasses []NodeClass `yaml:"node_classes"`
}

// Config is the full capacity configuration file.
type Config struct {
	Clusters []ClusterConfig `yaml:"clusters"`
}

// Load reads and validates a capacity configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("capacity config not found: %s", path)
		}
		return nil, fmt.Errorf("read capacity config: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML capacity configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse capacity config: %w", err)
	}

	for _, cluster := range cfg.Clusters {
		if cluster.Hostname == "" {
			return nil, errors.New("capacity config: cluster hostname is required")
		}
		for _, nc := range cluster.NodeClasses {
			if nc.Pattern == "" {
				return nil, fmt.Errorf("%w: cluster %s", ErrEmptyPattern, cluster.Hostname)
			}
			if !doublestar.ValidatePattern(nc.Pattern) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, nc.Pattern)
			}
			if nc.CPUCores <= 0 {
				return nil, fmt.Errorf("%w: pattern %q", ErrNoCPUCores, nc.Pattern)
			}
			if nc.GPUCount < 0 {
				return nil, fmt.Errorf("%w: pattern %q", ErrNegativeGPUs, nc.Pattern)
			}
		}
	}

	return &cfg, nil
}

// Snapshot is an immutable per-cluster capacity lookup.
//
// Snapshot values are safe for concurrent use and never change after
// construction; reloading configuration produces a new Snapshot rather
// than mutating existing ones.
type Snapshot struct {
	classes []NodeClass
}

// Snapshot returns the capacity lookup for the given cluster hostname.
func (c *Config) Snapshot(hostname string) (*Snapshot, error) {
	for _, cluster := range c.Clusters {
		if cluster.Hostname == hostname {
			classes := make([]NodeClass, len(cluster.NodeClasses))
			copy(classes, cluster.NodeClasses)
			return &Snapshot{classes: classes}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCluster, hostname)
}

// EmptySnapshot returns a snapshot with no node classes. Every lookup
// misses, so all normalized views fall back to raw hours.
func EmptySnapshot() *Snapshot {
	return &Snapshot{}
}

// CapacityFor resolves a node name against the class patterns in file
// order, first match wins. The second return is false when no class
// matches; callers must then report raw hours instead of normalized
// utilization.
func (s *Snapshot) CapacityFor(node string) (Hardware, bool) {
	for _, nc := range s.classes {
		matched, err := doublestar.Match(nc.Pattern, node)
		if err == nil && matched {
			return nc.Hardware, true
		}
	}
	return Hardware{}, false
}
