package docker

import (
	"time"
)

// Config holds the configuration for the formatter containers.
type Config struct {
	// Image must provide the prettier binary on PATH.
	Image string
	// MemoryLimit is the maximum amount of memory a container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs a container can use.
	CPULimit float64
	// Timeout bounds a single exec.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
}

// DefaultConfig provides defaults for a Node-based Prettier sandbox.
func DefaultConfig() Config {
	return Config{
		Image: "codeshare/prettier:3-node22-alpine",
		// node needs more headroom than a shell tool
		MemoryLimit: 256 * 1024 * 1024,
		CPULimit:    0.5,
		Timeout:     10 * time.Second,
		PoolSize:    2,
	}
}
