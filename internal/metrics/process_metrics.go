package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

const bytesPerMB = 1024 * 1024

// MemorySample is a point-in-time view of the server's own memory use.
type MemorySample struct {
	HeapMB   float64 `json:"heap_mb"`
	RSSBytes uint64  `json:"rss_bytes,omitempty"` // zero when the platform does not report it
}

// MemorySampler reads memory usage of the current process.
type MemorySampler interface {
	Sample(ctx context.Context) MemorySample
}

// ProcessMemory samples the Go heap and, when available, resident set size
// of the current process via gopsutil.
type ProcessMemory struct {
	once sync.Once
	proc *process.Process
}

func NewProcessMemory() *ProcessMemory { return &ProcessMemory{} }

func (p *ProcessMemory) Sample(ctx context.Context) MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := MemorySample{HeapMB: float64(ms.HeapAlloc) / bytesPerMB}

	p.once.Do(func() {
		proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
		if err == nil {
			p.proc = proc
		}
	})
	if p.proc != nil {
		if mi, err := p.proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			s.RSSBytes = mi.RSS
		}
	}
	return s
}

// StaticMemory is a fixed sampler for tests and tooling.
type StaticMemory MemorySample

func (m StaticMemory) Sample(context.Context) MemorySample { return MemorySample(m) }
