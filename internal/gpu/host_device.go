package gpu

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/fxnlabs/gpublas/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
)

// HostDevice implements Device by running device programs on host cores.
// It keeps a fixed memory budget so that allocation behaves like a discrete
// accelerator.
type HostDevice struct {
	logger       *zap.Logger
	id           string
	computeUnits int

	mu          sync.Mutex
	initialized bool
	capacity    int64
	used        int64
}

// NewHostDevice creates a host device with memoryBytes of device memory.
// computeUnits <= 0 uses one unit per CPU.
func NewHostDevice(memoryBytes int64, computeUnits int, logger *zap.Logger) *HostDevice {
	if computeUnits <= 0 {
		computeUnits = runtime.NumCPU()
	}
	return &HostDevice{
		logger:       logger.Named("host_device"),
		id:           uuid.NewString(),
		computeUnits: computeUnits,
		capacity:     memoryBytes,
	}
}

// Initialize prepares the host device for use
func (d *HostDevice) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}
	d.initialized = true
	d.logger.Info("Host device initialized",
		zap.String("id", d.id),
		zap.Int("compute_units", d.computeUnits),
		zap.Int64("memory_bytes", d.capacity),
		zap.String("features", hostFeatures()))
	return nil
}

// Cleanup marks the device unusable. Outstanding allocations are dropped.
func (d *HostDevice) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	d.used = 0
	metrics.DeviceMemoryUsedBytes.Set(0)
	return nil
}

// IsAvailable checks if the device is available (always true on the host)
func (d *HostDevice) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for the host device
func (d *HostDevice) GetDeviceInfo() DeviceInfo {
	used, total := d.MemoryUsage()
	return DeviceInfo{
		ID:                d.id,
		Name:              fmt.Sprintf("Host accelerator (%s)", runtime.GOARCH),
		TotalMemory:       total,
		AvailableMemory:   total - used,
		ComputeUnits:      d.computeUnits,
		ComputeCapability: hostFeatures(),
		DriverVersion:     runtime.Version(),
	}
}

// MemoryUsage returns the bytes in use and the memory budget of the device
func (d *HostDevice) MemoryUsage() (int64, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used, d.capacity
}

// Allocate reserves count elements of elem from the memory budget. It fails
// with ErrAllocation when the budget is exhausted or the device is not
// initialized.
func (d *HostDevice) Allocate(elem ElemType, count int) (*Memory, error) {
	const op = "allocate"
	if count <= 0 {
		return nil, newError(ErrAllocation, op, nil, "invalid element count %d", count)
	}
	bytes := int64(count) * int64(elem.Size())

	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return nil, newError(ErrAllocation, op, nil, "host device not initialized")
	}
	if d.used+bytes > d.capacity {
		used := d.used
		d.mu.Unlock()
		return nil, newError(ErrAllocation, op, nil, "out of device memory: requested %d bytes with %d of %d in use", bytes, used, d.capacity)
	}
	d.used += bytes
	metrics.DeviceMemoryUsedBytes.Set(float64(d.used))
	d.mu.Unlock()

	mem := &Memory{Elem: elem, Count: count}
	switch elem {
	case Float32:
		mem.Data = make([]float32, count)
	case Complex64:
		mem.Data = make([]complex64, count)
	default:
		d.Free(mem)
		return nil, newError(ErrAllocation, op, nil, "unsupported element type %s", elem)
	}
	return mem, nil
}

// Free returns mem to the memory budget. A nil mem is ignored.
func (d *HostDevice) Free(mem *Memory) {
	if mem == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.used -= mem.Bytes()
	if d.used < 0 {
		d.used = 0
	}
	metrics.DeviceMemoryUsedBytes.Set(float64(d.used))
}

// Upload copies the first count elements of the host slice src into dst.
func (d *HostDevice) Upload(dst *Memory, src any, count int) error {
	switch s := src.(type) {
	case []float32:
		copy(dst.Data.([]float32)[:count], s[:count])
	case []complex64:
		copy(dst.Data.([]complex64)[:count], s[:count])
	default:
		return fmt.Errorf("upload: unsupported host type %T", src)
	}
	metrics.TransferredBytes.WithLabelValues("host_to_device").Add(float64(count * dst.Elem.Size()))
	return nil
}

// Download copies the first count elements of src back into the host
// slice dst.
func (d *HostDevice) Download(dst any, src *Memory, count int) error {
	switch h := dst.(type) {
	case []float32:
		copy(h[:count], src.Data.([]float32)[:count])
	case []complex64:
		copy(h[:count], src.Data.([]complex64)[:count])
	default:
		return fmt.Errorf("download: unsupported host type %T", dst)
	}
	metrics.TransferredBytes.WithLabelValues("device_to_host").Add(float64(count * src.Elem.Size()))
	return nil
}

// Launch spreads the work groups of opts over the compute units. Each unit
// takes a contiguous run of groups to keep neighbouring tiles on one core.
func (d *HostDevice) Launch(program *Program, opts LaunchOptions, args Args) error {
	groups := opts.Groups()
	total := groups.Size()
	if total == 0 {
		return nil
	}

	workers := d.computeUnits
	if total < workers {
		workers = total
	}
	perWorker := (total + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := min(start+perWorker, total)
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = newError(ErrExecution, program.EntryPoint, nil, "device program panicked: %v", rec)
				}
			}()
			for linear := start; linear < end; linear++ {
				group := WorkGroup{
					ID:     linearToRange(linear, groups),
					Local:  opts.Local,
					Groups: groups,
					tuning: opts.Tuning,
				}
				if err := program.fn(group, args); err != nil {
					return fmt.Errorf("group %s: %w", group.ID, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// linearToRange converts a linear group index to 3D coordinates
func linearToRange(linear int, dim NDRange) NDRange {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return NDRange{X: x, Y: y, Z: z}
}

// hostFeatures reports the SIMD extensions the host programs can rely on.
func hostFeatures() string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasFMA {
			features = append(features, "fma")
		}
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fp16")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
	}
	if len(features) == 0 {
		return "generic"
	}
	return strings.Join(features, ",")
}
