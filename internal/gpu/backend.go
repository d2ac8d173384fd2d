package gpu

import "fmt"

// DeviceInfo contains information about the compute device
type DeviceInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes
	AvailableMemory   int64  `json:"availableMemory"` // in bytes
	ComputeUnits      int    `json:"computeUnits"`
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
}

// ElemType is the element type of a device buffer.
type ElemType int

const (
	Float32 ElemType = iota + 1
	Complex64
)

// Size returns the element size in bytes.
func (t ElemType) Size() int {
	switch t {
	case Float32:
		return 4
	case Complex64:
		return 8
	default:
		return 0
	}
}

func (t ElemType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Complex64:
		return "complex64"
	default:
		return fmt.Sprintf("ElemType(%d)", int(t))
	}
}

// Memory is one device allocation. Data holds a []float32 or []complex64
// matching Elem.
type Memory struct {
	Elem  ElemType
	Count int
	Data  any
}

// Bytes returns the allocation size in bytes.
func (m *Memory) Bytes() int64 {
	return int64(m.Count) * int64(m.Elem.Size())
}

// Device defines the interface for compute devices backing an Engine.
//
// Implementation notes:
//   - Allocate must fail with ErrAllocation once the device budget is exhausted
//   - Launch runs one program over every work group of opts and returns when
//     all groups have finished; the Engine provides asynchrony and ordering
//   - Devices must be safe for concurrent use
type Device interface {
	// GetDeviceInfo returns information about the device
	GetDeviceInfo() DeviceInfo

	// IsAvailable checks if the device can be used without heavy
	// initialization
	IsAvailable() bool

	// Initialize prepares the device for use. It is idempotent.
	Initialize() error

	// Cleanup releases any resources held by the device
	Cleanup() error

	// Allocate reserves device memory for count elements of elem
	Allocate(elem ElemType, count int) (*Memory, error)

	// Free returns an allocation to the device
	Free(mem *Memory)

	// Upload copies count elements of the host slice src into dst
	Upload(dst *Memory, src any, count int) error

	// Download copies count elements of src into the host slice dst
	Download(dst any, src *Memory, count int) error

	// Launch executes program over the partition described by opts
	Launch(program *Program, opts LaunchOptions, args Args) error

	// MemoryUsage returns the bytes in use and the device budget
	MemoryUsage() (used, total int64)
}
