package gpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/fxnlabs/gpublas/internal/metrics"
)

// Role says how a buffer's contents move between host and device.
type Role int

const (
	// RoleInput is copied host to device before the launch, never back.
	RoleInput Role = iota + 1
	// RoleInOut is copied to the device before and back after the launch.
	RoleInOut
	// RoleOutput is only copied back after the launch.
	RoleOutput
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleInOut:
		return "inout"
	case RoleOutput:
		return "output"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func (r Role) uploads() bool   { return r == RoleInput || r == RoleInOut }
func (r Role) downloads() bool { return r == RoleInOut || r == RoleOutput }

type bufferKey struct {
	host  uintptr
	role  Role
	elem  ElemType
	count int
}

// Buffer is device memory bound to a host slice for the duration of one
// call. It is released when the call's final event is satisfied.
type Buffer struct {
	key      bufferKey
	host     any
	mem      *Memory
	cache    *bufferCache
	released atomic.Bool
}

func (b *Buffer) Role() Role     { return b.key.role }
func (b *Buffer) Elem() ElemType { return b.key.elem }
func (b *Buffer) Len() int       { return b.key.count }

func (b *Buffer) upload() error {
	return b.cache.device.Upload(b.mem, b.host, b.key.count)
}

func (b *Buffer) download() error {
	return b.cache.device.Download(b.host, b.mem, b.key.count)
}

// Release hands the allocation back to the cache. Buffers passed to
// Kernel.SetArg are released by the kernel; Release is only needed for a
// buffer that never reaches one. Only the first call has an effect.
func (b *Buffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.cache.release(b.key, b.mem)
	}
}

// hostSlice inspects a host operand and returns its address, element type
// and length.
func hostSlice(host any) (uintptr, ElemType, int, error) {
	switch h := host.(type) {
	case []float32:
		return uintptr(unsafe.Pointer(unsafe.SliceData(h))), Float32, len(h), nil
	case []complex64:
		return uintptr(unsafe.Pointer(unsafe.SliceData(h))), Complex64, len(h), nil
	default:
		return 0, 0, 0, fmt.Errorf("unsupported host operand type %T", host)
	}
}

// bufferCache memoizes device allocations per (host pointer, role, element
// type, count). An allocation is leased to one call at a time, so calls that
// bind the same host region concurrently get distinct allocations.
type bufferCache struct {
	device   Device
	memoize  bool
	maxBytes int64

	mu        sync.Mutex
	idle      map[bufferKey][]*Memory
	idleBytes int64
}

func newBufferCache(device Device, memoize bool, maxBytes int64) *bufferCache {
	return &bufferCache{
		device:   device,
		memoize:  memoize,
		maxBytes: maxBytes,
		idle:     make(map[bufferKey][]*Memory),
	}
}

func (c *bufferCache) acquire(key bufferKey) (*Memory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memoize {
		if list := c.idle[key]; len(list) > 0 {
			mem := list[len(list)-1]
			if len(list) == 1 {
				delete(c.idle, key)
			} else {
				c.idle[key] = list[:len(list)-1]
			}
			c.idleBytes -= mem.Bytes()
			metrics.BufferCacheLookups.WithLabelValues("hit").Inc()
			return mem, nil
		}
		metrics.BufferCacheLookups.WithLabelValues("miss").Inc()
	}

	mem, err := c.device.Allocate(key.elem, key.count)
	if err != nil && errors.Is(err, ErrAllocation) && c.idleBytes > 0 {
		// Idle cached buffers are only an optimisation; give their memory
		// back before reporting exhaustion.
		c.purgeLocked()
		mem, err = c.device.Allocate(key.elem, key.count)
	}
	return mem, err
}

func (c *bufferCache) release(key bufferKey, mem *Memory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.memoize || c.idleBytes+mem.Bytes() > c.maxBytes {
		c.device.Free(mem)
		return
	}
	c.idle[key] = append(c.idle[key], mem)
	c.idleBytes += mem.Bytes()
}

func (c *bufferCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

func (c *bufferCache) purgeLocked() {
	for key, list := range c.idle {
		for _, mem := range list {
			c.device.Free(mem)
		}
		delete(c.idle, key)
	}
	c.idleBytes = 0
}

// idleCount returns the number of cached allocations not leased to a call.
func (c *bufferCache) idleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, list := range c.idle {
		n += len(list)
	}
	return n
}
