package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxnlabs/gpublas/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager handles device selection and the lifecycle of the engine that
// runs on it. One Manager is one device context.
type Manager struct {
	id     string
	device Device
	engine *Engine
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewManager selects and initializes the configured device and creates an
// engine over library.
func NewManager(cfg *config.Config, library *Library, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	id := uuid.NewString()
	m := &Manager{
		id:     id,
		logger: logger.Named("manager").With(zap.String("context", id)),
	}

	if err := m.detectAndInitialize(cfg); err != nil {
		return nil, err
	}

	m.engine = NewEngine(m.device, library, EngineOptions{
		Memoize:        cfg.Buffers.Memoize,
		MaxCachedBytes: cfg.Buffers.MaxCachedBytes,
	}, logger.With(zap.String("context", id)))

	return m, nil
}

// detectAndInitialize creates the configured device and initializes it
func (m *Manager) detectAndInitialize(cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, err := NewDevice(cfg.Device.Backend, cfg.Device.MemoryBytes, cfg.Device.ComputeUnits, m.logger)
	if err != nil {
		return err
	}
	if !device.IsAvailable() {
		return fmt.Errorf("device backend %q is not available", cfg.Device.Backend)
	}
	if err := device.Initialize(); err != nil {
		_ = device.Cleanup()
		return fmt.Errorf("failed to initialize device: %w", err)
	}
	m.device = device

	info := device.GetDeviceInfo()
	m.logger.Info("Device initialized",
		zap.String("device", info.Name),
		zap.String("compute_capability", info.ComputeCapability),
		zap.Int("compute_units", info.ComputeUnits),
		zap.Int64("total_memory_mb", info.TotalMemory/(1024*1024)))
	return nil
}

// ID identifies this device context in logs.
func (m *Manager) ID() string { return m.id }

// Engine returns the engine bound to the device
func (m *Manager) Engine() *Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

// GetDevice returns the current device
func (m *Manager) GetDevice() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// GetDeviceInfo returns device information from the current device
func (m *Manager) GetDeviceInfo() DeviceInfo {
	device := m.GetDevice()
	if device == nil {
		return DeviceInfo{Name: "No device available"}
	}
	return device.GetDeviceInfo()
}

// IsGPUAvailable returns true if a hardware accelerator is active
func (m *Manager) IsGPUAvailable() bool {
	device := m.GetDevice()
	if device == nil {
		return false
	}
	_, isHost := device.(*HostDevice)
	return !isHost
}

// GetBackendType returns a string describing the current device type
func (m *Manager) GetBackendType() string {
	device := m.GetDevice()
	if device == nil {
		return "none"
	}
	if _, isHost := device.(*HostDevice); isHost {
		return config.BackendHost
	}
	return "unknown"
}

// Cleanup waits for outstanding work and releases the device
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil
	}
	if err := m.engine.Close(ctx); err != nil {
		return err
	}
	if err := m.device.Cleanup(); err != nil {
		return err
	}
	m.device = nil
	m.engine = nil
	return nil
}
