package gpu

import (
	"fmt"

	"github.com/fxnlabs/gpublas/internal/config"
	"go.uber.org/zap"
)

// NewDevice creates the device named by backend. "auto" picks the best
// device compiled into this build, which is the host device.
func NewDevice(backend string, memoryBytes int64, computeUnits int, logger *zap.Logger) (Device, error) {
	switch backend {
	case config.BackendAuto:
		logger.Info("Using host device (compiled without accelerator support)")
		return NewHostDevice(memoryBytes, computeUnits, logger), nil
	case config.BackendHost:
		return NewHostDevice(memoryBytes, computeUnits, logger), nil
	default:
		return nil, fmt.Errorf("unknown device backend %q", backend)
	}
}
