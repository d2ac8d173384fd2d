package gpu

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// NDRange is a work partition of up to three dimensions. Unused dimensions
// are 1.
type NDRange struct {
	X, Y, Z int
}

// NewRange builds an NDRange from one to three extents.
func NewRange(dims ...int) NDRange {
	r := NDRange{X: 1, Y: 1, Z: 1}
	if len(dims) > 0 {
		r.X = dims[0]
	}
	if len(dims) > 1 {
		r.Y = dims[1]
	}
	if len(dims) > 2 {
		r.Z = dims[2]
	}
	return r
}

// Size returns the number of points in the range.
func (r NDRange) Size() int {
	return r.X * r.Y * r.Z
}

func (r NDRange) String() string {
	return fmt.Sprintf("(%d,%d,%d)", r.X, r.Y, r.Z)
}

// LaunchOptions describes one kernel launch: the global work partition, the
// work-group (local) partition and free-form tuning parameters read by the
// device program.
type LaunchOptions struct {
	Global NDRange
	Local  NDRange
	Tuning map[string]int
}

// NewLaunchOptions pairs a global and a local range.
func NewLaunchOptions(global, local NDRange) LaunchOptions {
	return LaunchOptions{Global: global, Local: local}
}

// WithTuning returns a copy of o carrying the named tuning parameter.
func (o LaunchOptions) WithTuning(name string, value int) LaunchOptions {
	tuning := make(map[string]int, len(o.Tuning)+1)
	maps.Copy(tuning, o.Tuning)
	tuning[name] = value
	o.Tuning = tuning
	return o
}

// Groups returns the number of work groups along each dimension.
func (o LaunchOptions) Groups() NDRange {
	return NDRange{
		X: o.Global.X / o.Local.X,
		Y: o.Global.Y / o.Local.Y,
		Z: o.Global.Z / o.Local.Z,
	}
}

// Validate checks that every local extent is positive and divides the
// global extent of the same dimension.
func (o LaunchOptions) Validate() error {
	global := [3]int{o.Global.X, o.Global.Y, o.Global.Z}
	local := [3]int{o.Local.X, o.Local.Y, o.Local.Z}
	for i := range global {
		if local[i] <= 0 || global[i] <= 0 {
			return fmt.Errorf("dimension %d: global %d and local %d must be positive", i, global[i], local[i])
		}
		if global[i]%local[i] != 0 {
			return fmt.Errorf("dimension %d: global %d is not a multiple of local %d", i, global[i], local[i])
		}
	}
	return nil
}

func (o LaunchOptions) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "global=%s local=%s", o.Global, o.Local)
	names := make([]string, 0, len(o.Tuning))
	for name := range o.Tuning {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%d", name, o.Tuning[name])
	}
	return b.String()
}

// TileCount returns ceil(n / g), the number of groups of granularity g
// needed to cover n elements.
func TileCount(n, g int) int {
	if n <= 0 {
		return 0
	}
	return (n + g - 1) / g
}

// Cover returns the one-dimensional partition covering n elements with
// groups of g lanes: global is the smallest multiple of g that is >= n and
// local is g. The lanes past n in the last group are left to the device
// program to mask. n <= 0 still yields one group, since a launch with an
// empty global range is invalid; callers skip empty problems before
// launching.
func Cover(n, g int) (global, local int) {
	tiles := TileCount(n, g)
	if tiles == 0 {
		tiles = 1
	}
	return tiles * g, g
}
