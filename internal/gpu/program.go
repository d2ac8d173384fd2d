package gpu

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// ArgKind is the type of one positional device program argument.
type ArgKind int

const (
	ArgInt ArgKind = iota + 1
	ArgFloat
	ArgFloatBuffer
	ArgComplexBuffer
)

var argKindNames = map[string]ArgKind{
	"int":            ArgInt,
	"float":          ArgFloat,
	"float_buffer":   ArgFloatBuffer,
	"complex_buffer": ArgComplexBuffer,
}

func (k ArgKind) String() string {
	for name, kind := range argKindNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("ArgKind(%d)", int(k))
}

// elem returns the buffer element type for buffer kinds.
func (k ArgKind) elem() ElemType {
	switch k {
	case ArgFloatBuffer:
		return Float32
	case ArgComplexBuffer:
		return Complex64
	default:
		return 0
	}
}

// Manifest lists the device modules and the signature of every entry point.
type Manifest struct {
	Modules []ModuleSpec `yaml:"modules"`
}

type ModuleSpec struct {
	Name        string           `yaml:"name"`
	EntryPoints []EntryPointSpec `yaml:"entryPoints"`
}

type EntryPointSpec struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`
}

// ParseManifest decodes a YAML program manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse program manifest: %w", err)
	}
	seen := make(map[string]bool, len(manifest.Modules))
	for _, module := range manifest.Modules {
		if module.Name == "" {
			return nil, fmt.Errorf("program manifest: module without a name")
		}
		if seen[module.Name] {
			return nil, fmt.Errorf("program manifest: duplicate module %q", module.Name)
		}
		seen[module.Name] = true
	}
	return &manifest, nil
}

// WorkGroup identifies the group a device program invocation runs for.
// Programs iterate their lanes (Local) themselves and must mask lanes whose
// global index falls outside the problem.
type WorkGroup struct {
	ID     NDRange // group index
	Local  NDRange // lanes per group
	Groups NDRange // number of groups
	tuning map[string]int
}

// GlobalX returns the global X index of lane lx.
func (g WorkGroup) GlobalX(lx int) int { return g.ID.X*g.Local.X + lx }

// GlobalY returns the global Y index of lane ly.
func (g WorkGroup) GlobalY(ly int) int { return g.ID.Y*g.Local.Y + ly }

// Param returns the tuning parameter name, or def when it was not set.
func (g WorkGroup) Param(name string, def int) int {
	if v, ok := g.tuning[name]; ok {
		return v
	}
	return def
}

// Args are the resolved positional arguments of a launch. Buffers appear as
// the device slices backing them.
type Args []any

func (a Args) Int(i int) int                { return a[i].(int) }
func (a Args) Float32(i int) float32        { return a[i].(float32) }
func (a Args) Float32s(i int) []float32     { return a[i].([]float32) }
func (a Args) Complex64s(i int) []complex64 { return a[i].([]complex64) }

// KernelFunc is a host implementation of a device program. It is invoked
// once per work group, possibly concurrently for different groups.
type KernelFunc func(g WorkGroup, args Args) error

// Program is a built device program: an entry point of a module with its
// positional signature.
type Program struct {
	Module     string
	EntryPoint string
	Signature  []ArgKind
	fn         KernelFunc
}

// Library resolves (module, entry point) names to programs. Entry point
// implementations are registered at startup; Build validates them against
// the manifest.
type Library struct {
	mu       sync.RWMutex
	manifest *Manifest
	funcs    map[string]KernelFunc
}

// NewLibrary creates a library over manifest.
func NewLibrary(manifest *Manifest) *Library {
	return &Library{
		manifest: manifest,
		funcs:    make(map[string]KernelFunc),
	}
}

// Register provides the implementation of an entry point.
func (l *Library) Register(entryPoint string, fn KernelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.funcs[entryPoint] = fn
}

// Modules returns the module names declared by the manifest.
func (l *Library) Modules() []string {
	names := make([]string, 0, len(l.manifest.Modules))
	for _, module := range l.manifest.Modules {
		names = append(names, module.Name)
	}
	return names
}

// Build produces the program for entryPoint in module. Any missing module,
// entry point, implementation or malformed signature is an ErrCompilation.
func (l *Library) Build(module, entryPoint string) (*Program, error) {
	const op = "build"

	var entry *EntryPointSpec
	for i := range l.manifest.Modules {
		m := &l.manifest.Modules[i]
		if m.Name != module {
			continue
		}
		for j := range m.EntryPoints {
			if m.EntryPoints[j].Name == entryPoint {
				entry = &m.EntryPoints[j]
				break
			}
		}
		if entry == nil {
			return nil, newError(ErrCompilation, op, nil, "module %q has no entry point %q", module, entryPoint)
		}
		break
	}
	if entry == nil {
		return nil, newError(ErrCompilation, op, nil, "module %q not found", module)
	}

	signature := make([]ArgKind, len(entry.Args))
	for i, name := range entry.Args {
		kind, ok := argKindNames[name]
		if !ok {
			return nil, newError(ErrCompilation, op, nil, "%s/%s: argument %d has unknown type %q", module, entryPoint, i, name)
		}
		signature[i] = kind
	}

	l.mu.RLock()
	fn, ok := l.funcs[entryPoint]
	l.mu.RUnlock()
	if !ok {
		return nil, newError(ErrCompilation, op, nil, "%s/%s: no implementation for this device", module, entryPoint)
	}

	return &Program{
		Module:     module,
		EntryPoint: entryPoint,
		Signature:  signature,
		fn:         fn,
	}, nil
}
