package scene

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// KindSpec describes how to build one entity kind.
type KindSpec struct {
	Name     string
	Aliases  []string
	Category Category
	New      func() Behavior
	// CreateAction receives the creation parameters of createObject, if any.
	CreateAction string
}

// KindTable maps kind names (case-insensitive) to their spec.
type KindTable struct {
	mu    sync.RWMutex
	kinds map[string]KindSpec
}

func NewKindTable() *KindTable {
	return &KindTable{kinds: make(map[string]KindSpec)}
}

// DefaultKinds returns a table with the built-in kinds registered.
func DefaultKinds() *KindTable {
	t := NewKindTable()
	for _, spec := range builtinKinds() {
		if err := t.Register(spec); err != nil {
			panic(err)
		}
	}
	return t
}

func builtinKinds() []KindSpec {
	return []KindSpec{
		{
			Name:         "camera",
			Category:     CategoryCamera,
			New:          func() Behavior { return NewCamera() },
			CreateAction: "setResolution",
		},
		{
			Name:         "sphere",
			Category:     CategoryObject,
			New:          func() Behavior { return NewSphere() },
			CreateAction: "setRadius",
		},
		{
			Name:         "cuboid",
			Aliases:      []string{"box"},
			Category:     CategoryObject,
			New:          func() Behavior { return NewCuboid() },
			CreateAction: "setMinMax",
		},
		{
			Name:         "mesh",
			Category:     CategoryObject,
			New:          func() Behavior { return NewMesh() },
			CreateAction: "load_mesh",
		},
		{
			Name:         "pointlight",
			Aliases:      []string{"light", "lightpoint", "light-point", "point"},
			Category:     CategoryLight,
			New:          func() Behavior { return NewPointLight() },
			CreateAction: "setColor",
		},
		{
			Name:         "arealight",
			Aliases:      []string{"parallelogram", "lightparallelogram"},
			Category:     CategoryLight,
			New:          func() Behavior { return NewAreaLight() },
			CreateAction: "setColor",
		},
	}
}

// Register adds spec under its name and aliases, replacing earlier entries.
func (t *KindTable) Register(spec KindSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return errors.New("kind name is empty")
	}
	if spec.New == nil {
		return fmt.Errorf("kind %s: nil constructor", spec.Name)
	}
	switch spec.Category {
	case CategoryCamera, CategoryObject, CategoryLight:
	default:
		return fmt.Errorf("kind %s: invalid category %d", spec.Name, spec.Category)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[strings.ToLower(spec.Name)] = spec
	for _, a := range spec.Aliases {
		t.kinds[strings.ToLower(a)] = spec
	}
	return nil
}

func (t *KindTable) Lookup(name string) (KindSpec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	spec, ok := t.kinds[strings.ToLower(strings.TrimSpace(name))]
	return spec, ok
}

// Names lists the canonical kind names.
func (t *KindTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, spec := range t.kinds {
		seen[spec.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
