package renderer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnresolved is returned when a record references a registry slot, mesh or texture that is not populated.
	ErrUnresolved = errors.New("unresolved reference")
	// ErrCapacity is returned when more records are written than a component was created for.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrStale is returned when instances still carry addresses of a mesh that has been reallocated since.
	ErrStale = errors.New("stale mesh reference")
	// ErrEmptyMesh is returned when a structure is requested for a mesh without sub-meshes.
	ErrEmptyMesh = errors.New("mesh has no sub-meshes")
)

// UnresolvedError names the record and the reference that could not be resolved.
type UnresolvedError struct {
	Referrer string // "sub-mesh", "instance", "material" ...
	Element  int    // position of the referrer, -1 for a direct lookup
	Target   string // what was looked up
	Index    uint32
}

func (e *UnresolvedError) Error() string {
	if e.Element < 0 {
		return fmt.Sprintf("%s %d is not populated", e.Target, e.Index)
	}
	return fmt.Sprintf("%s %d: %s %d is not populated", e.Referrer, e.Element, e.Target, e.Index)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// CapacityError reports a write past the construction-time capacity. Written records how many records made it.
type CapacityError struct {
	Capacity  int
	Requested int
	Written   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%d records requested but capacity is %d, %d written", e.Requested, e.Capacity, e.Written)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// StaleError lists instances that must be re-accepted before the next build.
type StaleError struct {
	Instances []int
}

func (e *StaleError) Error() string {
	ids := make([]string, len(e.Instances))
	for i, id := range e.Instances {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("instances [%s] reference reallocated meshes, call SetGeometryReferences", strings.Join(ids, " "))
}

func (e *StaleError) Unwrap() error { return ErrStale }
