package renderer

import (
	"fmt"
	"log"

	"GPU_scene_data/gpu"
)

// Array widths of the bindless bindings.
const (
	RegistryBufferSlots = 256
	MeshBufferSlots     = 256
	IndirectBufferSlots = 256
	TextureSlots        = 256
)

// LayoutBuilder collects the bindings of one descriptor set layout. Every binding it adds is bindless: partially
// bound, updatable after bind and updatable while unused slots are pending.
type LayoutBuilder struct {
	bindings []gpu.LayoutBinding
}

func NewLayoutBuilder() *LayoutBuilder {
	return &LayoutBuilder{}
}

// Add appends a binding visible to every stage that reads scene data.
func (lb *LayoutBuilder) Add(binding uint32, kind gpu.DescriptorKind, count uint32) *LayoutBuilder {
	lb.bindings = append(lb.bindings, gpu.LayoutBinding{
		Binding: binding,
		Kind:    kind,
		Count:   count,
		Stages:  gpu.StageAll,
		Flags:   gpu.BindlessFlags,
	})
	return lb
}

func (lb *LayoutBuilder) Bindings() []gpu.LayoutBinding {
	return lb.bindings
}

// Create makes the layout on dev. Failure is fatal.
func (lb *LayoutBuilder) Create(dev gpu.Device) gpu.DescriptorSetLayout {
	layout, err := dev.CreateDescriptorSetLayout(lb.bindings)
	if err != nil {
		log.Panicf("Failed to create descriptor set layout: %s", err)
	}
	return layout
}

// RegistryLayout: binding 0 holds the registry buffers, binding 1 the binding table.
func RegistryLayout() *LayoutBuilder {
	return NewLayoutBuilder().
		Add(0, gpu.DescriptorStorageBuffer, RegistryBufferSlots).
		Add(1, gpu.DescriptorStorageBuffer, 1)
}

// MeshLayout: binding 0 holds the sub-mesh descriptors, binding 1 the bottom-level structure.
func MeshLayout() *LayoutBuilder {
	return NewLayoutBuilder().
		Add(0, gpu.DescriptorStorageBuffer, 1).
		Add(1, gpu.DescriptorAccelerationStructure, 1)
}

// SceneLayout: binding 0 holds the instance records, binding 1 the top-level structure and binding 2 the sub-mesh
// descriptor buffers of the referenced meshes, packed from element 0 in mesh id order. Element k is mesh id k only
// while the mesh list has no nil entries.
func SceneLayout() *LayoutBuilder {
	return NewLayoutBuilder().
		Add(0, gpu.DescriptorStorageBuffer, 1).
		Add(1, gpu.DescriptorAccelerationStructure, 1).
		Add(2, gpu.DescriptorStorageBuffer, MeshBufferSlots)
}

// DrawSetLayout: binding 0 holds the draw instances, binding 1 their indirect buffers.
func DrawSetLayout() *LayoutBuilder {
	return NewLayoutBuilder().
		Add(0, gpu.DescriptorStorageBuffer, 1).
		Add(1, gpu.DescriptorStorageBuffer, IndirectBufferSlots)
}

// MaterialLayout: binding 0 holds the textures, binding 1 the material records.
func MaterialLayout() *LayoutBuilder {
	return NewLayoutBuilder().
		Add(0, gpu.DescriptorCombinedImageSampler, TextureSlots).
		Add(1, gpu.DescriptorStorageBuffer, 1)
}

// descriptorSet is the create-once, update-in-place half of every component's binding lifecycle.
type descriptorSet struct {
	set     gpu.DescriptorSet
	created bool
}

// make allocates on first use and writes every non-empty write. A write the layout rejects is returned as an error;
// only a failing allocation is fatal.
func (ds *descriptorSet) make(dev gpu.Device, layout gpu.DescriptorSetLayout, writes []gpu.DescriptorWrite) (gpu.DescriptorSet, error) {
	if !ds.created {
		set, err := dev.AllocateDescriptorSet(layout)
		if err != nil {
			log.Panicf("Failed to allocate descriptor set: %s", err)
		}
		ds.set = set
		ds.created = true
	}
	// empty arrays are left unbound
	filtered := writes[:0:0]
	for _, w := range writes {
		if w.Count() > 0 {
			filtered = append(filtered, w)
		}
	}
	if len(filtered) > 0 {
		if err := dev.UpdateDescriptorSet(ds.set, filtered); err != nil {
			return nil, fmt.Errorf("updating descriptor set: %w", err)
		}
	}
	return ds.set, nil
}

// contiguous packs the populated buffers into consecutive array elements starting at 0, at most limit of them.
func contiguous(buffers []gpu.Buffer, limit int) ([]gpu.BufferRange, error) {
	out := make([]gpu.BufferRange, 0, min(len(buffers), limit))
	total := 0
	for _, b := range buffers {
		if b == nil {
			continue
		}
		total++
		if len(out) < limit {
			out = append(out, gpu.BufferRange{Buffer: b})
		}
	}
	if total > limit {
		return out, &CapacityError{Capacity: limit, Requested: total, Written: len(out)}
	}
	return out, nil
}
