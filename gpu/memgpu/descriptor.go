package memgpu

import (
	"fmt"

	"GPU_scene_data/gpu"
)

// Layout implements gpu.DescriptorSetLayout.
type Layout struct {
	bindings  []gpu.LayoutBinding
	destroyed bool
}

func (l *Layout) Bindings() []gpu.LayoutBinding { return l.bindings }

func (l *Layout) Destroy() { l.destroyed = true }

// Set implements gpu.DescriptorSet and keeps every slot that was written.
type Set struct {
	layout     *Layout
	buffers    map[slot]gpu.BufferRange
	structures map[slot]gpu.AccelerationStructure
	textures   map[slot]gpu.Texture
	writes     int
}

type slot struct {
	binding uint32
	element uint32
}

func (s *Set) Layout() gpu.DescriptorSetLayout { return s.layout }

// Buffer reads back the buffer written to binding[element].
func (s *Set) Buffer(binding, element uint32) (gpu.BufferRange, bool) {
	r, ok := s.buffers[slot{binding, element}]
	return r, ok
}

// Structure reads back the acceleration structure written to binding[element].
func (s *Set) Structure(binding, element uint32) (gpu.AccelerationStructure, bool) {
	a, ok := s.structures[slot{binding, element}]
	return a, ok
}

// Texture reads back the texture written to binding[element].
func (s *Set) Texture(binding, element uint32) (gpu.Texture, bool) {
	t, ok := s.textures[slot{binding, element}]
	return t, ok
}

// Populated counts written slots of one binding.
func (s *Set) Populated(binding uint32) int {
	n := 0
	for k := range s.buffers {
		if k.binding == binding {
			n++
		}
	}
	for k := range s.structures {
		if k.binding == binding {
			n++
		}
	}
	for k := range s.textures {
		if k.binding == binding {
			n++
		}
	}
	return n
}

// Writes counts descriptor writes applied to the set.
func (s *Set) Writes() int { return s.writes }

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorSetLayout, error) {
	if err := gpu.CheckLayout(bindings); err != nil {
		return nil, fmt.Errorf("memgpu: %w", err)
	}
	return &Layout{bindings: append([]gpu.LayoutBinding(nil), bindings...)}, nil
}

func (d *Device) AllocateDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	l, ok := layout.(*Layout)
	if !ok {
		return nil, ErrForeignResource
	}
	if l.destroyed {
		return nil, fmt.Errorf("memgpu: allocating from a destroyed layout")
	}
	d.mu.Lock()
	d.setAllocations++
	d.mu.Unlock()
	return &Set{
		layout:     l,
		buffers:    map[slot]gpu.BufferRange{},
		structures: map[slot]gpu.AccelerationStructure{},
		textures:   map[slot]gpu.Texture{},
	}, nil
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) error {
	s, ok := set.(*Set)
	if !ok {
		return ErrForeignResource
	}
	// validate everything first so a bad write leaves the set untouched
	if err := gpu.CheckWrites(s.layout.bindings, writes); err != nil {
		return fmt.Errorf("memgpu: %w", err)
	}
	for _, w := range writes {
		switch w.Kind {
		case gpu.DescriptorStorageBuffer:
			for i, r := range w.Buffers {
				s.buffers[slot{w.Binding, w.ArrayElement + uint32(i)}] = r
			}
		case gpu.DescriptorAccelerationStructure:
			for i, a := range w.Structures {
				s.structures[slot{w.Binding, w.ArrayElement + uint32(i)}] = a
			}
		case gpu.DescriptorCombinedImageSampler:
			for i, t := range w.Textures {
				s.textures[slot{w.Binding, w.ArrayElement + uint32(i)}] = t
			}
		}
		s.writes++
	}
	return nil
}

// Texture is a stand-in sampled image.
type Texture uintptr

func (t Texture) TextureHandle() uintptr { return uintptr(t) }
