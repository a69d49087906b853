package common

import (
	"fmt"
	"log"
	"unsafe"

	"GPU_scene_data/gpu"

	vk "github.com/goki/vulkan"
)

const (
	poolMaxSets               = 64
	poolStorageBuffers        = 4096
	poolAccelerationStructure = 64
	poolSampledImages         = 1024

	descriptorPoolUpdateAfterBind = 0x00000002
	wholeSize                     = ^uint64(0)
)

type DescriptorSetLayout struct {
	dc       *Device
	Handle   vk.DescriptorSetLayout
	bindings []gpu.LayoutBinding
}

func (l *DescriptorSetLayout) Bindings() []gpu.LayoutBinding { return l.bindings }

func (l *DescriptorSetLayout) Destroy() {
	vk.DestroyDescriptorSetLayout(l.dc.D, l.Handle, nil)
}

type DescriptorSet struct {
	Handle vk.DescriptorSet
	layout *DescriptorSetLayout
}

func (s *DescriptorSet) Layout() gpu.DescriptorSetLayout { return s.layout }

// SampledTexture is a caller owned image view and sampler pair, already in Layout when it gets written.
type SampledTexture struct {
	View    vk.ImageView
	Sampler vk.Sampler
	Layout  vk.ImageLayout
}

func (t *SampledTexture) TextureHandle() uintptr { return uintptr(unsafe.Pointer(t.View)) }

func (dc *Device) createDescriptorPool() {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: poolStorageBuffers},
		{Type: descriptorType(gpu.DescriptorAccelerationStructure), DescriptorCount: poolAccelerationStructure},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: poolSampledImages},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PNext:         nil,
		Flags:         vk.DescriptorPoolCreateFlags(descriptorPoolUpdateAfterBind),
		MaxSets:       poolMaxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	pool, err := VkCreateDescriptorPool(dc.D, &poolInfo, nil)
	if err != nil {
		log.Panicf("Failed to create descriptor pool: %s", err)
	}
	dc.descriptorPool = pool
}

func (dc *Device) CreateDescriptorSetLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorSetLayout, error) {
	if err := gpu.CheckLayout(bindings); err != nil {
		return nil, err
	}
	handle, err := dc.rt.createLayout(dc.D, bindings)
	if err != nil {
		return nil, fmt.Errorf("create descriptor set layout: %w", err)
	}
	return &DescriptorSetLayout{
		dc:       dc,
		Handle:   handle,
		bindings: append([]gpu.LayoutBinding(nil), bindings...),
	}, nil
}

func (dc *Device) AllocateDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	l, ok := layout.(*DescriptorSetLayout)
	if !ok || l.dc != dc {
		return nil, fmt.Errorf("layout was not created by this device")
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		PNext:              nil,
		DescriptorPool:     dc.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.Handle},
	}
	sets := make([]vk.DescriptorSet, 1)
	err := vk.Error(vk.AllocateDescriptorSets(dc.D, &allocInfo, &(sets[0])))
	if err != nil {
		return nil, fmt.Errorf("allocate descriptor set: %w", err)
	}
	return &DescriptorSet{Handle: sets[0], layout: l}, nil
}

func (dc *Device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) error {
	s, ok := set.(*DescriptorSet)
	if !ok {
		return fmt.Errorf("descriptor set was not allocated by this device")
	}
	if err := gpu.CheckWrites(s.layout.bindings, writes); err != nil {
		return err
	}
	type structureWrite struct {
		binding    uint32
		element    uint32
		structures []*Structure
	}
	var vkWrites []vk.WriteDescriptorSet
	var asWrites []structureWrite
	for _, w := range writes {
		switch w.Kind {
		case gpu.DescriptorStorageBuffer:
			infos := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for i, r := range w.Buffers {
				b, ok := r.Buffer.(*Buffer)
				if !ok || b.dc != dc {
					return fmt.Errorf("binding %d element %d: buffer was not created by this device", w.Binding, w.ArrayElement+uint32(i))
				}
				rng := r.Range
				if rng == 0 {
					rng = wholeSize
				}
				infos[i] = vk.DescriptorBufferInfo{
					Buffer: b.Handle,
					Offset: vk.DeviceSize(r.Offset),
					Range:  vk.DeviceSize(rng),
				}
			}
			vkWrites = append(vkWrites, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				PNext:           nil,
				DstSet:          s.Handle,
				DstBinding:      w.Binding,
				DstArrayElement: w.ArrayElement,
				DescriptorCount: uint32(len(infos)),
				DescriptorType:  vk.DescriptorTypeStorageBuffer,
				PBufferInfo:     infos,
			})
		case gpu.DescriptorCombinedImageSampler:
			infos := make([]vk.DescriptorImageInfo, len(w.Textures))
			for i, t := range w.Textures {
				st, ok := t.(*SampledTexture)
				if !ok {
					return fmt.Errorf("binding %d element %d: texture is not a sampled texture", w.Binding, w.ArrayElement+uint32(i))
				}
				infos[i] = vk.DescriptorImageInfo{
					Sampler:     st.Sampler,
					ImageView:   st.View,
					ImageLayout: st.Layout,
				}
			}
			vkWrites = append(vkWrites, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				PNext:           nil,
				DstSet:          s.Handle,
				DstBinding:      w.Binding,
				DstArrayElement: w.ArrayElement,
				DescriptorCount: uint32(len(infos)),
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				PImageInfo:      infos,
			})
		case gpu.DescriptorAccelerationStructure:
			structures := make([]*Structure, len(w.Structures))
			for i, a := range w.Structures {
				st, ok := a.(*Structure)
				if !ok || st.dc != dc {
					return fmt.Errorf("binding %d element %d: structure was not created by this device", w.Binding, w.ArrayElement+uint32(i))
				}
				structures[i] = st
			}
			asWrites = append(asWrites, structureWrite{w.Binding, w.ArrayElement, structures})
		}
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(dc.D, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
	// acceleration structure writes need a pNext payload the bindings do not model
	for _, w := range asWrites {
		dc.rt.writeStructures(dc.D, s.Handle, w.binding, w.element, w.structures)
	}
	return nil
}
