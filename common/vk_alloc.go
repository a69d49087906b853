package common

import (
	"fmt"
	"log"
	"unsafe"

	"GPU_scene_data/gpu"

	vk "github.com/goki/vulkan"
)

// This Code section contains allocation helper functions. It aims to simplify the allocation of buffers on the
// selected device. Every allocation carries the device address flag, host visible buffers stay mapped until they
// are destroyed.

type Buffer struct {
	Handle    vk.Buffer
	DeviceMem vk.DeviceMemory
	Usage     vk.BufferUsageFlags

	dc      *Device
	size    uint64
	address uint64
	props   vk.MemoryPropertyFlags
	mapped  []byte
	freed   bool
}

func (b *Buffer) Size() uint64 { return b.size }

func (b *Buffer) DeviceAddress() uint64 { return b.address }

func (b *Buffer) Mapped() []byte { return b.mapped }

func (b *Buffer) Destroy() {
	if b == nil || b.freed {
		return
	}
	if b.mapped != nil {
		vk.UnmapMemory(b.dc.D, b.DeviceMem)
		b.mapped = nil
	}
	vk.DestroyBuffer(b.dc.D, b.Handle, nil)
	vk.FreeMemory(b.dc.D, b.DeviceMem, nil)
	b.freed = true
}

func (dc *Device) CreateBuffer(size uint64, usage gpu.BufferUsage, memory gpu.MemoryKind) (gpu.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("cannot create zero sized buffer")
	}
	props := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if memory == gpu.MemoryHostVisible {
		props = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return createBuffer(dc, vk.DeviceSize(size), bufferUsage(usage|gpu.UsageDeviceAddress), props)
}

func createBuffer(dc *Device, size vk.DeviceSize, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*Buffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		PNext:                 nil,
		Flags:                 0,
		Size:                  size,
		Usage:                 usage,
		SharingMode:           vk.SharingModeExclusive,
		QueueFamilyIndexCount: 0,
		PQueueFamilyIndices:   nil,
	}
	buf, err := VkCreateBuffer(dc.D, &bufferInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("create buffer of %d bytes: %w", size, err)
	}

	bufRequirements := ReadBufferMemoryRequirements(dc.D, buf)
	memType, err := findMemoryType(dc, bufRequirements.MemoryTypeBits, props)
	if err != nil {
		vk.DestroyBuffer(dc.D, buf, nil)
		return nil, err
	}
	// allocFlags enables vkGetBufferDeviceAddress on the memory
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           dc.allocFlags,
		AllocationSize:  bufRequirements.Size,
		MemoryTypeIndex: memType,
	}
	deviceMem, err := VkAllocateMemory(dc.D, &allocInfo, nil)
	if err != nil {
		vk.DestroyBuffer(dc.D, buf, nil)
		return nil, fmt.Errorf("allocate %d bytes of buffer memory: %w", bufRequirements.Size, err)
	}
	err = VkBindBufferMemory(dc.D, buf, deviceMem, 0)
	if err != nil {
		vk.DestroyBuffer(dc.D, buf, nil)
		vk.FreeMemory(dc.D, deviceMem, nil)
		return nil, fmt.Errorf("bind buffer memory: %w", err)
	}

	b := &Buffer{
		Handle:    buf,
		DeviceMem: deviceMem,
		Usage:     usage,
		dc:        dc,
		size:      uint64(size),
		props:     props,
	}
	b.address = dc.rt.bufferAddress(dc.D, buf)

	if props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		pData, err := VkMapMemory(dc.D, deviceMem, 0, size, 0)
		if err != nil {
			b.Destroy()
			return nil, fmt.Errorf("map buffer memory: %w", err)
		}
		b.mapped = unsafe.Slice((*byte)(pData), int(size))
	}
	return b, nil
}

func bufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	table := []struct {
		usage gpu.BufferUsage
		bits  uint32
	}{
		{gpu.UsageTransferSrc, uint32(vk.BufferUsageTransferSrcBit)},
		{gpu.UsageTransferDst, uint32(vk.BufferUsageTransferDstBit)},
		{gpu.UsageStorage, uint32(vk.BufferUsageStorageBufferBit)},
		{gpu.UsageIndirect, uint32(vk.BufferUsageIndirectBufferBit)},
		{gpu.UsageVertex, uint32(vk.BufferUsageVertexBufferBit)},
		{gpu.UsageIndex, uint32(vk.BufferUsageIndexBufferBit)},
		{gpu.UsageDeviceAddress, 0x00020000},
		{gpu.UsageAccelerationStorage, 0x00100000},
		{gpu.UsageAccelerationBuildInput, 0x00080000},
	}
	out := uint32(0)
	for _, e := range table {
		if u&e.usage != 0 {
			out |= e.bits
		}
	}
	return vk.BufferUsageFlags(out)
}

func findMemoryType(dc *Device, typeFilter uint32, propFlags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < dc.PdMemoryProps.MemoryTypeCount; i++ {
		ofType := (typeFilter & (1 << i)) > 0
		hasProperties := dc.PdMemoryProps.MemoryTypes[i].PropertyFlags&propFlags == propFlags
		if ofType && hasProperties {
			return i, nil
		}
	}
	log.Printf("No memory type in %032b with properties %032b", typeFilter, propFlags)
	return 0, fmt.Errorf("no suitable memory type found")
}
