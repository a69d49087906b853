package common

/*
#include "vk_rt.h"
*/
import "C"

import (
	"fmt"

	"GPU_scene_data/gpu"
)

// Structure is a VkAccelerationStructureKHR placed at offset 0 of a caller owned storage buffer.
type Structure struct {
	dc        *Device
	handle    C.VkAccelerationStructureKHR
	kind      gpu.StructureKind
	address   uint64
	destroyed bool
}

func (s *Structure) Kind() gpu.StructureKind { return s.kind }

// DeviceAddress as reported by vkGetAccelerationStructureDeviceAddressKHR.
func (s *Structure) DeviceAddress() uint64 { return s.address }

func (s *Structure) Destroy() {
	if s == nil || s.destroyed {
		return
	}
	s.dc.rt.destroyStructure(s.dc.D, s.handle)
	s.destroyed = true
}

func (dc *Device) AccelerationStructureSizes(kind gpu.StructureKind, flags gpu.BuildFlags, geometries []gpu.Geometry, primitiveCounts []uint32) (gpu.BuildSizes, error) {
	if len(geometries) != len(primitiveCounts) {
		return gpu.BuildSizes{}, fmt.Errorf("%d geometries but %d primitive counts", len(geometries), len(primitiveCounts))
	}
	for i, g := range geometries {
		if kind == gpu.TopLevel && g.Kind != gpu.GeometryInstances {
			return gpu.BuildSizes{}, fmt.Errorf("top-level geometry %d is not of kind instances", i)
		}
		if kind == gpu.BottomLevel && g.Kind != gpu.GeometryTriangles {
			return gpu.BuildSizes{}, fmt.Errorf("bottom-level geometry %d is not of kind triangles", i)
		}
	}
	sizes := dc.rt.buildSizes(dc.D, kind, flags, geometries, primitiveCounts)
	if sizes.StructureSize == 0 {
		return gpu.BuildSizes{}, fmt.Errorf("driver reported a zero sized %s structure", kind)
	}
	return sizes, nil
}

func (dc *Device) CreateAccelerationStructure(kind gpu.StructureKind, storage gpu.Buffer) (gpu.AccelerationStructure, error) {
	b, ok := storage.(*Buffer)
	if !ok || b.dc != dc {
		return nil, fmt.Errorf("storage buffer was not created by this device")
	}
	if b.Usage&bufferUsage(gpu.UsageAccelerationStorage) == 0 {
		return nil, fmt.Errorf("storage buffer lacks acceleration structure storage usage")
	}
	handle, address, err := dc.rt.createStructure(dc.D, kind, b)
	if err != nil {
		return nil, fmt.Errorf("create %s structure: %w", kind, err)
	}
	return &Structure{dc: dc, handle: handle, kind: kind, address: address}, nil
}
