package common

/*
#include "vk_rt.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"GPU_scene_data/gpu"

	vk "github.com/goki/vulkan"
)

// The go bindings stop at the core API. Acceleration structures, buffer device addresses and binding flags are
// reached through function pointers resolved per device and called from vk_rt.c.

const (
	vkGeometryTypeTriangles = 0
	vkGeometryTypeInstances = 2

	vkFormatR32G32B32Sfloat = 106
	vkFormatR16G16B16Sfloat = 90

	vkIndexTypeUint16 = 0
	vkIndexTypeUint32 = 1
	vkIndexTypeNone   = 1000165000
	vkIndexTypeUint8  = 1000265000

	vkStructureTypeTopLevel    = 0
	vkStructureTypeBottomLevel = 1

	vkDescriptorTypeAccelerationStructure = 1000150000
)

var errMissingProcs = errors.New("device does not expose the acceleration structure entry points")

// featureSupport is what a physical device reports for the features the scene layer needs.
type featureSupport struct {
	BufferDeviceAddress            bool
	DescriptorIndexing             bool
	RuntimeDescriptorArray         bool
	PartiallyBound                 bool
	UpdateUnusedWhilePending       bool
	StorageBufferUpdateAfterBind   bool
	SampledImageUpdateAfterBind    bool
	AccelerationStructure          bool
	AccelerationStructureAfterBind bool
}

func (f featureSupport) complete() bool {
	return f.BufferDeviceAddress && f.DescriptorIndexing && f.RuntimeDescriptorArray && f.PartiallyBound &&
		f.UpdateUnusedWhilePending && f.StorageBufferUpdateAfterBind && f.SampledImageUpdateAfterBind &&
		f.AccelerationStructure && f.AccelerationStructureAfterBind
}

// rtDispatch holds the resolved entry points for one instance and, once loadDevice ran, one device.
type rtDispatch struct {
	gipa     unsafe.Pointer
	instance vk.Instance
	procs    C.rtProcs
}

func newRtDispatch(getInstanceProcAddr unsafe.Pointer, instance vk.Instance) *rtDispatch {
	r := &rtDispatch{gipa: getInstanceProcAddr, instance: instance}
	C.rtLoadInstanceProcs(r.gipa, cInstance(instance), &r.procs)
	return r
}

func (r *rtDispatch) loadDevice(device vk.Device) error {
	if C.rtLoadDeviceProcs(r.gipa, cInstance(r.instance), cDevice(device), &r.procs) == 0 {
		return errMissingProcs
	}
	return nil
}

func (r *rtDispatch) features(pd vk.PhysicalDevice) featureSupport {
	var out C.rtFeatureSupport
	C.rtQueryFeatures(&r.procs, C.VkPhysicalDevice(unsafe.Pointer(pd)), &out)
	return featureSupport{
		BufferDeviceAddress:            out.bufferDeviceAddress != 0,
		DescriptorIndexing:             out.descriptorIndexing != 0,
		RuntimeDescriptorArray:         out.runtimeDescriptorArray != 0,
		PartiallyBound:                 out.partiallyBound != 0,
		UpdateUnusedWhilePending:       out.updateUnusedWhilePending != 0,
		StorageBufferUpdateAfterBind:   out.storageBufferUpdateAfterBind != 0,
		SampledImageUpdateAfterBind:    out.sampledImageUpdateAfterBind != 0,
		AccelerationStructure:          out.accelerationStructure != 0,
		AccelerationStructureAfterBind: out.accelerationStructureUpdateAfterBind != 0,
	}
}

func (r *rtDispatch) bufferAddress(device vk.Device, buf vk.Buffer) uint64 {
	return uint64(C.rtBufferAddress(&r.procs, cDevice(device), C.VkBuffer(unsafe.Pointer(buf))))
}

func (r *rtDispatch) buildSizes(device vk.Device, kind gpu.StructureKind, flags gpu.BuildFlags, geometries []gpu.Geometry, primitiveCounts []uint32) gpu.BuildSizes {
	geoms := toRtGeometries(geometries)
	counts := make([]C.uint32_t, len(primitiveCounts)+1)
	for i, c := range primitiveCounts {
		counts[i] = C.uint32_t(c)
	}
	var structureSize, scratchSize C.uint64_t
	C.rtBuildSizes(&r.procs, cDevice(device), structureType(kind), C.uint32_t(flags),
		&geoms[0], &counts[0], C.uint32_t(len(geometries)), &structureSize, &scratchSize)
	return gpu.BuildSizes{StructureSize: uint64(structureSize), ScratchSize: uint64(scratchSize)}
}

func (r *rtDispatch) createStructure(device vk.Device, kind gpu.StructureKind, storage *Buffer) (C.VkAccelerationStructureKHR, uint64, error) {
	var handle C.VkAccelerationStructureKHR
	var address C.uint64_t
	res := C.rtCreateStructure(&r.procs, cDevice(device), structureType(kind), C.VkBuffer(unsafe.Pointer(storage.Handle)),
		C.uint64_t(storage.Size()), &handle, &address)
	if err := vk.Error(vk.Result(res)); err != nil {
		return nil, 0, err
	}
	return handle, uint64(address), nil
}

func (r *rtDispatch) destroyStructure(device vk.Device, handle C.VkAccelerationStructureKHR) {
	C.rtDestroyStructure(&r.procs, cDevice(device), handle)
}

func (r *rtDispatch) cmdBuild(cmd vk.CommandBuffer, info gpu.BuildInfo, dst C.VkAccelerationStructureKHR, ranges []gpu.BuildRange) {
	geoms := toRtGeometries(info.Geometries)
	vkRanges := make([]C.VkAccelerationStructureBuildRangeInfoKHR, len(ranges)+1)
	for i, rg := range ranges {
		vkRanges[i] = C.VkAccelerationStructureBuildRangeInfoKHR{
			primitiveCount:  C.uint32_t(rg.PrimitiveCount),
			primitiveOffset: C.uint32_t(rg.PrimitiveOffset),
			firstVertex:     C.uint32_t(rg.FirstVertex),
			transformOffset: C.uint32_t(rg.TransformOffset),
		}
	}
	C.rtCmdBuild(&r.procs, C.VkCommandBuffer(unsafe.Pointer(cmd)), structureType(info.Kind), C.uint32_t(info.Flags),
		dst, C.uint64_t(info.ScratchAddress), &geoms[0], &vkRanges[0], C.uint32_t(len(info.Geometries)))
}

func (r *rtDispatch) createLayout(device vk.Device, bindings []gpu.LayoutBinding) (vk.DescriptorSetLayout, error) {
	cb := make([]C.rtLayoutBinding, len(bindings)+1)
	for i, b := range bindings {
		cb[i] = C.rtLayoutBinding{
			binding:        C.uint32_t(b.Binding),
			descriptorType: C.uint32_t(descriptorType(b.Kind)),
			count:          C.uint32_t(b.Count),
			stages:         C.uint32_t(shaderStages(b.Stages)),
			flags:          C.uint32_t(b.Flags),
		}
	}
	var out C.VkDescriptorSetLayout
	res := C.rtCreateLayout(&r.procs, cDevice(device), &cb[0], C.uint32_t(len(bindings)), &out)
	if err := vk.Error(vk.Result(res)); err != nil {
		return nil, err
	}
	return vk.DescriptorSetLayout(unsafe.Pointer(out)), nil
}

func (r *rtDispatch) writeStructures(device vk.Device, set vk.DescriptorSet, binding uint32, element uint32, structures []*Structure) {
	if len(structures) == 0 {
		return
	}
	handles := make([]C.VkAccelerationStructureKHR, len(structures))
	for i, s := range structures {
		handles[i] = s.handle
	}
	C.rtWriteStructures(&r.procs, cDevice(device), C.VkDescriptorSet(unsafe.Pointer(set)), C.uint32_t(binding),
		C.uint32_t(element), &handles[0], C.uint32_t(len(handles)))
}

// newDeviceFeatureChain returns a C allocated pNext chain enabling every feature the scene layer uses. Free it
// with freeC after vkCreateDevice returned.
func newDeviceFeatureChain() unsafe.Pointer {
	return C.rtNewDeviceFeatureChain()
}

func newMemoryAllocateFlags() unsafe.Pointer {
	return C.rtNewMemoryAllocateFlags()
}

func freeC(p unsafe.Pointer) {
	C.rtFree(p)
}

func cInstance(in vk.Instance) C.VkInstance {
	return C.VkInstance(unsafe.Pointer(in))
}

func cDevice(d vk.Device) C.VkDevice {
	return C.VkDevice(unsafe.Pointer(d))
}

// toRtGeometries flattens builder geometries. The result always holds at least one element so its first
// address can be passed to C.
func toRtGeometries(geometries []gpu.Geometry) []C.rtGeometry {
	out := make([]C.rtGeometry, len(geometries)+1)
	for i, g := range geometries {
		if g.Kind == gpu.GeometryInstances {
			out[i] = C.rtGeometry{
				kind:         vkGeometryTypeInstances,
				flags:        C.uint32_t(g.Flags),
				instanceData: C.uint64_t(g.Instances.Data),
			}
			if g.Instances.ArrayOfPointers {
				out[i].arrayOfPointers = 1
			}
			continue
		}
		out[i] = C.rtGeometry{
			kind:          vkGeometryTypeTriangles,
			flags:         C.uint32_t(g.Flags),
			vertexFormat:  C.uint32_t(vertexFormat(g.Triangles.VertexFormat)),
			maxVertex:     C.uint32_t(g.Triangles.MaxVertex),
			vertexData:    C.uint64_t(g.Triangles.VertexData),
			vertexStride:  C.uint64_t(g.Triangles.VertexStride),
			indexType:     C.uint32_t(indexType(g.Triangles.IndexType)),
			indexData:     C.uint64_t(g.Triangles.IndexData),
			transformData: C.uint64_t(g.Triangles.TransformData),
		}
	}
	return out
}

func structureType(k gpu.StructureKind) C.uint32_t {
	if k == gpu.TopLevel {
		return vkStructureTypeTopLevel
	}
	return vkStructureTypeBottomLevel
}

func vertexFormat(f gpu.VertexFormat) uint32 {
	if f == gpu.VertexHalf3 {
		return vkFormatR16G16B16Sfloat
	}
	return vkFormatR32G32B32Sfloat
}

func indexType(t gpu.IndexType) uint32 {
	switch t {
	case gpu.IndexUint32:
		return vkIndexTypeUint32
	case gpu.IndexUint16:
		return vkIndexTypeUint16
	case gpu.IndexUint8:
		return vkIndexTypeUint8
	}
	return vkIndexTypeNone
}

func descriptorType(k gpu.DescriptorKind) vk.DescriptorType {
	switch k {
	case gpu.DescriptorAccelerationStructure:
		return vk.DescriptorType(vkDescriptorTypeAccelerationStructure)
	case gpu.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeStorageBuffer
}

func shaderStages(s gpu.ShaderStages) uint32 {
	table := []struct {
		stage gpu.ShaderStages
		bit   uint32
	}{
		{gpu.StageVertex, 0x1},
		{gpu.StageGeometry, 0x8},
		{gpu.StageFragment, 0x10},
		{gpu.StageCompute, 0x20},
		{gpu.StageRaygen, 0x100},
		{gpu.StageAnyHit, 0x200},
		{gpu.StageClosestHit, 0x400},
		{gpu.StageMiss, 0x800},
	}
	out := uint32(0)
	for _, e := range table {
		if s&e.stage != 0 {
			out |= e.bit
		}
	}
	return out
}

func (f featureSupport) String() string {
	return fmt.Sprintf("bda:%t indexing:%t runtimeArray:%t partiallyBound:%t unusedWhilePending:%t "+
		"storageAfterBind:%t imageAfterBind:%t as:%t asAfterBind:%t",
		f.BufferDeviceAddress, f.DescriptorIndexing, f.RuntimeDescriptorArray, f.PartiallyBound,
		f.UpdateUnusedWhilePending, f.StorageBufferUpdateAfterBind, f.SampledImageUpdateAfterBind,
		f.AccelerationStructure, f.AccelerationStructureAfterBind)
}
