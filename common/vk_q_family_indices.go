package common

import (
	"errors"
	"log"

	vk "github.com/goki/vulkan"
)

// QueueFamilyIndices only tracks the family used for transfers and structure builds. Both run on any compute
// capable family, no presentation is involved.
type QueueFamilyIndices struct {
	ComputeFamily *uint32
}

func findQueueFamilies(pd vk.PhysicalDevice) (*QueueFamilyIndices, error) {
	indices := &QueueFamilyIndices{
		ComputeFamily: nil,
	}
	qFamilies := ReadQueueFamilies(pd)

	// Prefer a family that also does graphics, that one is guaranteed to run every command we record
	for i := range qFamilies {
		if isBitSet(qFamilies[i], vk.QueueComputeBit) && isBitSet(qFamilies[i], vk.QueueGraphicsBit) {
			indices.ComputeFamily = new(uint32)
			*indices.ComputeFamily = uint32(i)
			break
		}
	}
	if indices.ComputeFamily == nil {
		for i := range qFamilies {
			if isBitSet(qFamilies[i], vk.QueueComputeBit) {
				indices.ComputeFamily = new(uint32)
				*indices.ComputeFamily = uint32(i)
				break
			}
		}
	}
	if indices.ComputeFamily == nil {
		return nil, errors.New("unable to find compute capable queue family")
	}
	return indices, nil
}

func isBitSet(qFamily vk.QueueFamilyProperties, bit vk.QueueFlagBits) bool {
	return vk.QueueFlagBits(qFamily.QueueFlags)&bit > 0
}

func (q *QueueFamilyIndices) isAllQueuesFound() bool {
	return q.ComputeFamily != nil
}

func (q *QueueFamilyIndices) toQueueCreateInfos() []vk.DeviceQueueCreateInfo {
	if q.ComputeFamily == nil {
		log.Panicf("Failed to access compute capable queue family index")
	}
	return []vk.DeviceQueueCreateInfo{
		{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			PNext:            nil,
			Flags:            0,
			QueueFamilyIndex: *q.ComputeFamily,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		},
	}
}
