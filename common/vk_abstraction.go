package common

import (
	vk "github.com/goki/vulkan"
)

// Utility functions that reduce visual clutter by abstracting some of the common default values into very obvious
// functions that should cover their respective use case most of the time. This is done to cut down on labor writing
// things out that are unlikely to change or are not relevant now. The main way typing is reduced by moving or
// defaulting parameters from 'createInfo' structs.

// VKSAllocateCommandBuffers allocates as many command buffers as pAllocateInfo asks for.
func VKSAllocateCommandBuffers(device vk.Device, pAllocateInfo *vk.CommandBufferAllocateInfo) ([]vk.CommandBuffer, error) {
	var buffers = make([]vk.CommandBuffer, pAllocateInfo.CommandBufferCount)
	err := vk.Error(vk.AllocateCommandBuffers(device, pAllocateInfo, buffers))
	if err != nil {
		return nil, err
	}
	return buffers, nil
}

// VKSCreateCommandPool fills the two interesting values of the create info.
func VKSCreateCommandPool(device vk.Device, flags vk.CommandPoolCreateFlags, queueFamilyIndex uint32) (vk.CommandPool, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		PNext:            nil,
		Flags:            flags,
		QueueFamilyIndex: queueFamilyIndex,
	}
	return VkCreateCommandPool(device, &poolInfo, nil)
}

func VKAllocateCommandBuffersPrimary(device vk.Device, cmdPool vk.CommandPool, count uint32) ([]vk.CommandBuffer, error) {
	cbAllocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		PNext:              nil,
		CommandPool:        cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	buffers, err := VKSAllocateCommandBuffers(device, &cbAllocateInfo)
	if err != nil {
		return nil, err
	}
	return buffers, nil
}

// VKBeginSingleTimeCommands allocates one primary command buffer and opens it for one time submission.
func VKBeginSingleTimeCommands(device vk.Device, cmdPool vk.CommandPool) (vk.CommandBuffer, error) {
	buffers, err := VKAllocateCommandBuffersPrimary(device, cmdPool, 1)
	if err != nil {
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType:            vk.StructureTypeCommandBufferBeginInfo,
		PNext:            nil,
		Flags:            vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
		PInheritanceInfo: nil,
	}
	err = vk.Error(vk.BeginCommandBuffer(buffers[0], &beginInfo))
	if err != nil {
		vk.FreeCommandBuffers(device, cmdPool, 1, buffers)
		return nil, err
	}
	return buffers[0], nil
}

// VKEndSingleTimeCommands closes the command buffer, submits it, waits for the queue to drain and frees it again.
func VKEndSingleTimeCommands(device vk.Device, cmdPool vk.CommandPool, queue vk.Queue, cmdBuf vk.CommandBuffer) error {
	defer vk.FreeCommandBuffers(device, cmdPool, 1, []vk.CommandBuffer{cmdBuf})
	err := vk.Error(vk.EndCommandBuffer(cmdBuf))
	if err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		PNext:              nil,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmdBuf},
	}
	err = vk.Error(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, nil))
	if err != nil {
		return err
	}
	return vk.Error(vk.QueueWaitIdle(queue))
}
