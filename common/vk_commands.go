package common

import (
	"fmt"
	"log"

	"GPU_scene_data/gpu"

	vk "github.com/goki/vulkan"
)

const (
	stageTransfer          = 0x00001000
	stageAllCommands       = 0x00010000
	stageAccelerationBuild = 0x02000000

	accessShaderRead        = 0x00000020
	accessTransferWrite     = 0x00001000
	accessAccelerationRead  = 0x00200000
	accessAccelerationWrite = 0x00400000
)

// CommandContext records into one primary command buffer.
type CommandContext struct {
	dc  *Device
	Cmd vk.CommandBuffer
}

func NewCommandContext(dc *Device, cmd vk.CommandBuffer) *CommandContext {
	return &CommandContext{dc: dc, Cmd: cmd}
}

func (c *CommandContext) CopyBuffer(src gpu.Buffer, dst gpu.Buffer, size uint64) {
	s, d := c.own(src), c.own(dst)
	size = min(size, s.size, d.size)
	copyRegions := []vk.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      vk.DeviceSize(size),
		},
	}
	vk.CmdCopyBuffer(c.Cmd, s.Handle, d.Handle, 1, copyRegions)
}

// BuildAccelerationStructure waits for earlier copies and builds before recording the build, so staged build
// inputs and bottom-level structures referenced by a top-level build are complete.
func (c *CommandContext) BuildAccelerationStructure(info gpu.BuildInfo, ranges []gpu.BuildRange) {
	if len(info.Geometries) != len(ranges) {
		log.Panicf("%d geometries recorded with %d ranges", len(info.Geometries), len(ranges))
	}
	dst, ok := info.Destination.(*Structure)
	if !ok || dst.dc != c.dc {
		log.Panicf("Build destination was not created by this device")
	}
	c.barrier(stageTransfer|stageAccelerationBuild, accessTransferWrite|accessAccelerationWrite,
		stageAccelerationBuild, accessAccelerationRead|accessAccelerationWrite)
	c.dc.rt.cmdBuild(c.Cmd, info, dst.handle, ranges)
	// make the result visible to anything recorded after the build
	c.barrier(stageAccelerationBuild, accessAccelerationWrite, stageAllCommands, accessAccelerationRead|accessShaderRead)
}

func (c *CommandContext) barrier(srcStage uint32, srcAccess uint32, dstStage uint32, dstAccess uint32) {
	memoryBarrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		PNext:         nil,
		SrcAccessMask: vk.AccessFlags(srcAccess),
		DstAccessMask: vk.AccessFlags(dstAccess),
	}
	vk.CmdPipelineBarrier(c.Cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0,
		1, []vk.MemoryBarrier{memoryBarrier}, 0, nil, 0, nil)
}

func (c *CommandContext) own(b gpu.Buffer) *Buffer {
	vb, ok := b.(*Buffer)
	if !ok || vb.dc != c.dc {
		log.Panicf("Buffer was not created by this device")
	}
	return vb
}

// Queue implements gpu.Queue on the device's compute queue.
type Queue struct {
	dc *Device
}

func (q *Queue) SubmitOnce(record func(cmd gpu.CommandContext)) error {
	q.dc.mu.Lock()
	defer q.dc.mu.Unlock()
	cmdBuf, err := VKBeginSingleTimeCommands(q.dc.D, q.dc.commandPool)
	if err != nil {
		return fmt.Errorf("begin single time commands: %w", err)
	}
	record(NewCommandContext(q.dc, cmdBuf))
	err = VKEndSingleTimeCommands(q.dc.D, q.dc.commandPool, q.dc.ComputeQ, cmdBuf)
	if err != nil {
		return fmt.Errorf("submit single time commands: %w", err)
	}
	return nil
}
