package memgpu

import (
	"fmt"

	"GPU_scene_data/gpu"
)

// OpKind identifies a recorded command.
type OpKind int

const (
	OpCopy OpKind = iota
	OpBuild
)

// Op is one recorded command. Build inputs are copied at record time, like a real command buffer does.
type Op struct {
	Kind   OpKind
	Src    *Buffer
	Dst    *Buffer
	Size   uint64
	Build  gpu.BuildInfo
	Ranges []gpu.BuildRange
}

// Commands implements gpu.CommandContext.
type Commands struct {
	dev *Device
	ops []Op
}

func (c *Commands) own(b gpu.Buffer) *Buffer {
	mb, ok := b.(*Buffer)
	if !ok || mb.dev != c.dev {
		panic(ErrForeignResource)
	}
	return mb
}

func (c *Commands) CopyBuffer(src gpu.Buffer, dst gpu.Buffer, size uint64) {
	c.ops = append(c.ops, Op{Kind: OpCopy, Src: c.own(src), Dst: c.own(dst), Size: size})
}

func (c *Commands) BuildAccelerationStructure(info gpu.BuildInfo, ranges []gpu.BuildRange) {
	if len(info.Geometries) != len(ranges) {
		panic(fmt.Sprintf("memgpu: %d geometries recorded with %d ranges", len(info.Geometries), len(ranges)))
	}
	info.Geometries = append([]gpu.Geometry(nil), info.Geometries...)
	c.ops = append(c.ops, Op{Kind: OpBuild, Build: info, Ranges: append([]gpu.BuildRange(nil), ranges...)})
}

// Ops returns the recorded commands in order.
func (c *Commands) Ops() []Op { return c.ops }

// Builds returns only the recorded build commands.
func (c *Commands) Builds() []Op {
	var out []Op
	for _, op := range c.ops {
		if op.Kind == OpBuild {
			out = append(out, op)
		}
	}
	return out
}

// Execute runs the recorded commands in order, the way the GPU would after submission. Copies never write past
// the end of either buffer.
func (c *Commands) Execute() error {
	for i, op := range c.ops {
		switch op.Kind {
		case OpCopy:
			if op.Src.destroyed || op.Dst.destroyed {
				return fmt.Errorf("memgpu: command %d copies a destroyed buffer", i)
			}
			n := op.Size
			n = min(n, uint64(len(op.Src.data)), uint64(len(op.Dst.data)))
			copy(op.Dst.data[:n], op.Src.data[:n])
		case OpBuild:
			if err := c.execBuild(op); err != nil {
				return fmt.Errorf("memgpu: command %d: %w", i, err)
			}
		}
	}
	return nil
}

func (c *Commands) execBuild(op Op) error {
	dst, ok := op.Build.Destination.(*Structure)
	if !ok || dst == nil {
		return fmt.Errorf("build without a destination structure")
	}
	if dst.destroyed {
		return fmt.Errorf("build into a destroyed structure")
	}
	if dst.kind != op.Build.Kind {
		return fmt.Errorf("%s build into a %s structure", op.Build.Kind, dst.kind)
	}
	if _, _, ok := c.dev.resolve(op.Build.ScratchAddress); !ok {
		return fmt.Errorf("scratch address %#x is not backed by memory", op.Build.ScratchAddress)
	}
	var instances []byte
	for gi, g := range op.Build.Geometries {
		switch g.Kind {
		case gpu.GeometryTriangles:
			if op.Ranges[gi].PrimitiveCount == 0 {
				continue
			}
			if _, _, ok := c.dev.resolve(g.Triangles.VertexData); !ok {
				return fmt.Errorf("geometry %d vertex address %#x is not backed by memory", gi, g.Triangles.VertexData)
			}
			if g.Triangles.IndexType != gpu.IndexNone {
				if _, _, ok := c.dev.resolve(g.Triangles.IndexData); !ok {
					return fmt.Errorf("geometry %d index address %#x is not backed by memory", gi, g.Triangles.IndexData)
				}
			}
		case gpu.GeometryInstances:
			count := uint64(op.Ranges[gi].PrimitiveCount)
			if count == 0 {
				continue
			}
			b, off, ok := c.dev.resolve(g.Instances.Data)
			if !ok {
				return fmt.Errorf("geometry %d instance address %#x is not backed by memory", gi, g.Instances.Data)
			}
			end := off + count*NativeInstanceSize
			if end > uint64(len(b.data)) {
				return fmt.Errorf("geometry %d reads %d instances past the end of its buffer", gi, count)
			}
			instances = append(instances, b.data[off:end]...)
		}
	}
	dst.builds++
	dst.geometries = op.Build.Geometries
	dst.ranges = op.Ranges
	dst.instances = instances
	return nil
}
