package gpu

import "fmt"

// DescriptorKind is the resource kind bound at a layout slot.
type DescriptorKind int

const (
	DescriptorStorageBuffer DescriptorKind = iota
	DescriptorAccelerationStructure
	DescriptorCombinedImageSampler
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorStorageBuffer:
		return "storage-buffer"
	case DescriptorAccelerationStructure:
		return "acceleration-structure"
	case DescriptorCombinedImageSampler:
		return "combined-image-sampler"
	}
	return "unknown"
}

// ShaderStages is a visibility mask.
type ShaderStages uint32

const (
	StageVertex ShaderStages = 1 << iota
	StageGeometry
	StageFragment
	StageCompute
	StageRaygen
	StageAnyHit
	StageClosestHit
	StageMiss
)

// StageAll is every stage that reads scene data.
const StageAll = StageVertex | StageGeometry | StageFragment | StageCompute | StageRaygen | StageAnyHit | StageClosestHit | StageMiss

// BindingFlags mirror VkDescriptorBindingFlagBits.
type BindingFlags uint32

const (
	BindingUpdateAfterBind BindingFlags = 1 << iota
	BindingUpdateUnusedWhilePending
	BindingPartiallyBound
)

// BindlessFlags is what every scene-data slot uses: not every slot must be populated before use, and in-flight
// use does not block updates to unused slots.
const BindlessFlags = BindingUpdateAfterBind | BindingUpdateUnusedWhilePending | BindingPartiallyBound

// LayoutBinding describes one slot of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Kind    DescriptorKind
	Count   uint32
	Stages  ShaderStages
	Flags   BindingFlags
}

// DescriptorSetLayout is a created layout. Bindings returns the description it was made from.
type DescriptorSetLayout interface {
	Bindings() []LayoutBinding
	Destroy()
}

// DescriptorSet is an allocated set of a given layout.
type DescriptorSet interface {
	Layout() DescriptorSetLayout
}

// BufferRange is a view into a buffer. A zero Range means "to the end".
type BufferRange struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

// DescriptorWrite updates Count consecutive array elements of one binding starting at ArrayElement. Exactly one of
// Buffers, Structures or Textures is used depending on Kind.
type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Kind         DescriptorKind
	Buffers      []BufferRange
	Structures   []AccelerationStructure
	Textures     []Texture
}

// Count is the number of descriptors the write carries.
func (w DescriptorWrite) Count() int {
	switch w.Kind {
	case DescriptorAccelerationStructure:
		return len(w.Structures)
	case DescriptorCombinedImageSampler:
		return len(w.Textures)
	}
	return len(w.Buffers)
}

// CheckLayout rejects bindings declared twice and bindings without descriptors.
func CheckLayout(bindings []LayoutBinding) error {
	seen := map[uint32]bool{}
	for _, b := range bindings {
		if seen[b.Binding] {
			return fmt.Errorf("binding %d declared twice", b.Binding)
		}
		if b.Count == 0 {
			return fmt.Errorf("binding %d has zero descriptors", b.Binding)
		}
		seen[b.Binding] = true
	}
	return nil
}

// CheckWrites validates every write against the layout bindings: the binding must exist, hold the same kind and
// have room for all written elements.
func CheckWrites(bindings []LayoutBinding, writes []DescriptorWrite) error {
	for _, w := range writes {
		b, ok := findBinding(bindings, w.Binding)
		if !ok {
			return fmt.Errorf("layout has no binding %d", w.Binding)
		}
		if b.Kind != w.Kind {
			return fmt.Errorf("binding %d holds %s, write carries %s", w.Binding, b.Kind, w.Kind)
		}
		if uint64(w.ArrayElement)+uint64(w.Count()) > uint64(b.Count) {
			return fmt.Errorf("write of %d descriptors at element %d overflows binding %d of size %d",
				w.Count(), w.ArrayElement, w.Binding, b.Count)
		}
	}
	return nil
}

func findBinding(bindings []LayoutBinding, n uint32) (LayoutBinding, bool) {
	for _, b := range bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return LayoutBinding{}, false
}
