package renderer

import (
	"GPU_scene_data/gpu"
	"GPU_scene_data/model"
)

type MaterialSetInfo struct {
	MaxMaterialCount int
}

func DefaultMaterialSetInfo() MaterialSetInfo {
	return MaterialSetInfo{MaxMaterialCount: 128}
}

// MaterialSet stages material records next to the textures they index. Textures are opaque handles owned by
// the caller.
type MaterialSet struct {
	dev  gpu.Device
	info MaterialSetInfo

	materials []model.MaterialRecord
	textures  []gpu.Texture

	records *StagedBuffer[model.MaterialRecord]
	set     descriptorSet
}

func NewMaterialSet(dev gpu.Device, info MaterialSetInfo) *MaterialSet {
	if info.MaxMaterialCount <= 0 {
		info.MaxMaterialCount = DefaultMaterialSetInfo().MaxMaterialCount
	}
	return &MaterialSet{
		dev:     dev,
		info:    info,
		records: NewStagedBuffer[model.MaterialRecord](dev, info.MaxMaterialCount, gpu.UsageStorage),
	}
}

func (ms *MaterialSet) PushMaterial(m model.MaterialRecord) (int, error) {
	i := len(ms.materials)
	if i >= ms.info.MaxMaterialCount {
		return -1, &CapacityError{Capacity: ms.info.MaxMaterialCount, Requested: i + 1}
	}
	ms.materials = append(ms.materials, m)
	return i, nil
}

// SetMaterial overwrites material i, filling gaps with DefaultMaterial.
func (ms *MaterialSet) SetMaterial(i int, m model.MaterialRecord) error {
	if i < 0 || i >= ms.info.MaxMaterialCount {
		return &CapacityError{Capacity: ms.info.MaxMaterialCount, Requested: i + 1}
	}
	for len(ms.materials) <= i {
		ms.materials = append(ms.materials, model.DefaultMaterial())
	}
	ms.materials[i] = m
	return nil
}

func (ms *MaterialSet) Material(i int) model.MaterialRecord { return ms.materials[i] }

func (ms *MaterialSet) MaterialCount() int { return len(ms.materials) }

// PushTexture appends a texture and returns the index materials refer to it by.
func (ms *MaterialSet) PushTexture(t gpu.Texture) (int32, error) {
	if len(ms.textures) >= TextureSlots {
		return model.NoTexture, &CapacityError{Capacity: TextureSlots, Requested: len(ms.textures) + 1}
	}
	ms.textures = append(ms.textures, t)
	return int32(len(ms.textures) - 1), nil
}

func (ms *MaterialSet) check() error {
	for i, m := range ms.materials {
		for _, t := range []int32{m.BaseColorTexture, m.MetallicRoughnessTexture, m.TransmissionTexture, m.NormalTexture} {
			if t != model.NoTexture && (t < 0 || int(t) >= len(ms.textures)) {
				return &UnresolvedError{Referrer: "material", Element: i, Target: "texture", Index: uint32(t)}
			}
		}
	}
	return nil
}

// CopyCommand stages the materials after checking that every texture index they use exists.
func (ms *MaterialSet) CopyCommand(cmd gpu.CommandContext) error {
	if err := ms.check(); err != nil {
		return err
	}
	if _, err := ms.records.WriteAll(ms.materials); err != nil {
		return err
	}
	ms.records.EnqueueUpload(cmd)
	return nil
}

func (ms *MaterialSet) Flush(q gpu.Queue) error {
	var cerr error
	err := q.SubmitOnce(func(cmd gpu.CommandContext) {
		cerr = ms.CopyCommand(cmd)
	})
	if cerr != nil {
		return cerr
	}
	return err
}

func (ms *MaterialSet) MaterialBuffer() gpu.Buffer { return ms.records.DeviceBuffer() }

// MakeDescriptorSet binds the textures from element 0 and the material records.
func (ms *MaterialSet) MakeDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	return ms.set.make(ms.dev, layout, []gpu.DescriptorWrite{
		{Binding: 0, Kind: gpu.DescriptorCombinedImageSampler, Textures: ms.textures},
		{Binding: 1, Kind: gpu.DescriptorStorageBuffer, Buffers: []gpu.BufferRange{{Buffer: ms.records.DeviceBuffer()}}},
	})
}

func (ms *MaterialSet) Destroy() {
	ms.records.Destroy()
}
