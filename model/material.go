package model

// NoTexture marks an unused texture slot of a material.
const NoTexture = int32(-1)

// MaterialRecord is a metallic-roughness material. Texture fields index the material set's texture array.
type MaterialRecord struct {
	BaseColorFactor          [4]float32
	Metallic                 float32
	Roughness                float32
	Transmission             float32
	IOR                      float32
	BaseColorTexture         int32
	MetallicRoughnessTexture int32
	TransmissionTexture      int32
	NormalTexture            int32
}

const SizeOfMaterial = 48

func DefaultMaterial() MaterialRecord {
	return MaterialRecord{
		BaseColorFactor:          [4]float32{1, 1, 1, 1},
		Roughness:                1,
		IOR:                      1.5,
		BaseColorTexture:         NoTexture,
		MetallicRoughnessTexture: NoTexture,
		TransmissionTexture:      NoTexture,
		NormalTexture:            NoTexture,
	}
}
