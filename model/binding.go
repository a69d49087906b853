package model

// Format tags what a registry binding points at. Shaders switch on it when dereferencing.
type Format uint32

const (
	FormatUnknown Format = iota
	FormatFloat2
	FormatFloat3
	FormatFloat4
	FormatHalf3
	FormatUint32
	FormatUint16
	FormatUint8
	FormatRecords
)

// Binding is one entry of the bindless registry table. 16 bytes on the GPU.
type Binding struct {
	DeviceAddress uint64
	Stride        uint32
	Format        Format
}

const SizeOfBinding = 16
