// Package stl reads binary STL files into indexed triangle meshes.
package stl

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"

	vm "GPU_scene_data/vector_math"
)

const (
	headerSize   = 80
	countSize    = 4
	triangleSize = 50
)

func ReadStlFile(path string) (*vm.Mesh, error) {
	log.Printf("Reading stl file %s", path)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Printf("Successfully read stl file, Triangle Count: %d, Unique vertices: %d", m.TriangleCount(), len(m.Positions))
	return m, nil
}

// Parse decodes a binary STL. Identical corner positions are welded into one vertex so the result indexes into a
// compact position array, and zero area facets are dropped.
func Parse(b []byte) (*vm.Mesh, error) {
	if len(b) < headerSize+countSize {
		return nil, fmt.Errorf("stl is %d bytes, shorter than its header", len(b))
	}
	triangleCnt := binary.LittleEndian.Uint32(b[headerSize : headerSize+countSize])
	body := b[headerSize+countSize:]
	if uint64(len(body)) < uint64(triangleCnt)*triangleSize {
		return nil, fmt.Errorf("stl announces %d triangles but holds %d bytes of triangle data", triangleCnt, len(body))
	}
	return toMesh(body, triangleCnt), nil
}

func toMesh(bytes []byte, triangleCnt uint32) *vm.Mesh {
	positions := make([]vm.Vec3, 0, triangleCnt)
	indices := make([]uint32, 0, triangleCnt*3)
	welded := make(map[vm.Vec3]uint32, triangleCnt)
	degenerate := 0

	for t := uint32(0); t < triangleCnt; t++ {
		i := int(t) * triangleSize
		// bytes[i:i+12] is the facet normal and bytes[i+48:i+50] the attribute count, neither is kept
		var corners [3]vm.Vec3
		for c := range corners {
			off := i + 12 + c*12
			corners[c] = toVec3(bytes[off : off+12])
		}
		if vm.TwiceAreaSq(corners[0], corners[1], corners[2]) == 0 {
			degenerate++
			continue
		}
		for _, p := range corners {
			idx, ok := welded[p]
			if !ok {
				idx = uint32(len(positions))
				welded[p] = idx
				positions = append(positions, p)
			}
			indices = append(indices, idx)
		}
	}
	if degenerate > 0 {
		log.Printf("Dropped %d degenerate triangles", degenerate)
	}
	return vm.NewMesh(positions, indices)
}

func toVec3(bytes []byte) vm.Vec3 {
	return vm.Vec3{
		X: toFloat32(bytes[:4]),
		Y: toFloat32(bytes[4:8]),
		Z: toFloat32(bytes[8:12]),
	}
}

func toFloat32(bytes []byte) float32 {
	bits := binary.LittleEndian.Uint32(bytes)
	return math.Float32frombits(bits)
}
