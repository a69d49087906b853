package model

import (
	"bytes"
	"encoding/binary"
	"log"
)

// RawBytes writes a fixed size record (or slice of records) in its GPU byte layout. Blank padding fields are
// written as zeros. Anything that is not fixed size is a programming error.
func RawBytes(p any) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, p); err != nil {
		log.Panicf("binary.Write failed: %s", err)
	}
	return buf.Bytes()
}

// Stride returns the encoded size of one T.
func Stride[T any]() uint64 {
	var zero T
	n := binary.Size(zero)
	if n <= 0 {
		log.Panicf("%T has no fixed size encoding", zero)
	}
	return uint64(n)
}

// Decode reads records back out of their GPU byte layout, used by readback paths.
func Decode[T any](b []byte) ([]T, error) {
	out := make([]T, uint64(len(b))/Stride[T]())
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}
