// Package scenecache reads and writes scene cache files: a time-indexed
// sequence of zstd-compressed scene snapshots for offline playback.
//
// File layout, little-endian:
//
//	Header
//	{ FrameHeader, segment sizes [SegmentCount]uint64, segments }...
//	FrameHeader{SegmentCount: 0} (terminator)
//	MetaHeader, zstd meta block
//
// Each segment is a zstd block holding a scene in the protocol encoding.
// Segment 0 carries settings, materials, non-geometry entities and
// animation; meshes are spread over the remaining segments.
package scenecache

import (
	"errors"
	"fmt"
)

const (
	cacheMagic   = "MSSC"
	cacheVersion = 1
)

// Cache format errors.
var (
	ErrInvalidMagic       = errors.New("invalid scene cache magic: expected 'MSSC'")
	ErrUnsupportedVersion = errors.New("unsupported scene cache version")
	ErrTruncated          = errors.New("truncated scene cache data")
	ErrFrameIndex         = errors.New("frame index out of range")
	ErrClosed             = errors.New("scene cache writer closed")
)

// Header flag bits.
const (
	FlagFlattenHierarchy uint32 = 1 << iota
	FlagMergeMeshes
	FlagStripNormals
	FlagStripTangents
)

// Encoding identifies the segment compression.
type Encoding uint32

const (
	EncodingPlain Encoding = iota
	EncodingZstd
)

func (e Encoding) String() string {
	switch e {
	case EncodingPlain:
		return "plain"
	case EncodingZstd:
		return "zstd"
	default:
		return fmt.Sprintf("encoding(%d)", uint32(e))
	}
}

// Header opens a cache file.
type Header struct {
	Magic       [4]byte
	Version     uint32
	Encoding    Encoding
	Level       int32
	MaxSegments uint32
	Flags       uint32
	FrameRate   float32
	ScaleFactor float32
}

// FrameHeader precedes the segments of one frame. A zero SegmentCount ends
// the frame list.
type FrameHeader struct {
	SegmentCount uint32
	Time         float32
}

// MetaHeader precedes the compressed meta block.
type MetaHeader struct {
	Size uint64
}

// EntityMeta summarizes one entity over the whole cache.
type EntityMeta struct {
	Path string
	Kind uint8
	// Constant is set when the entity never changed after the first frame.
	Constant bool
	// ConstantTopology is set when the polygon layout never changed.
	ConstantTopology bool
}
