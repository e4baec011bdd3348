package scenecache

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshbridge/pkg/protocol"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// FrameInfo locates one frame in the file.
type FrameInfo struct {
	Time     float32
	Offset   int64 // of the first segment
	Segments []uint64
}

// Size returns the compressed size of the frame.
func (f FrameInfo) Size() uint64 {
	var n uint64
	for _, s := range f.Segments {
		n += s
	}
	return n
}

// Reader gives random access to the frames of a cache file.
type Reader struct {
	file   *os.File
	header Header
	frames []FrameInfo
	meta   []EntityMeta
	dec    *zstd.Decoder

	metaOffset int64
	metaSize   uint64
}

// Open opens a cache file and indexes its frames.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	r := &Reader{file: file}
	if err := r.readIndex(); err != nil {
		file.Close()
		return nil, err
	}
	if r.header.Encoding == EncodingZstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		r.dec = dec
	}
	if err := r.readMeta(); err != nil {
		r.Close()
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	return r, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Frames returns the frame index.
func (r *Reader) Frames() []FrameInfo {
	return r.frames
}

// Len returns the number of frames.
func (r *Reader) Len() int {
	return len(r.frames)
}

// Meta returns the per-entity summary written at close.
func (r *Reader) Meta() []EntityMeta {
	return r.meta
}

// TimeRange returns the first and last frame times.
func (r *Reader) TimeRange() (start, end float32) {
	if len(r.frames) == 0 {
		return 0, 0
	}
	return r.frames[0].Time, r.frames[len(r.frames)-1].Time
}

// FrameAt returns the index of the last frame at or before t.
func (r *Reader) FrameAt(t float32) int {
	i := sort.Search(len(r.frames), func(i int) bool { return r.frames[i].Time > t })
	if i > 0 {
		i--
	}
	return i
}

// ReadFrame decodes frame i. Segments are decompressed in parallel.
func (r *Reader) ReadFrame(i int) (*scene.Scene, error) {
	if i < 0 || i >= len(r.frames) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(r.frames))
	}
	f := r.frames[i]
	raw := make([]byte, f.Size())
	if n, err := r.file.ReadAt(raw, f.Offset); n < len(raw) {
		return nil, fmt.Errorf("%w: frame %d: %v", ErrTruncated, i, err)
	}

	segs := make([]*scene.Scene, len(f.Segments))
	var g errgroup.Group
	off := uint64(0)
	for si, size := range f.Segments {
		block := raw[off : off+size]
		off += size
		g.Go(func() error {
			data, err := r.decompress(block)
			if err != nil {
				return fmt.Errorf("segment %d: %w", si, err)
			}
			s, err := protocol.DecodeScene(data)
			if err != nil {
				return fmt.Errorf("segment %d: %w", si, err)
			}
			segs[si] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading frame %d: %w", i, err)
	}
	return MergeSegments(segs), nil
}

func (r *Reader) decompress(b []byte) ([]byte, error) {
	if r.dec == nil {
		return b, nil
	}
	return r.dec.DecodeAll(b, nil)
}

func (r *Reader) readIndex() error {
	st, err := r.file.Stat()
	if err != nil {
		return err
	}
	fileSize := st.Size()

	br := bufio.NewReader(r.file)
	if err := binary.Read(br, binary.LittleEndian, &r.header); err != nil {
		return fmt.Errorf("%w: reading header", ErrTruncated)
	}
	if string(r.header.Magic[:]) != cacheMagic {
		return ErrInvalidMagic
	}
	if r.header.Version != cacheVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.header.Version)
	}
	if r.header.Encoding != EncodingPlain && r.header.Encoding != EncodingZstd {
		return fmt.Errorf("%w: %v", ErrUnsupportedVersion, r.header.Encoding)
	}

	offset := int64(binary.Size(r.header))
	for {
		var fh FrameHeader
		if err := binary.Read(br, binary.LittleEndian, &fh); err != nil {
			return fmt.Errorf("%w: frame %d header", ErrTruncated, len(r.frames))
		}
		offset += int64(binary.Size(fh))
		if fh.SegmentCount == 0 {
			break
		}
		if fh.SegmentCount > 1<<16 {
			return fmt.Errorf("%w: frame %d claims %d segments", ErrTruncated, len(r.frames), fh.SegmentCount)
		}

		info := FrameInfo{Time: fh.Time, Segments: make([]uint64, fh.SegmentCount)}
		if err := binary.Read(br, binary.LittleEndian, info.Segments); err != nil {
			return fmt.Errorf("%w: frame %d segment sizes", ErrTruncated, len(r.frames))
		}
		offset += int64(8 * fh.SegmentCount)
		info.Offset = offset

		// Sizes are summed against the bytes left so a corrupt entry
		// cannot overflow the running offset.
		left := uint64(max(fileSize-offset, 0))
		var sum uint64
		for _, s := range info.Segments {
			if s > left-sum {
				return fmt.Errorf("%w: frame %d segment of %d bytes exceeds file", ErrTruncated, len(r.frames), s)
			}
			sum += s
		}
		size := int64(sum)
		if _, err := br.Discard(int(size)); err != nil {
			return fmt.Errorf("%w: frame %d data", ErrTruncated, len(r.frames))
		}
		offset += size
		r.frames = append(r.frames, info)
	}

	var mh MetaHeader
	if err := binary.Read(br, binary.LittleEndian, &mh); err != nil {
		return fmt.Errorf("%w: meta header", ErrTruncated)
	}
	r.metaOffset = offset + int64(binary.Size(mh))
	r.metaSize = mh.Size
	return nil
}

func (r *Reader) readMeta() error {
	st, err := r.file.Stat()
	if err != nil {
		return err
	}
	if r.metaOffset+int64(r.metaSize) > st.Size() {
		return fmt.Errorf("%w: meta block of %d bytes", ErrTruncated, r.metaSize)
	}
	block := make([]byte, r.metaSize)
	if n, err := r.file.ReadAt(block, r.metaOffset); n < len(block) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	data, err := r.decompress(block)
	if err != nil {
		return err
	}

	br := bytes.NewReader(data)
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: entity count", ErrTruncated)
	}
	for i := uint32(0); i < n; i++ {
		m, err := readMeta(br)
		if err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
		r.meta = append(r.meta, m)
	}
	return nil
}

func readMeta(br *bytes.Reader) (EntityMeta, error) {
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil || int(n) > br.Len() {
		return EntityMeta{}, ErrTruncated
	}
	path := make([]byte, n)
	if _, err := io.ReadFull(br, path); err != nil {
		return EntityMeta{}, ErrTruncated
	}
	var flags [3]byte
	if _, err := io.ReadFull(br, flags[:]); err != nil {
		return EntityMeta{}, ErrTruncated
	}
	return EntityMeta{
		Path:             string(path),
		Kind:             flags[0],
		Constant:         flags[1] != 0,
		ConstantTopology: flags[2] != 0,
	}, nil
}
