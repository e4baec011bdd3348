package scenecache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshbridge/pkg/protocol"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Settings configures a Writer.
type Settings struct {
	// Level is a zstd level from 1 (fastest) to 22 (smallest). Zero
	// disables compression.
	Level       int
	MaxSegments int
	// QueueSize bounds the frames waiting to be written. Add blocks while
	// the queue is full.
	QueueSize int

	FlattenHierarchy bool
	MergeMeshes      bool
	StripNormals     bool
	StripTangents    bool
}

// DefaultSettings returns level 3 compression with 8 segments.
func DefaultSettings() Settings {
	return Settings{Level: 3, MaxSegments: 8, QueueSize: 4}
}

func (s Settings) flags() uint32 {
	var f uint32
	if s.FlattenHierarchy {
		f |= FlagFlattenHierarchy
	}
	if s.MergeMeshes {
		f |= FlagMergeMeshes
	}
	if s.StripNormals {
		f |= FlagStripNormals
	}
	if s.StripTangents {
		f |= FlagStripTangents
	}
	return f
}

type frame struct {
	scene *scene.Scene
	time  float32
}

type entityRecord struct {
	path      string
	kind      scene.EntityKind
	transform uint64
	geometry  uint64
	topology  uint64

	unchanged         int
	topologyUnchanged int
	frames            int
}

// Writer appends frames to a cache file. Frames are compressed and written
// on a background goroutine; Add and Close are called from the producer.
type Writer struct {
	out      *bufio.Writer
	closer   io.Closer
	settings Settings
	enc      *zstd.Encoder
	log      *zap.Logger

	queue   chan frame
	done    chan struct{}
	pending sync.WaitGroup

	mu     sync.Mutex
	err    error
	closed bool

	// owned by the write goroutine
	records map[string]*entityRecord
	order   []*entityRecord
	frames  int
	written int64
}

// Create creates the file at path and writes the cache header.
func Create(path string, s Settings, log *zap.Logger) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating cache file: %w", err)
	}
	w, err := NewWriter(f, s, log)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes the cache header to out and starts the write goroutine.
func NewWriter(out io.Writer, s Settings, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if s.MaxSegments < 1 {
		s.MaxSegments = 1
	}
	if s.QueueSize < 1 {
		s.QueueSize = 1
	}
	w := &Writer{
		out:      bufio.NewWriterSize(out, 1<<20),
		settings: s,
		log:      log,
		queue:    make(chan frame, s.QueueSize),
		done:     make(chan struct{}),
		records:  make(map[string]*entityRecord),
	}

	h := Header{
		Version:     cacheVersion,
		Encoding:    EncodingPlain,
		Level:       int32(s.Level),
		MaxSegments: uint32(s.MaxSegments),
		Flags:       s.flags(),
	}
	copy(h.Magic[:], cacheMagic)
	if s.Level > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(s.Level)))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		w.enc = enc
		h.Encoding = EncodingZstd
	}
	if err := binary.Write(w.out, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	go w.run()
	return w, nil
}

// Add applies the cache-only scene transforms and queues s for writing at
// time t. The writer takes ownership of s. Add blocks while the queue is
// full, until ctx is done.
func (w *Writer) Add(ctx context.Context, s *scene.Scene, t float32) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.pending.Add(1)
	w.mu.Unlock()

	if w.settings.FlattenHierarchy {
		s.FlattenHierarchy()
	}
	if w.settings.MergeMeshes {
		s.MergeMeshes()
	}
	if w.settings.StripNormals {
		s.StripNormals()
	}
	if w.settings.StripTangents {
		s.StripTangents()
	}

	select {
	case w.queue <- frame{scene: s, time: t}:
		return nil
	case <-ctx.Done():
		w.pending.Done()
		return ctx.Err()
	}
}

// Flush waits until every queued frame is written and returns the first
// write error.
func (w *Writer) Flush() error {
	w.pending.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int {
	w.pending.Wait()
	return w.frames
}

// Close writes the terminator and meta block and closes the output.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.queue)
	<-w.done

	w.mu.Lock()
	err := w.err
	w.mu.Unlock()
	if err == nil {
		err = w.finish()
	}
	err = multierr.Append(err, w.out.Flush())
	if w.enc != nil {
		err = multierr.Append(err, w.enc.Close())
	}
	if w.closer != nil {
		err = multierr.Append(err, w.closer.Close())
	}
	return err
}

func (w *Writer) run() {
	defer close(w.done)
	for f := range w.queue {
		w.mu.Lock()
		failed := w.err != nil
		w.mu.Unlock()
		if !failed {
			if err := w.writeFrame(f); err != nil {
				w.log.Error("cache frame write failed", zap.Float32("time", f.time), zap.Error(err))
				w.mu.Lock()
				w.err = err
				w.mu.Unlock()
			}
		}
		w.pending.Done()
	}
}

func (w *Writer) writeFrame(f frame) error {
	w.track(f.scene)

	segs := SplitSegments(f.scene, w.settings.MaxSegments)
	blocks := make([][]byte, len(segs))
	var g errgroup.Group
	for i, s := range segs {
		g.Go(func() error {
			blocks[i] = w.compress(protocol.EncodeScene(s))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := binary.Write(w.out, binary.LittleEndian, FrameHeader{SegmentCount: uint32(len(blocks)), Time: f.time}); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	for _, b := range blocks {
		if err := binary.Write(w.out, binary.LittleEndian, uint64(len(b))); err != nil {
			return fmt.Errorf("writing segment size: %w", err)
		}
	}
	for _, b := range blocks {
		if _, err := w.out.Write(b); err != nil {
			return fmt.Errorf("writing segment: %w", err)
		}
		w.written += int64(len(b))
	}
	w.frames++
	w.log.Debug("cache frame written",
		zap.Float32("time", f.time),
		zap.Int("segments", len(blocks)),
		zap.Int("entities", len(f.scene.Entities)))
	return nil
}

func (w *Writer) compress(b []byte) []byte {
	if w.enc == nil {
		return b
	}
	return w.enc.EncodeAll(b, make([]byte, 0, len(b)/2))
}

// track updates the per-entity change counters used for the meta block.
func (w *Writer) track(s *scene.Scene) {
	for _, e := range s.Entities {
		transform, geometry := e.TransformChecksum(), e.GeometryChecksum()
		var topology uint64
		if e.Mesh != nil {
			topology = e.Mesh.TopologyChecksum()
		}

		rec, ok := w.records[e.Path]
		if !ok {
			rec = &entityRecord{path: e.Path, kind: e.Kind}
			w.records[e.Path] = rec
			w.order = append(w.order, rec)
		} else {
			if rec.kind == e.Kind && rec.transform == transform && rec.geometry == geometry {
				rec.unchanged++
			}
			if rec.kind == e.Kind && rec.topology == topology {
				rec.topologyUnchanged++
			}
		}
		rec.kind = e.Kind
		rec.transform, rec.geometry, rec.topology = transform, geometry, topology
		rec.frames++
	}
}

func (w *Writer) finish() error {
	if err := binary.Write(w.out, binary.LittleEndian, FrameHeader{}); err != nil {
		return fmt.Errorf("writing terminator: %w", err)
	}

	var meta bytes.Buffer
	binary.Write(&meta, binary.LittleEndian, uint32(len(w.order)))
	for _, rec := range w.order {
		m := EntityMeta{
			Path:             rec.path,
			Kind:             uint8(rec.kind),
			Constant:         rec.frames == w.frames && rec.unchanged == w.frames-1,
			ConstantTopology: rec.frames == w.frames && rec.topologyUnchanged == w.frames-1,
		}
		writeMeta(&meta, m)
	}
	block := w.compress(meta.Bytes())
	if err := binary.Write(w.out, binary.LittleEndian, MetaHeader{Size: uint64(len(block))}); err != nil {
		return fmt.Errorf("writing meta header: %w", err)
	}
	if _, err := w.out.Write(block); err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}
	return nil
}

func writeMeta(buf *bytes.Buffer, m EntityMeta) {
	binary.Write(buf, binary.LittleEndian, uint32(len(m.Path)))
	buf.WriteString(m.Path)
	buf.WriteByte(m.Kind)
	buf.WriteByte(boolByte(m.Constant))
	buf.WriteByte(boolByte(m.ConstantTopology))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
