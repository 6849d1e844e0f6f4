package timeline

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// segmentFile is the serialized form of a sealed segment. The run-length
// records are flattened; zstd recovers the redundancy on disk.
type segmentFile struct {
	Version   int
	LoopID    string
	StartTick uint64
	Snapshots []Snapshot
}

const codecVersion = 1

// EncodeSegment serializes a sealed segment as zstd-compressed gob.
func EncodeSegment(s *Segment) ([]byte, error) {
	if !s.Sealed() {
		return nil, fmt.Errorf("encode segment: segment for loop %q is not sealed", s.LoopID())
	}
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("encode segment: %w", err)
	}
	file := segmentFile{
		Version:   codecVersion,
		LoopID:    s.LoopID(),
		StartTick: s.StartTick(),
		Snapshots: s.Snapshots(),
	}
	if err := gob.NewEncoder(zw).Encode(&file); err != nil {
		zw.Close()
		return nil, fmt.Errorf("encode segment: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("encode segment: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSegment rebuilds a sealed segment from EncodeSegment's output.
func DecodeSegment(data []byte) (*Segment, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode segment: %w", err)
	}
	defer zr.Close()

	var file segmentFile
	if err := gob.NewDecoder(zr).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode segment: %w", err)
	}
	if file.Version != codecVersion {
		return nil, fmt.Errorf("decode segment: unsupported version %d", file.Version)
	}
	return Restore(file.LoopID, file.StartTick, file.Snapshots), nil
}
