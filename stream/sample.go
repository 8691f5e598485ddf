// Package stream moves coordinate frames across the active backend. Delivery
// is lossy on purpose: frames describe the present, so a frame that cannot be
// written right now is dropped rather than queued behind a dead transport.
package stream

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/c360/robotlink/errors"
)

// Sample is one coordinate frame: a reference point and a tracked point in
// normalized 3D space, stamped with the capture time in Unix seconds.
type Sample struct {
	Timestamp      float64    `json:"timestamp"`
	ReferencePoint [3]float64 `json:"reference_point"`
	TrackedPoint   [3]float64 `json:"tracked_point"`
}

// Encode serializes the sample as a single newline-terminated JSON frame
func (s Sample) Encode() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, errors.WrapInvalid(err, "stream", "Encode", "marshal sample")
	}
	return append(payload, '\n'), nil
}

// Decode parses a single frame produced by Encode. A trailing newline is
// accepted and ignored.
func Decode(frame []byte) (Sample, error) {
	frame = bytes.TrimRight(frame, "\r\n")
	if len(frame) == 0 {
		return Sample{}, errors.WrapInvalid(errors.ErrMalformedResponse, "stream", "Decode", "decode empty frame")
	}
	var s Sample
	if err := json.Unmarshal(frame, &s); err != nil {
		return Sample{}, errors.WrapInvalid(errors.ErrMalformedResponse, "stream", "Decode", "parse frame")
	}
	if err := s.validate(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// SplitFrames separates a byte stream into complete newline-terminated frames
// and the trailing partial frame still waiting for its terminator.
func SplitFrames(data []byte) (frames [][]byte, rest []byte) {
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return frames, data
		}
		if frame := bytes.TrimRight(data[:idx], "\r"); len(frame) > 0 {
			frames = append(frames, frame)
		}
		data = data[idx+1:]
	}
}

func (s Sample) validate() error {
	for _, v := range append(s.ReferencePoint[:], s.TrackedPoint[:]...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.WrapInvalid(errors.ErrMalformedResponse, "stream", "validate", "reject non-finite coordinate")
		}
	}
	return nil
}
