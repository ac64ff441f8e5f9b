package enhance

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frames exchanged with the helper are one JSON header line, optionally
// followed by little-endian float32 samples.

type hello struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

type request struct {
	Samples    int  `json:"samples"`
	SampleRate int  `json:"sample_rate"`
	Mode       int  `json:"mode"`
	CUDA       bool `json:"cuda"`
}

type response struct {
	OK      bool   `json:"ok"`
	Samples int    `json:"samples,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	kindCancelled = "cancelled"
	kindOOM       = "oom"
)

func writeFrame(w io.Writer, header any, samples []float32) error {
	line, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(append(line, '\n')); err != nil {
		return err
	}
	if len(samples) > 0 {
		if err := binary.Write(bw, binary.LittleEndian, samples); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readHeader(r *bufio.Reader, v any) error {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return err
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode header %q: %w", line, err)
	}
	return nil
}

func readSamples(r io.Reader, n int) ([]float32, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative sample count %d", n)
	}
	samples := make([]float32, n)
	if n == 0 {
		return samples, nil
	}
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		return nil, err
	}
	return samples, nil
}
