package media

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"voiceboost/pkg/models"
)

// ReadWAV decodes a PCM WAV file into a mono waveform. Multi-channel input is
// averaged down to one channel.
func ReadWAV(path string) (models.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Waveform{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return models.Waveform{}, fmt.Errorf("invalid WAV file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return models.Waveform{}, fmt.Errorf("read PCM buffer: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := float32(1.0) / float32(int64(1)<<(depth-1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) * scale
		}
		samples[i] = sum / float32(channels)
	}

	return models.Waveform{SampleRate: int(dec.SampleRate), Samples: samples}, nil
}

// WriteWAV encodes w as mono 16-bit PCM. Samples outside [-1, 1] are clipped.
func WriteWAV(path string, w models.Waveform) error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("write wav: invalid sample rate %d", w.SampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(f, w.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
