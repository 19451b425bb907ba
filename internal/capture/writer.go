// SPDX-License-Identifier: MIT
/*
Package capture moves period payloads across the loop boundary: a WAV
sink consumes completed recording periods, a silence source fills
playback periods. Both operate on the raw S16LE bytes the engine
schedules, so the loop itself stays format agnostic.
*/
package capture

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// Writer appends recorded periods to a WAV file.
type Writer struct {
	file     *os.File
	encoder  *wav.Encoder
	buf      *audio.IntBuffer
	channels int
}

// NewWriter creates the output file and writes the WAV header for S16LE
// samples at the given rate.
func NewWriter(path string, sampleRate uint, channels int) (*Writer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		file:     file,
		encoder:  wav.NewEncoder(file, int(sampleRate), bitDepth, channels, 1),
		channels: channels,
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(sampleRate),
			},
		},
	}, nil
}

// Consume decodes one period of S16LE bytes and appends it to the file.
func (w *Writer) Consume(p []byte) error {
	samples := len(p) / 2
	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]
	for i := range samples {
		w.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(p[i*2:])))
	}
	return w.encoder.Write(w.buf)
}

// Close finalizes the WAV header and closes the file.
func (w *Writer) Close() error {
	if w.encoder != nil {
		if err := w.encoder.Close(); err != nil {
			return err
		}
		w.encoder = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}
	return nil
}

// Silence fills playback periods with zero samples.
type Silence struct{}

// Fill zeroes the period.
func (Silence) Fill(p []byte) error {
	for i := range p {
		p[i] = 0
	}
	return nil
}
