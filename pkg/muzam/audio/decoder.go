//go:build !js && !wasm

// Package audio turns audio files into normalized mono sample buffers at
// a fixed rate.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/himanishpuri/muzam/pkg/models"
)

const DefaultSampleRate = 22050

// PCM is decoded, interleaved audio scaled to [-1, 1].
type PCM struct {
	Samples    []float64
	Channels   int
	SampleRate int
}

// Mono averages the channels of p.
func (p PCM) Mono() []float64 {
	if p.Channels <= 1 {
		return p.Samples
	}
	frames := len(p.Samples) / p.Channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < p.Channels; c++ {
			sum += p.Samples[i*p.Channels+c]
		}
		out[i] = sum / float64(p.Channels)
	}
	return out
}

// DecodeWAV reads a PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return PCM{}, errors.New("not a valid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("reading WAV samples: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return PCM{}, errors.New("WAV file has no channels")
	}

	depth := int(d.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := float64(int64(1) << uint(depth-1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		if depth == 8 {
			// 8-bit WAV is unsigned
			samples[i] = float64(v-128) / scale
		} else {
			samples[i] = float64(v) / scale
		}
	}
	return PCM{Samples: samples, Channels: buf.Format.NumChannels, SampleRate: buf.Format.SampleRate}, nil
}

// DecodeMP3 reads an MP3 stream. The decoder always yields 16-bit stereo.
func DecodeMP3(r io.Reader) (PCM, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return PCM{}, fmt.Errorf("opening MP3 stream: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("decoding MP3: %w", err)
	}
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}
	return PCM{Samples: samples, Channels: 2, SampleRate: d.SampleRate()}, nil
}

// EncodeWAV writes buf as a 16-bit mono WAV stream.
func EncodeWAV(w io.WriteSeeker, buf models.AudioBuffer) error {
	enc := wav.NewEncoder(w, buf.SampleRate, 16, 1, 1)
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		s = max(-1, min(1, s))
		data[i] = int(s * 32767)
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("writing WAV samples: %w", err)
	}
	return enc.Close()
}

// ToBuffer downmixes p and resamples it to sampleRate.
func (p PCM) ToBuffer(sampleRate int) models.AudioBuffer {
	mono := p.Mono()
	if sampleRate > 0 && sampleRate != p.SampleRate {
		mono = Resample(mono, p.SampleRate, sampleRate)
	} else {
		sampleRate = p.SampleRate
	}
	return models.AudioBuffer{Samples: mono, SampleRate: sampleRate}
}

// Load decodes path into a mono buffer at sampleRate. WAV and MP3 are
// decoded natively; anything else goes through ffmpeg first.
func Load(ctx context.Context, path string, sampleRate int) (models.AudioBuffer, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	var (
		pcm PCM
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		pcm, err = decodeFile(path, func(f *os.File) (PCM, error) { return DecodeWAV(f) })
	case ".mp3":
		pcm, err = decodeFile(path, func(f *os.File) (PCM, error) { return DecodeMP3(f) })
	default:
		tmpDir, terr := os.MkdirTemp("", "muzam-convert-*")
		if terr != nil {
			return models.AudioBuffer{}, fmt.Errorf("creating temp dir: %w", terr)
		}
		defer os.RemoveAll(tmpDir)

		wavPath, cerr := ConvertToMonoWAV(ctx, path, tmpDir, ConvertWAVConfig{SampleRate: sampleRate})
		if cerr != nil {
			return models.AudioBuffer{}, fmt.Errorf("converting %s: %w", filepath.Base(path), cerr)
		}
		pcm, err = decodeFile(wavPath, func(f *os.File) (PCM, error) { return DecodeWAV(f) })
	}
	if err != nil {
		return models.AudioBuffer{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return pcm.ToBuffer(sampleRate), nil
}

// LoadBytes decodes an in-memory WAV or MP3 payload.
func LoadBytes(data []byte, sampleRate int) (models.AudioBuffer, error) {
	pcm, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		var mp3Err error
		if pcm, mp3Err = DecodeMP3(bytes.NewReader(data)); mp3Err != nil {
			return models.AudioBuffer{}, fmt.Errorf("unsupported audio payload: %w", errors.Join(err, mp3Err))
		}
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return pcm.ToBuffer(sampleRate), nil
}

func decodeFile(path string, decode func(*os.File) (PCM, error)) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer f.Close()
	return decode(f)
}
