//go:build !js && !wasm

package audio

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
)

type Metadata struct {
	Filename    string
	Title       string
	Artist      string
	Album       string
	Year        int
	Encoder     string
	DurationSec float64
	SampleRate  int
	Channels    int
	BitDepth    int
	Format      string
}

// ReadMetadata reads embedded tags and falls back to ffprobe when the
// container carries none. The title defaults to the file name.
func ReadMetadata(ctx context.Context, path string) *Metadata {
	meta, err := ReadTags(path)
	if err != nil || meta.Title == "" || meta.DurationSec == 0 {
		if probed, perr := ReadMetadataFFmpeg(ctx, path); perr == nil {
			meta = mergeMetadata(meta, probed)
		}
	}
	if meta == nil {
		meta = &Metadata{Filename: filepath.Base(path)}
	}
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = strings.TrimSuffix(meta.Filename, filepath.Ext(meta.Filename))
	}
	return meta
}

// ReadTags reads ID3, MP4, FLAC and OGG tags.
func ReadTags(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		Filename: filepath.Base(path),
		Title:    strings.TrimSpace(m.Title()),
		Artist:   strings.TrimSpace(m.Artist()),
		Album:    strings.TrimSpace(m.Album()),
		Year:     m.Year(),
		Format:   string(m.FileType()),
	}, nil
}

func mergeMetadata(tags, probed *Metadata) *Metadata {
	if tags == nil {
		return probed
	}
	out := *tags
	if out.Title == "" {
		out.Title = probed.Title
	}
	if out.Artist == "" {
		out.Artist = probed.Artist
	}
	if out.Album == "" {
		out.Album = probed.Album
	}
	out.Encoder = probed.Encoder
	out.DurationSec = probed.DurationSec
	out.SampleRate = probed.SampleRate
	out.Channels = probed.Channels
	out.BitDepth = probed.BitDepth
	if out.Format == "" {
		out.Format = probed.Format
	}
	return &out
}

type ffprobeOutput struct {
	Format struct {
		Filename string            `json:"filename"`
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType     string `json:"codec_type"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bits_per_sample"`
}

func (p *ffprobeOutput) firstAudioStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

func ReadMetadataFFmpeg(ctx context.Context, path string) (*Metadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return parseProbe(out, path)
}

func parseProbe(out []byte, path string) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, err
	}

	audioStream := probe.firstAudioStream()
	if audioStream == nil {
		return nil, errors.New("no audio stream found")
	}

	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	sampleRate, _ := strconv.Atoi(audioStream.SampleRate)

	meta := &Metadata{
		Filename:    filepath.Base(path),
		DurationSec: duration,
		SampleRate:  sampleRate,
		Channels:    audioStream.Channels,
		BitDepth:    audioStream.BitsPerSample,
		Format:      probe.Format.Format,
	}

	// ffprobe tag keys keep the container's casing
	for k, v := range probe.Format.Tags {
		switch strings.ToLower(k) {
		case "title":
			meta.Title = v
		case "artist":
			meta.Artist = v
		case "album":
			meta.Album = v
		case "encoder":
			meta.Encoder = v
		case "date", "year":
			if len(v) >= 4 {
				meta.Year, _ = strconv.Atoi(v[:4])
			}
		}
	}

	return meta, nil
}
