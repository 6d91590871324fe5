//go:build !js && !wasm

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"path/filepath"
	"strings"

	"github.com/eligwz/spectrogram"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/audio"
)

func handleSpectrogram(ctx context.Context, args []string) error {
	positional, flagArgs := splitArgs(args)
	specCmd := flag.NewFlagSet("spectrogram", flag.ExitOnError)
	out := specCmd.String("out", "", "Output PNG (default: <audio_file>.png)")
	width := specCmd.Int("width", 2048, "Image width in pixels")
	height := specCmd.Int("height", 512, "Image height in pixels (frequency bins)")
	specCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: muzam spectrogram <audio_file> [-out <png>]")
		return errors.New("exactly one audio file is required")
	}
	path := positional[0]
	if *out == "" {
		*out = strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
	}

	buf, err := audio.Load(ctx, path, opts.sampleRate)
	if err != nil {
		return err
	}
	if err := renderSpectrogram(buf, *out, *width, *height); err != nil {
		return err
	}
	fmt.Printf("Saved spectrogram to %s\n", *out)
	return nil
}

// renderSpectrogram draws a magnitude spectrogram of buf on black and
// saves it as PNG.
func renderSpectrogram(buf models.AudioBuffer, path string, width, height int) error {
	if len(buf.Samples) == 0 || buf.SampleRate <= 0 {
		return errors.New("no samples to draw")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", width, height)
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude, linear scale
	spectrogram.Drawfft(
		img,
		buf.Samples,
		uint32(buf.SampleRate),
		uint32(height),
		false,
		false,
		true,
		false,
	)

	if err := spectrogram.SavePng(img, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
