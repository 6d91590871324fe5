//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/audio"
	"github.com/himanishpuri/muzam/pkg/muzam/fingerprint"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorInsufficientAudio
	ErrorNoTokens
)

// targetRate matches the server's default decode rate so client tokens
// line up with catalog tokens.
const targetRate = 22050

var generator *fingerprint.Generator

// generateFingerprint processes audio samples and returns a body ready to
// POST to /api/match/tokens.
// Returns: {error: number, data: {tokens, duration, sample_rate, quality} | string}
func generateFingerprint(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float64Array")
	}
	if sampleRateJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate must be a number")
	}
	if channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "channels must be a number")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()

	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 || channels > 2 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	if channels == 2 {
		samples = stereoToMono(samples)
	}

	buf := models.AudioBuffer{
		Samples:    audio.Resample(samples, sampleRate, targetRate),
		SampleRate: targetRate,
	}
	fp, err := generator.Generate(buf)
	if err != nil {
		return makeErrorResponse(ErrorInsufficientAudio, fmt.Sprintf("Failed to fingerprint audio: %v", err))
	}
	if fp.Empty() {
		return makeErrorResponse(ErrorNoTokens, "No tokens generated (audio may be silent or too short)")
	}

	tokens := js.Global().Get("Array").New(len(fp.Tokens))
	for i, tok := range fp.Tokens {
		obj := js.Global().Get("Object").New()
		obj.Set("value", tok.Value)
		obj.Set("offset", tok.TimeOffset)
		obj.Set("scheme", tok.Scheme.String())
		tokens.SetIndex(i, obj)
	}

	data := js.Global().Get("Object").New()
	data.Set("tokens", tokens)
	data.Set("duration", fp.Duration)
	data.Set("sample_rate", fp.SampleRate)
	data.Set("quality", fp.Quality)

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	return result
}

func stereoToMono(stereo []float64) []float64 {
	if len(stereo)%2 != 0 {
		stereo = stereo[:len(stereo)-1]
	}

	mono := make([]float64, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[i*2] + stereo[i*2+1]) / 2.0
	}
	return mono
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, format string, args ...any) {
		if !console.IsUndefined() {
			console.Call(method, fmt.Sprintf(format, args...))
		}
	}

	var err error
	generator, err = fingerprint.NewGenerator(fingerprint.DefaultConfig())
	if err != nil {
		logf("error", "muzam WASM module failed to initialize: %v", err)
		return
	}

	js.Global().Set("generateFingerprint", js.FuncOf(generateFingerprint))
	logf("log", "generateFingerprint function registered")

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "window object is undefined")
	} else {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}

	logf("log", "muzam WASM module loaded and ready")
	select {}
}
