//go:build !js && !wasm

package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/himanishpuri/muzam/pkg/muzam"
	"github.com/himanishpuri/muzam/pkg/utils"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// batchRow is one line of the batch report.
type batchRow struct {
	File       string
	Title      string
	Artist     string
	Album      string
	Year       int
	Confidence float64
	Matched    bool
}

var batchHeader = []string{"File", "Title", "Artist", "Album", "Year", "Confidence"}

// collectAudioFiles expands directories into the audio files below them.
// Plain file arguments are kept as given.
func collectAudioFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := utils.FindAudioFiles(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func handleBatch(ctx context.Context, args []string) error {
	positional, flagArgs := splitArgs(args)
	batchCmd := flag.NewFlagSet("batch", flag.ExitOnError)
	out := batchCmd.String("out", "", "Write results as CSV to this file")
	batchCmd.Parse(flagArgs)

	if len(positional) == 0 {
		fmt.Println("Usage: muzam batch <file|directory>... [-out <csv>]")
		return errors.New("at least one file or directory is required")
	}
	files, err := collectAudioFiles(positional)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No audio files found")
		return nil
	}

	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Printf("Processing %d files...\n", len(files))
	p := mpb.NewWithContext(ctx, mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Matching: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	last := time.Now()
	results, identifyErr := r.IdentifyFiles(ctx, files, func(muzam.IdentifyResult) {
		bar.EwmaIncrement(time.Since(last))
		last = time.Now()
	})
	bar.Abort(false)
	p.Wait()

	rows := batchRows(ctx, r.Catalog(), results)
	fmt.Println("\nBatch Recognition Results:")
	fmt.Println("------------------------------------------------------------")
	for i, row := range rows {
		switch {
		case results[i].Err != nil:
			fmt.Printf("%s: error: %v\n", row.File, results[i].Err)
		case !row.Matched:
			fmt.Printf("%s: No match\n", row.File)
		default:
			fmt.Printf("%s: %s by %s (%.1f%%)\n", row.File, row.Title, orUnknown(row.Artist), row.Confidence*100)
		}
	}

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if err := writeBatchCSV(f, files, rows); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", *out, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("\nResults saved to %s\n", *out)
	}
	return identifyErr
}

// batchRows resolves each result's best match against cat. Without a
// catalog the track ID stands in for the title.
func batchRows(ctx context.Context, cat muzam.Catalog, results []muzam.IdentifyResult) []batchRow {
	rows := make([]batchRow, len(results))
	for i, res := range results {
		rows[i].File = filepath.Base(res.Path)
		if res.Best == nil {
			continue
		}
		rows[i].Matched = true
		rows[i].Confidence = res.Best.Confidence
		rows[i].Title = res.Best.TrackID
		if cat == nil {
			continue
		}
		if track, err := cat.GetTrack(ctx, res.Best.TrackID); err == nil {
			rows[i].Title = track.Title
			rows[i].Artist = track.Artist
			rows[i].Album = track.Album
			rows[i].Year = track.Year
		}
	}
	return rows
}

// writeBatchCSV writes one record per file in the order of paths.
func writeBatchCSV(w io.Writer, paths []string, rows []batchRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(batchHeader); err != nil {
		return err
	}
	for i, row := range rows {
		record := []string{paths[i], "No match", "", "", "", "0"}
		if row.Matched {
			year := ""
			if row.Year > 0 {
				year = strconv.Itoa(row.Year)
			}
			record = []string{paths[i], row.Title, row.Artist, row.Album, year, strconv.FormatFloat(row.Confidence, 'f', 4, 64)}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
