//go:build !js && !wasm

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/muzam/pkg/logger"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam"
	"github.com/himanishpuri/muzam/pkg/muzam/audio"
	"github.com/himanishpuri/muzam/pkg/muzam/storage"
	"github.com/himanishpuri/muzam/pkg/utils"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// splitArgs separates leading positional arguments from the flags that
// follow them.
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

// catalogStore returns the recognizer's store for catalog-only commands.
func catalogStore(r *muzam.Recognizer) (*storage.Store, error) {
	store, ok := r.Index().(*storage.Store)
	if !ok {
		return nil, errors.New("catalog commands need a database-backed index")
	}
	return store, nil
}

func handleAdd(ctx context.Context, args []string) error {
	positional, flagArgs := splitArgs(args)

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := addCmd.String("title", "", "Track title (default: tag or file name)")
	artist := addCmd.String("artist", "", "Artist name (default: tag)")
	album := addCmd.String("album", "", "Album name (default: tag)")
	year := addCmd.Int("year", 0, "Release year (default: tag)")
	addCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: muzam add <audio_file> [-title <title>] [-artist <artist>]")
		return errors.New("exactly one audio file is required")
	}

	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Println("Processing audio file...")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	id, err := r.AddFile(ctx, positional[0], models.Track{Title: *title, Artist: *artist, Album: *album, Year: *year})
	if errors.Is(err, muzam.ErrTrackExists) {
		fmt.Printf("Already in the catalog (ID: %s), skipping\n", id)
		return nil
	}
	if err != nil {
		return err
	}

	if r.Catalog() == nil {
		fmt.Printf("\nAdded track %s\n", id)
		return nil
	}
	track, err := r.Catalog().GetTrack(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println("\nAdded track:")
	printTrack(*track)
	return nil
}

func handleAddDir(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Println("Usage: muzam add-dir <directory>")
		return errors.New("exactly one directory is required")
	}
	log := logger.GetLogger()

	files, err := utils.FindAudioFiles(args[0])
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

	p := mpb.NewWithContext(ctx, mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Indexing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	start := time.Now()
	last := start
	results, ingestErr := r.IngestFiles(ctx, files, func(muzam.IngestResult) {
		bar.EwmaIncrement(time.Since(last))
		last = time.Now()
	})
	bar.Abort(false)
	p.Wait()

	added, skipped, failed := 0, 0, 0
	for _, res := range results {
		switch {
		case res.Err == nil:
			added++
		case errors.Is(res.Err, muzam.ErrTrackExists):
			skipped++
		default:
			failed++
			log.Warnf("%v", res.Err)
		}
	}
	fmt.Printf("\nAdded %d, skipped %d existing, failed %d in %s\n", added, skipped, failed, time.Since(start).Round(time.Millisecond))
	return ingestErr
}

func handleMatch(ctx context.Context, args []string) error {
	positional, flagArgs := splitArgs(args)
	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	top := matchCmd.Int("top", 5, "Number of matches to show")
	matchCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: muzam match <audio_file> [-top <n>]")
		return errors.New("exactly one audio file is required")
	}

	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	fmt.Println("Analyzing audio file...")
	results, err := r.IdentifyFile(ctx, positional[0])
	if errors.Is(err, muzam.ErrEmptyFingerprint) {
		fmt.Println("\nClip too short or silent to fingerprint")
		return nil
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("\nNo matches found")
		return nil
	}

	fmt.Printf("\nFound %d match(es):\n\n", len(results))
	for i, res := range results[:min(*top, len(results))] {
		name := res.TrackID
		if cat := r.Catalog(); cat != nil {
			if track, err := cat.GetTrack(ctx, res.TrackID); err == nil {
				name = fmt.Sprintf("%q by %s", track.Title, orUnknown(track.Artist))
			}
		}
		fmt.Printf("%d. %s\n", i+1, name)
		fmt.Printf("   Confidence: %.1f%% | Matches: %d (%d unique) | Query: %s\n\n",
			res.Confidence*100, res.MatchCount, res.UniqueMatches, res.QueryTime.Round(time.Microsecond))
	}
	return nil
}

func handleList(ctx context.Context) error {
	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.Close()
	store, err := catalogStore(r)
	if err != nil {
		return err
	}

	tracks, err := store.ListTracks(ctx)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("\nNo tracks in catalog")
		return nil
	}
	fmt.Printf("\nFound %d track(s):\n\n", len(tracks))
	for _, t := range tracks {
		printTrack(t)
		fmt.Println()
	}
	return nil
}

func handleSearch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: muzam search <text>")
		return errors.New("search text is required")
	}
	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.Close()
	store, err := catalogStore(r)
	if err != nil {
		return err
	}

	tracks, err := store.SearchTracks(ctx, strings.Join(args, " "), 50)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("\nNo tracks found")
		return nil
	}
	for _, t := range tracks {
		printTrack(t)
		fmt.Println()
	}
	return nil
}

func handleDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Println("Usage: muzam delete <track_id>")
		return errors.New("exactly one track id is required")
	}
	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.Close()

	if r.Catalog() == nil {
		n, err := r.RemoveTrack(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("\nRemoved %d postings of %s\n", n, args[0])
		return nil
	}
	track, err := r.Catalog().GetTrack(ctx, args[0])
	if err != nil {
		return err
	}
	if err := r.Catalog().DeleteTrack(ctx, track.ID); err != nil {
		return err
	}
	fmt.Println("\nDeleted track:")
	printTrack(*track)
	return nil
}

func handleStats(ctx context.Context) error {
	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.Close()

	stats, err := r.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nIndex:")
	fmt.Printf("   Tracks:          %d\n", stats.Tracks)
	fmt.Printf("   Postings:        %d\n", stats.Postings)
	fmt.Printf("   Distinct hashes: %d\n", stats.DistinctHashes)

	if store, err := catalogStore(r); err == nil {
		hist, err := store.RecognitionStats(ctx)
		if err != nil {
			return err
		}
		fmt.Println("\nRecognitions:")
		fmt.Printf("   Total:           %d\n", hist.Total)
		fmt.Printf("   Successful:      %d (%.1f%%)\n", hist.Successful, hist.SuccessRate*100)
		fmt.Printf("   Avg confidence:  %.1f%%\n", hist.AverageConfidence*100)
	}
	return nil
}

func handleCompare(ctx context.Context, args []string) error {
	if len(args) != 2 {
		fmt.Println("Usage: muzam compare <audio_a> <audio_b>")
		return errors.New("exactly two audio files are required")
	}
	r, err := muzam.New(muzam.WithSampleRate(opts.sampleRate))
	if err != nil {
		return err
	}
	defer r.Close()

	a, err := audio.Load(ctx, args[0], opts.sampleRate)
	if err != nil {
		return err
	}
	b, err := audio.Load(ctx, args[1], opts.sampleRate)
	if err != nil {
		return err
	}
	sim, err := r.Compare(a, b)
	if err != nil {
		return err
	}
	fmt.Printf("\nSimilarity of %s and %s: %.3f\n", filepath.Base(args[0]), filepath.Base(args[1]), sim)
	return nil
}

func printTrack(t models.Track) {
	fmt.Printf("   ID:       %s\n", t.ID)
	fmt.Printf("   Title:    %s\n", t.Title)
	fmt.Printf("   Artist:   %s\n", orUnknown(t.Artist))
	if t.Album != "" {
		fmt.Printf("   Album:    %s\n", t.Album)
	}
	if t.Year > 0 {
		fmt.Printf("   Year:     %d\n", t.Year)
	}
	if t.DurationMs > 0 {
		duration := t.DurationMs / 1000
		fmt.Printf("   Duration: %d:%02d\n", duration/60, duration%60)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown Artist"
	}
	return s
}
