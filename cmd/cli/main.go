//go:build !js && !wasm

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/himanishpuri/muzam/pkg/logger"
	"github.com/himanishpuri/muzam/pkg/muzam"
	"github.com/himanishpuri/muzam/pkg/muzam/rerank"
	"github.com/himanishpuri/muzam/pkg/muzam/storage"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

type globalOptions struct {
	dbPath      string
	sampleRate  int
	workers     int
	rerankModel string
}

var opts globalOptions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func parseGlobalFlags() {
	flag.StringVar(&opts.dbPath, "db", getEnvOrDefault("MUZAM_DB", storage.DefaultDBFile), "SQLite file, postgres:// DSN or badger://<dir> (env: MUZAM_DB)")
	flag.IntVar(&opts.sampleRate, "rate", getEnvInt("MUZAM_SAMPLE_RATE", 22050), "Sample rate audio is decoded to (env: MUZAM_SAMPLE_RATE)")
	flag.IntVar(&opts.workers, "workers", getEnvInt("MUZAM_WORKERS", max(2, runtime.NumCPU()-1)), "Fingerprinting workers for add-dir (env: MUZAM_WORKERS)")
	flag.StringVar(&opts.rerankModel, "rerank-model", os.Getenv("MUZAM_RERANK_MODEL"), "JSON reranker model applied to matches (env: MUZAM_RERANK_MODEL)")
	flag.Usage = printUsage
	flag.Parse()
}

// newRecognizer opens the configured database as index, catalog and history.
func newRecognizer() (*muzam.Recognizer, error) {
	if opts.dbPath == "" {
		return nil, errors.New("a catalog database is required (-db or MUZAM_DB)")
	}
	options := []muzam.Option{
		muzam.WithDBPath(opts.dbPath),
		muzam.WithSampleRate(opts.sampleRate),
		muzam.WithWorkers(opts.workers),
	}
	if opts.rerankModel != "" {
		model, err := rerank.LoadModel(opts.rerankModel)
		if err != nil {
			return nil, err
		}
		r, err := rerank.NewStatistical(model)
		if err != nil {
			return nil, err
		}
		options = append(options, muzam.WithReranker(r))
	}
	return muzam.New(options...)
}

// fatal prints err with its stack and exits.
func fatal(msg string, err error) {
	err = xerrors.New(err)
	logger.GetLogger().Errorf("%s: %s", msg, xerrors.Sprint(err))
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()
	parseGlobalFlags()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := args[0], args[1:]
	logger.GetLogger().Debugf("Executing command: %s", command)

	var err error
	switch command {
	case "add":
		err = handleAdd(ctx, rest)
	case "add-dir":
		err = handleAddDir(ctx, rest)
	case "match":
		err = handleMatch(ctx, rest)
	case "batch":
		err = handleBatch(ctx, rest)
	case "list":
		err = handleList(ctx)
	case "search":
		err = handleSearch(ctx, rest)
	case "delete":
		err = handleDelete(ctx, rest)
	case "stats":
		err = handleStats(ctx)
	case "compare":
		err = handleCompare(ctx, rest)
	case "spectrogram":
		err = handleSpectrogram(ctx, rest)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(command+" failed", err)
	}
}

func printUsage() {
	fmt.Println("muzam - audio clip recognition")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -db <path|dsn>       Catalog database, postgres://, badger://<dir> or memory://<file> (env: MUZAM_DB, default: muzam.sqlite3)")
	fmt.Println("  -rate <hz>           Decode sample rate (env: MUZAM_SAMPLE_RATE, default: 22050)")
	fmt.Println("  -workers <n>         Parallel fingerprinting for add-dir (env: MUZAM_WORKERS)")
	fmt.Println("  -rerank-model <path> Reranker model JSON (env: MUZAM_RERANK_MODEL)")
	fmt.Println("\nUsage:")
	fmt.Println("  muzam [global-options] add <audio_file> [-title <title>] [-artist <artist>] [-album <album>] [-year <year>]")
	fmt.Println("  muzam [global-options] add-dir <directory>")
	fmt.Println("  muzam [global-options] match <audio_file> [-top <n>]")
	fmt.Println("  muzam [global-options] batch <file|directory>... [-out <csv>]")
	fmt.Println("  muzam [global-options] list")
	fmt.Println("  muzam [global-options] search <text>")
	fmt.Println("  muzam [global-options] delete <track_id>")
	fmt.Println("  muzam [global-options] stats")
	fmt.Println("  muzam [global-options] compare <audio_a> <audio_b>")
	fmt.Println("  muzam [global-options] spectrogram <audio_file> [-out <png>] [-width <px>] [-height <px>]")
	fmt.Println("\nExamples:")
	fmt.Println("  muzam add song.mp3 -title \"Song\" -artist \"Artist\"")
	fmt.Println("  muzam -workers 8 add-dir ~/Music")
	fmt.Println("  muzam match clip.wav")
	fmt.Println("  muzam batch clips/ -out results.csv")
}
