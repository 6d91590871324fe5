package muzam

import (
	"context"
	"fmt"
	"sync"

	"github.com/himanishpuri/muzam/pkg/models"
	"golang.org/x/sync/errgroup"
)

// IngestJob is one track to fingerprint and index. When Load is set it is
// called on a worker goroutine instead of using Buffer.
type IngestJob struct {
	TrackID string
	Buffer  models.AudioBuffer
	Load    func(ctx context.Context) (models.AudioBuffer, error)
}

type IngestResult struct {
	TrackID     string
	Fingerprint models.Fingerprint
	Err         error
}

// Ingest fingerprints jobs on Config.Workers goroutines and feeds the
// results to a single inserting goroutine. Results come back in job order
// with per-job errors; the returned error is only set when ctx ends the
// run early. progress, if not nil, is called once per finished job from
// the inserting goroutine.
func (r *Recognizer) Ingest(ctx context.Context, jobs []IngestJob, progress func(IngestResult)) ([]IngestResult, error) {
	results := make([]IngestResult, len(jobs))
	finished := make([]bool, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}
	if err := ctx.Err(); err != nil {
		for i, job := range jobs {
			results[i] = IngestResult{TrackID: job.TrackID, Err: err}
		}
		return results, fmt.Errorf("ingest interrupted: %w", err)
	}

	type fingerprinted struct {
		i   int
		fp  models.Fingerprint
		err error
	}

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan int)
	done := make(chan fingerprinted)

	g.Go(func() error {
		defer close(work)
		for i := range jobs {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for w := 0; w < min(r.cfg.Workers, len(jobs)); w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for i := range work {
				fp, err := r.fingerprintJob(gctx, jobs[i])
				select {
				case done <- fingerprinted{i: i, fp: fp, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(done)
		return nil
	})

	g.Go(func() error {
		for d := range done {
			job := jobs[d.i]
			err := d.err
			if err == nil {
				err = r.Insert(gctx, job.TrackID, d.fp)
			}
			if err != nil {
				r.log.Warnf("Ingest of %s failed: %v", job.TrackID, err)
			}
			results[d.i] = IngestResult{TrackID: job.TrackID, Fingerprint: d.fp, Err: err}
			finished[d.i] = true
			if progress != nil {
				progress(results[d.i])
			}
		}
		return nil
	})

	err := g.Wait()
	for i, ok := range finished {
		if !ok {
			results[i] = IngestResult{TrackID: jobs[i].TrackID, Err: ctx.Err()}
		}
	}
	if err != nil {
		return results, fmt.Errorf("ingest interrupted: %w", err)
	}
	return results, nil
}

func (r *Recognizer) fingerprintJob(ctx context.Context, job IngestJob) (models.Fingerprint, error) {
	buf := job.Buffer
	if job.Load != nil {
		var err error
		if buf, err = job.Load(ctx); err != nil {
			return models.Fingerprint{}, err
		}
	}
	return r.fingerprint(buf)
}
