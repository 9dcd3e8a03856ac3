package orchestrator

import "runtime"

// runPool executes work(k) for every k in jobs across a fixed pool of
// workers, the same jobChan/errChan shape sr.go's Save method uses to
// parallelize per-cell result retrieval: a buffered job channel, a set
// of goroutines draining it and reporting through an unbuffered error
// channel, one result (nil or the job's error) sent per job, and the
// caller draining exactly len(jobs) receives after closing jobChan.
// Generalized here from "one SR column per job" to "one DAG node build
// per job" (§5: "bounded worker pool, default size = number of CPU
// cores").
func runPool(jobs []Kind, numWorkers int, work func(Kind) error) error {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(-1)
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}
	if numWorkers == 0 {
		return nil
	}

	jobChan := make(chan Kind, len(jobs))
	errChan := make(chan error)

	for w := 0; w < numWorkers; w++ {
		go func() {
			for k := range jobChan {
				if err := work(k); err != nil {
					errChan <- err
					continue
				}
				errChan <- nil
			}
		}()
	}

	for _, k := range jobs {
		jobChan <- k
	}
	close(jobChan)

	var firstErr error
	for range jobs {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
