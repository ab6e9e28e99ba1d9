package consensus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dagledger/logger"
	"dagledger/models"
)

// workerPool fans transaction batches out to a fixed set of validation
// workers. Each worker owns a bounded channel; dispatch is round-robin
// and blocks on a full channel instead of dropping work.
type workerPool struct {
	workers  int
	depth    int
	validate func(tx *models.Transaction) bool
}

func newWorkerPool(workers int, validate func(tx *models.Transaction) bool) *workerPool {
	if workers < 1 {
		workers = 1
	}
	return &workerPool{workers: workers, depth: 2, validate: validate}
}

// Run dispatches the batches and returns one ValidationResult per batch
// once every worker has drained its channel. Workers only read ledger
// state; all mutation happens in the coordinator's Finalize.
func (p *workerPool) Run(batches []*models.TransactionBatch) []*models.ValidationResult {
	if len(batches) == 0 {
		return nil
	}

	channels := make([]chan *models.TransactionBatch, p.workers)
	results := make(chan *models.ValidationResult, len(batches))
	var wg sync.WaitGroup

	for w := 0; w < p.workers; w++ {
		channels[w] = make(chan *models.TransactionBatch, p.depth)
		wg.Add(1)
		go p.workerLoop(w, channels[w], results, &wg)
	}

	for i, batch := range batches {
		channels[i%p.workers] <- batch
	}
	for _, ch := range channels {
		close(ch)
	}
	wg.Wait()
	close(results)

	out := make([]*models.ValidationResult, 0, len(batches))
	for res := range results {
		out = append(out, res)
	}
	return out
}

func (p *workerPool) workerLoop(id int, batches <-chan *models.TransactionBatch, results chan<- *models.ValidationResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for batch := range batches {
		start := time.Now()

		validated := make([]uuid.UUID, 0, len(batch.Transactions))
		for _, tx := range batch.Transactions {
			if p.validate(tx) {
				validated = append(validated, tx.ID)
			}
		}

		// A single bad transaction degrades the batch to Partial; it
		// never aborts the batch.
		status := models.BatchSuccess
		switch {
		case len(validated) == 0:
			status = models.BatchFailed
		case len(validated) < len(batch.Transactions):
			status = models.BatchPartial
		}

		results <- &models.ValidationResult{
			BatchID:      batch.ID,
			Status:       status,
			ValidatedIDs: validated,
			Elapsed:      time.Since(start),
			WorkerID:     id,
		}

		logger.Logger.Debug("batch validated",
			zap.Int("worker_id", id),
			zap.String("batch_id", batch.ID.String()),
			zap.Int("validated", len(validated)),
			zap.Int("batch_size", len(batch.Transactions)),
			zap.String("status", string(status)))
	}
}
