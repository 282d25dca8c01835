package matcher

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
)

var baseTime = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func newDebit(account string, position int, at time.Time, narration, amount string) *models.Transaction {
	return models.NewTransaction(account, position, at, narration, decimal.RequireFromString(amount), decimal.Zero, decimal.Zero)
}

func newCredit(account string, position int, at time.Time, narration, amount string) *models.Transaction {
	return models.NewTransaction(account, position, at, narration, decimal.Zero, decimal.RequireFromString(amount), decimal.Zero)
}

func days(n float64) time.Duration {
	return time.Duration(n * float64(24*time.Hour))
}

type progressEvent struct {
	stage            string
	processed, total int
}

type recordingObserver struct {
	mu     sync.Mutex
	events []progressEvent
}

func (r *recordingObserver) OnProgress(stage string, processed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, progressEvent{stage, processed, total})
}

func (r *recordingObserver) last() progressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return progressEvent{}
	}
	return r.events[len(r.events)-1]
}
