package reconciler

import (
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/logger"
)

var baseTime = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

func debit(account string, pos int, at time.Time, narration, amount string) *models.Transaction {
	return models.NewTransaction(account, pos, at, narration, decimal.RequireFromString(amount), decimal.Zero, decimal.Zero)
}

func credit(account string, pos int, at time.Time, narration, amount string) *models.Transaction {
	return models.NewTransaction(account, pos, at, narration, decimal.Zero, decimal.RequireFromString(amount), decimal.Zero)
}

func fromFile(file string, tx *models.Transaction) *models.Transaction {
	tx.SourceFile = file
	return tx
}

func days(n float64) time.Duration {
	return time.Duration(n * float64(24*time.Hour))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(config *Config, opts ...EngineOption) (*Engine, error) {
	return NewEngine(config, append([]EngineOption{WithLogger(logger.Discard())}, opts...)...)
}

// generateLedger builds a deterministic mixed ledger across three accounts
// with refunds, near-duplicates and noise
func generateLedger(n int) []*models.Transaction {
	accounts := []string{"GTB_Main", "UBA_Main", "ZEN_Main"}
	names := []string{"JOHN DOE", "DOE JOHN", "JANE SMITH", "MTN NIGERIA", "SHOPRITE LEKKI", "JOHN DOE ENTERPRISES"}
	amounts := []string{"1000", "1050", "2500", "5000", "5000", "12000.50"}

	txs := make([]*models.Transaction, 0, n)
	for i := 0; i < n; i++ {
		account := accounts[(i*7)%len(accounts)]
		at := baseTime.Add(time.Duration(i*5) * time.Hour).Add(time.Duration(i%4) * 13 * time.Minute)
		amount := amounts[(i*5)%len(amounts)]
		narration := "TRANSFER TO: " + names[(i*3)%len(names)]

		if i%4 == 3 {
			txs = append(txs, credit(account, i+1, at, "REVERSAL "+narration, amount))
		} else {
			txs = append(txs, debit(account, i+1, at, narration, amount))
		}
	}
	return txs
}
