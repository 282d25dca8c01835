// Package testutil generates statement data with known refunds and
// duplicate payments, and checks reconciliation outcomes against the
// matching rules. It is used by tests across the module.
package testutil

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
)

// CSVTimeLayout is the datetime layout written to generated files
const CSVTimeLayout = "2006-01-02 15:04:05"

// StatementHeader is the header row of a generated statement file
var StatementHeader = []string{"account_id", "datetime", "narration", "debit", "credit", "balance"}

// Noise payees share no words with each other or with the planted payees,
// so the only duplicates in a dataset are planted ones or noise repeats.
var noisePayees = []string{
	"SHOPRITE IKEJA", "ACME STORES", "BLUE HARBOUR CAFE", "NORTHWIND TRADERS",
	"KILIMANJARO FOODS", "LEKKI PHARMACY", "OMEGA FUEL", "CITY CINEMAS",
	"PALM GROVE HOTEL", "ZENITH ELECTRONICS", "GREENFIELD FARMS", "TOTAL ENERGIES",
}

var plantedPayees = []string{
	"JOHN DOE", "MARY ANN SMITH", "ADEBAYO OKAFOR", "CHIOMA NWOSU",
	"EMEKA JAMES", "FATIMA BELLO", "GRACE EZE", "HENRY KALU",
	"IBRAHIM MUSA", "JOY OKON", "KEMI ADEYEMI", "LUKE OBI",
}

var debitChannels = []string{"TRANSFER TO:", "POS PURCHASE:", "ONLINE PAYMENT TO:", "CARD PAYMENT:"}

// StatementGenerator builds a reproducible multi-account dataset.
// Credit amounts are unique and only a planted refund debit shares one, so
// the planted refunds are the only refunds a reconciliation can find.
type StatementGenerator struct {
	Seed     int64
	Accounts []string
	Start    time.Time

	// Noise is the number of unrelated debits and credits
	Noise int
	// Refunds is the number of debit and credit pairs of equal amount
	Refunds int
	// Duplicates is the number of planted duplicate payment pairs
	Duplicates int
	// CrossAccountEvery makes every nth duplicate span two accounts; 0 keeps
	// all duplicates within one account
	CrossAccountEvery int
}

// PlantedRefund names a debit and the credit that reverses it
type PlantedRefund struct {
	DebitID  string
	CreditID string
}

// PlantedDuplicate names the two legs of a duplicate payment
type PlantedDuplicate struct {
	OriginalID   string
	DuplicateID  string
	CrossAccount bool
}

// Dataset is the output of a StatementGenerator
type Dataset struct {
	Transactions []*models.Transaction
	Refunds      []PlantedRefund
	Duplicates   []PlantedDuplicate
}

// draftRow is a transaction before positions and ids are assigned
type draftRow struct {
	account   string
	at        time.Time
	narration string
	debit     decimal.Decimal
	credit    decimal.Decimal
	tx        *models.Transaction
}

// NewStatementGenerator returns a generator for two accounts with a small
// mix of every kind of row
func NewStatementGenerator(seed int64) *StatementGenerator {
	return &StatementGenerator{
		Seed:              seed,
		Accounts:          []string{"GTB_Main", "UBA_Savings"},
		Start:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Noise:             40,
		Refunds:           6,
		Duplicates:        6,
		CrossAccountEvery: 3,
	}
}

// Generate builds the dataset. The same generator always yields the same rows.
func (g *StatementGenerator) Generate() *Dataset {
	rng := rand.New(rand.NewSource(g.Seed))
	amounts := newAmountSource(rng)

	var drafts []*draftRow
	day := 24 * time.Hour

	refundPairs := make([][2]*draftRow, 0, g.Refunds)
	for i := 0; i < g.Refunds; i++ {
		account := g.account(rng.Intn(len(g.Accounts)))
		at := g.randomTime(rng, 30)
		amount, _ := amounts.next()
		payee := noisePayees[rng.Intn(len(noisePayees))]

		debit := &draftRow{account: account, at: at, narration: "TRANSFER TO: " + payee, debit: amount}
		credit := &draftRow{
			account:   account,
			at:        at.Add(time.Hour + time.Duration(rng.Intn(5*24))*time.Hour),
			narration: "REVERSAL " + payee,
			credit:    amount,
		}
		drafts = append(drafts, debit, credit)
		refundPairs = append(refundPairs, [2]*draftRow{debit, credit})
	}

	duplicatePairs := make([][2]*draftRow, 0, g.Duplicates)
	for i := 0; i < g.Duplicates; i++ {
		first := rng.Intn(len(g.Accounts))
		second := first
		if g.CrossAccountEvery > 0 && len(g.Accounts) > 1 && (i+1)%g.CrossAccountEvery == 0 {
			second = (first + 1) % len(g.Accounts)
		}

		// Planted pairs sit in separate weeks so no two of them fall in one
		// duplicate window
		at := g.Start.Add(time.Duration(i)*7*day + time.Duration(rng.Intn(48))*time.Hour)
		amount, delta := amounts.next()
		narration := debitChannels[rng.Intn(len(debitChannels))] + " " + plantedPayees[i%len(plantedPayees)]

		original := &draftRow{account: g.account(first), at: at, narration: narration, debit: amount}
		duplicate := &draftRow{
			account:   g.account(second),
			at:        at.Add(time.Duration(1+rng.Intn(20)) * time.Hour),
			narration: narration,
			debit:     amount.Add(delta),
		}
		drafts = append(drafts, original, duplicate)
		duplicatePairs = append(duplicatePairs, [2]*draftRow{original, duplicate})
	}

	for i := 0; i < g.Noise; i++ {
		account := g.account(rng.Intn(len(g.Accounts)))
		amount, _ := amounts.next()
		payee := noisePayees[rng.Intn(len(noisePayees))]
		at := g.randomTime(rng, 30)

		if rng.Intn(10) < 7 {
			drafts = append(drafts, &draftRow{
				account:   account,
				at:        at,
				narration: debitChannels[rng.Intn(len(debitChannels))] + " " + payee,
				debit:     amount,
			})
			continue
		}
		drafts = append(drafts, &draftRow{account: account, at: at, narration: "SALARY FROM " + payee, credit: amount})
	}

	dataset := &Dataset{Transactions: g.build(drafts)}
	for _, pair := range refundPairs {
		dataset.Refunds = append(dataset.Refunds, PlantedRefund{
			DebitID:  pair[0].tx.TransactionID,
			CreditID: pair[1].tx.TransactionID,
		})
	}
	for _, pair := range duplicatePairs {
		dataset.Duplicates = append(dataset.Duplicates, PlantedDuplicate{
			OriginalID:   pair[0].tx.TransactionID,
			DuplicateID:  pair[1].tx.TransactionID,
			CrossAccount: pair[0].account != pair[1].account,
		})
	}
	return dataset
}

// build orders each account's rows by time and assigns running balances the
// way a statement export would. Accounts follow WriteCSV's file order and row
// positions run on across them, as they do when the files are read together.
func (g *StatementGenerator) build(drafts []*draftRow) []*models.Transaction {
	byAccount := make(map[string][]*draftRow)
	for _, draft := range drafts {
		byAccount[draft.account] = append(byAccount[draft.account], draft)
	}

	accounts := append([]string(nil), g.Accounts...)
	sort.Strings(accounts)

	var transactions []*models.Transaction
	for _, account := range accounts {
		rows := byAccount[account]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].at.Before(rows[j].at)
		})

		balance := decimal.NewFromInt(1000000)
		for _, row := range rows {
			balance = balance.Sub(row.debit).Add(row.credit)
			tx := models.NewTransaction(account, len(transactions)+1, row.at, row.narration, row.debit, row.credit, balance)
			tx.SourceFile = account + ".csv"
			row.tx = tx
			transactions = append(transactions, tx)
		}
	}
	return transactions
}

func (g *StatementGenerator) account(i int) string {
	return g.Accounts[i]
}

// randomTime returns a whole-minute time within days of Start
func (g *StatementGenerator) randomTime(rng *rand.Rand, days int) time.Time {
	return g.Start.Add(time.Duration(rng.Intn(days*24*60)) * time.Minute)
}

// amountSource hands out amounts from disjoint ranges. Each range is wide
// enough to hold an amount plus the delta of its duplicate leg.
type amountSource struct {
	rng *rand.Rand
	seq int64
}

func newAmountSource(rng *rand.Rand) *amountSource {
	return &amountSource{rng: rng}
}

// next returns an amount and a duplicate delta below 5.00
func (s *amountSource) next() (decimal.Decimal, decimal.Decimal) {
	s.seq++
	cents := 100000 + s.seq*2000 + s.rng.Int63n(500)
	return decimal.New(cents, -2), decimal.New(s.rng.Int63n(500), -2)
}

// ByAccount groups the dataset's transactions by account, in row order
func (d *Dataset) ByAccount() map[string][]*models.Transaction {
	groups := make(map[string][]*models.Transaction)
	for _, tx := range d.Transactions {
		groups[tx.AccountID] = append(groups[tx.AccountID], tx)
	}
	return groups
}

// WriteCSV writes one <account>.csv statement per account into dir and
// returns the paths in account order
func (d *Dataset) WriteCSV(dir string) ([]string, error) {
	groups := d.ByAccount()
	accounts := make([]string, 0, len(groups))
	for account := range groups {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	paths := make([]string, 0, len(accounts))
	for _, account := range accounts {
		path := filepath.Join(dir, account+".csv")
		if err := writeStatement(path, groups[account]); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeStatement(path string, transactions []*models.Transaction) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(StatementHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, tx := range transactions {
		record := []string{
			tx.AccountID,
			tx.DateTime.Format(CSVTimeLayout),
			tx.Narration,
			formatAmount(tx.DebitAmount),
			formatAmount(tx.CreditAmount),
			tx.Balance.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write %s: %w", tx.TransactionID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return file.Close()
}

// formatAmount leaves zero amounts blank, as bank exports do
func formatAmount(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
