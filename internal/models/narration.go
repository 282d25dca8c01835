package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const maxBeneficiaryLength = 50

// channelPrefixes are stripped from the start of an upper-cased narration,
// longest first so "MOBILE TRANSFER TO:" wins over "TRANSFER TO:".
var channelPrefixes = []string{
	"MOBILE TRANSFER TO:",
	"ONLINE PAYMENT TO:",
	"WEB TRANSFER TO:",
	"ATM TRANSFER TO:",
	"TRANSFER TO:",
	"CARD PAYMENT:",
	"POS PURCHASE:",
	"PAYMENT TO:",
	"TRF TO:",
	"PAY:",
}

// bareWords are stripped only when they stand alone as the first word
var bareWords = []string{"TRANSFER", "PAYMENT"}

// narrationSeparators end the beneficiary part of a narration
var narrationSeparators = []string{"/", "|", "REF:", "TXN:", "SESSION:"}

// ExtractBeneficiary derives a comparable payee name from a narration
func ExtractBeneficiary(narration string) string {
	s := strings.TrimSpace(strings.ToUpper(narration))

	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range channelPrefixes {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
				stripped = true
				break
			}
		}
		if stripped {
			continue
		}
		for _, word := range bareWords {
			if s == word || strings.HasPrefix(s, word+" ") {
				s = strings.TrimSpace(strings.TrimPrefix(s, word))
				stripped = true
				break
			}
		}
	}

	for _, sep := range narrationSeparators {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}

	s = strings.Join(strings.Fields(s), " ")

	if runes := []rune(s); len(runes) > maxBeneficiaryLength {
		s = strings.TrimSpace(string(runes[:maxBeneficiaryLength]))
	}
	return s
}

var bankAccountIDs = []struct {
	tokens    []string
	accountID string
}{
	{[]string{"gtbank", "gtb"}, "GTB_Main"},
	{[]string{"access"}, "ACC_Main"},
	{[]string{"first"}, "FBN_Main"},
	{[]string{"zenith"}, "ZEN_Main"},
	{[]string{"uba"}, "UBA_Main"},
	{[]string{"union"}, "UNI_Main"},
	{[]string{"fidelity"}, "FID_Main"},
	{[]string{"sterling"}, "STL_Main"},
}

// AccountIDFromFilename infers an account id from a statement file name,
// e.g. "GTBank_Jan.csv" -> "GTB_Main"
func AccountIDFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "UNK_Main"
	}

	lower := strings.ToLower(base)
	for _, bank := range bankAccountIDs {
		for _, token := range bank.tokens {
			if strings.Contains(lower, token) {
				return bank.accountID
			}
		}
	}

	runes := []rune(base)
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return strings.ToUpper(string(runes)) + "_Main"
}

// BuildTransactionID returns <account>_<YYYYMMDD>_<HHMMSS>_<position>
func BuildTransactionID(accountID string, at time.Time, position int) string {
	return fmt.Sprintf("%s_%s_%d", accountID, at.Format("20060102_150405"), position)
}
