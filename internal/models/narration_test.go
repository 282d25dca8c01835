package models

import (
	"strings"
	"testing"
	"time"
)

func TestExtractBeneficiary(t *testing.T) {
	tests := []struct {
		narration string
		want      string
	}{
		{"TRANSFER TO: John Doe/REF:12345", "JOHN DOE"},
		{"Mobile Transfer To: Jane  Smith | SESSION:0001", "JANE SMITH"},
		{"ONLINE PAYMENT TO: DSTV NIGERIA TXN: 88", "DSTV NIGERIA"},
		{"POS PURCHASE: SHOPRITE LEKKI", "SHOPRITE LEKKI"},
		{"PAYMENT TO: TRANSFER TO: NESTED", "NESTED"},
		{"TRANSFER KEMI ADE", "KEMI ADE"},
		{"TRANSFERWISE LTD", "TRANSFERWISE LTD"},
		{"PAY: EKEDC", "EKEDC"},
		{"   ", ""},
		{"REF:ONLY", ""},
		{"NIGERIAN BOTTLING COMPANY", "NIGERIAN BOTTLING COMPANY"},
	}

	for _, tt := range tests {
		t.Run(tt.narration, func(t *testing.T) {
			if got := ExtractBeneficiary(tt.narration); got != tt.want {
				t.Errorf("ExtractBeneficiary(%q) = %q, want %q", tt.narration, got, tt.want)
			}
		})
	}
}

func TestExtractBeneficiaryCapsLength(t *testing.T) {
	long := strings.Repeat("ABCDE ", 20)
	got := ExtractBeneficiary(long)
	if len([]rune(got)) > 50 {
		t.Errorf("expected at most 50 runes, got %d", len([]rune(got)))
	}
	if strings.HasSuffix(got, " ") {
		t.Errorf("expected trimmed result, got %q", got)
	}
}

func TestAccountIDFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"GTBank_Jan.csv", "GTB_Main"},
		{"/data/statements/gtb-2024.csv", "GTB_Main"},
		{"AccessBank.csv", "ACC_Main"},
		{"first_bank_q1.csv", "FBN_Main"},
		{"ZENITH.csv", "ZEN_Main"},
		{"uba.csv", "UBA_Main"},
		{"UnionBank.csv", "UNI_Main"},
		{"fidelity.csv", "FID_Main"},
		{"sterling_march.csv", "STL_Main"},
		{"wema_statement.csv", "WEM_Main"},
		{"ab.csv", "AB_Main"},
		{"", "UNK_Main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AccountIDFromFilename(tt.name); got != tt.want {
				t.Errorf("AccountIDFromFilename(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestBuildTransactionID(t *testing.T) {
	at := time.Date(2023, 12, 31, 7, 5, 3, 0, time.UTC)
	a := BuildTransactionID("UBA_Main", at, 1)
	b := BuildTransactionID("UBA_Main", at, 2)

	if a != "UBA_Main_20231231_070503_1" {
		t.Errorf("unexpected id %s", a)
	}
	if a == b {
		t.Error("expected position to disambiguate same-timestamp rows")
	}
}
