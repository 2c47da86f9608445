package query

import (
	"encoding/json"
	"testing"

	"github.com/tracewell/discover-go/internal/domain"
)

func TestKeyTransactionConditionsEncoding(t *testing.T) {
	records := []domain.KeyTransaction{
		{ProjectID: 1, Transaction: "/api/0/organizations/"},
		{ProjectID: 2, Transaction: "/checkout"},
	}
	blob, err := json.Marshal([]Disjunction{KeyTransactionConditions(records)})
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	want := `[[` +
		`[["and",[["equals",["transaction","'/api/0/organizations/'"]],["equals",["project_id",1]]]],"=",1],` +
		`[["and",[["equals",["transaction","'/checkout'"]],["equals",["project_id",2]]]],"=",1]` +
		`]]`
	if string(blob) != want {
		t.Fatalf("encoding=%s, want %s", blob, want)
	}
}

func TestKeyTransactionConditionsEmpty(t *testing.T) {
	blob, err := json.Marshal(KeyTransactionConditions(nil))
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	if string(blob) != "[]" {
		t.Fatalf("encoding=%s, want []", blob)
	}
}

func TestStringLiteralEscapesQuotes(t *testing.T) {
	if got := StringLiteral(`it's`); got != `'it\'s'` {
		t.Fatalf("StringLiteral()=%s", got)
	}
	if got := StringLiteral(`a\b`); got != `'a\\b'` {
		t.Fatalf("StringLiteral()=%s", got)
	}
}

func TestAlias(t *testing.T) {
	cases := map[string]string{
		"transaction":                           "transaction",
		"p95()":                                 "p95",
		"rpm()":                                 "rpm",
		"count_unique(user)":                    "count_unique_user",
		"percentile(transaction.duration,0.95)": "percentile_transaction_duration_0_95",
		" error_rate() ":                        "error_rate",
	}
	for in, want := range cases {
		if got := Alias(in); got != want {
			t.Fatalf("Alias(%q)=%q, want %q", in, got, want)
		}
	}
	if IsFunction("transaction") || !IsFunction("p95()") {
		t.Fatalf("IsFunction() misclassified")
	}
}
