package core

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// BenchmarkNormalizeDate covers each accepted layout; later layouts pay for
// the failed attempts before them.
func BenchmarkNormalizeDate(b *testing.B) {
	inputs := []string{"2024-03-15", "03/15/2024", "15/03/2024", "2024/03/15"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, s := range inputs {
			NormalizeDate(s)
		}
	}
}

func generateSecurityRows(n int) Rows {
	rows := make(Rows, n)
	for i := range rows {
		rows[i] = tabular.Row{
			"security_id":   fmt.Sprintf("SEC%06d", i),
			"ISIN":          fmt.Sprintf("US%010d", i),
			"issuer":        "Acme",
			"description":   "Senior unsecured note",
			"currency":      "usd",
			"maturity_date": "03/15/2030",
		}
	}
	return rows
}

// BenchmarkProcessSecurityRows measures row validation and merging without
// the store round trip.
func BenchmarkProcessSecurityRows(b *testing.B) {
	rows := generateSecurityRows(10000)
	issuers := Issuers{"Acme": {Custodian: "alice", Contacts: []Contact{{Name: "Ann", Email: "ann@acme.com"}}}}
	m := Mapping{Fields: map[string]string{
		schema.SecurityID:   "security_id",
		schema.ISIN:         "ISIN",
		schema.IssuerRef:    "issuer",
		schema.Description:  "description",
		schema.Currency:     "currency",
		schema.MaturityDate: "maturity_date",
	}}
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		processSecurityRows(rows, m, issuers, make(Securities, len(rows)), now)
	}
}

// BenchmarkLoadCSV measures loading a 10k row security file.
func BenchmarkLoadCSV(b *testing.B) {
	var buf bytes.Buffer
	buf.WriteString("security_id,ISIN,issuer,description,currency,maturity_date\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&buf, "SEC%06d,US%010d,Acme,Senior unsecured note,usd,03/15/2030\n", i, i)
	}
	data := buf.Bytes()

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tabular.LoadCSV(bytes.NewReader(data), tabular.Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
