package service

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/aceylabs/finledger/internal/export/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
)

var csvHeader = []string{"payee", "amount", "currency", "memo", "reference"}

// renderCSV writes rows in ledger id order with no timestamps or
// randomness, so regenerating an unchanged batch is byte-identical.
func renderCSV(batch *payoutdomain.PayoutBatch, lines []domain.Line) (*domain.Document, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, line := range lines {
		record := []string{line.Payee, line.Amount, line.Currency, line.Memo, line.Reference}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return &domain.Document{
		Filename:    fmt.Sprintf("payout-batch-%s.csv", batch.ID.String()),
		ContentType: "text/csv",
		Bytes:       buf.Bytes(),
	}, nil
}
