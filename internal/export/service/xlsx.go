package service

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/aceylabs/finledger/internal/export/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
)

const sheetName = "Payment Instructions"

func renderXLSX(batch *payoutdomain.PayoutBatch, lines []domain.Line) (*domain.Document, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	header := []any{"Payee", "Amount", "Currency", "Memo", "Reference"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}
	for i, line := range lines {
		cell := fmt.Sprintf("A%d", i+2)
		row := []any{line.Payee, line.Amount, line.Currency, line.Memo, line.Reference}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	summary := fmt.Sprintf("A%d", len(lines)+3)
	totalRow := []any{"Batch total", MajorUnits(batch.TotalAmount), batch.Currency, batch.ReferenceCode, ""}
	if err := f.SetSheetRow(sheetName, summary, &totalRow); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &domain.Document{
		Filename:    fmt.Sprintf("payout-batch-%s.xlsx", batch.ID.String()),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Bytes:       buf.Bytes(),
	}, nil
}
