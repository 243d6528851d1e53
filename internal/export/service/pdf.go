package service

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/aceylabs/finledger/internal/export/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
)

// renderPDF produces a remittance advice the operator can hand to the
// payment desk alongside the CSV instructions.
func renderPDF(batch *payoutdomain.PayoutBatch, lines []domain.Line) (*domain.Document, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payout Remittance Advice", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Batch: "+batch.ReferenceCode, props.Text{Top: 0}),
			text.New("Settlement month: "+batch.Month, props.Text{Top: 5}),
			text.New("Status: "+string(batch.Status), props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New(fmt.Sprintf("Ledgers: %d", batch.LedgerCount), props.Text{Top: 0, Align: align.Right}),
			text.New(fmt.Sprintf("Total: %s %s", MajorUnits(batch.TotalAmount), batch.Currency), props.Text{
				Top:   5,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
	)

	m.AddRow(10,
		text.NewCol(4, "Payee", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "Ccy", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Memo", props.Text{Style: fontstyle.Bold, Size: 9}),
	)

	for _, line := range lines {
		m.AddRow(8,
			text.NewCol(4, line.Payee, props.Text{Size: 9}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, line.Currency, props.Text{Size: 9}),
			text.NewCol(5, line.Memo, props.Text{Size: 9}),
		)
	}

	m.AddRow(14,
		text.NewCol(12, "Prepared for manual execution. This document does not move funds.", props.Text{
			Size: 8,
			Top:  6,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return &domain.Document{
		Filename:    fmt.Sprintf("payout-batch-%s.pdf", batch.ID.String()),
		ContentType: "application/pdf",
		Bytes:       doc.GetBytes(),
	}, nil
}
