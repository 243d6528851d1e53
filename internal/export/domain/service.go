package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Document is a rendered payment-instruction file. The engine prepares
// these for a human operator; it never transmits funds itself.
type Document struct {
	Filename    string
	ContentType string
	Bytes       []byte
}

// Line is one payment instruction row.
type Line struct {
	Payee     string
	Amount    string // major units, fixed two decimals
	Currency  string
	Memo      string
	Reference string // ledger id for reconciliation
}

type Service interface {
	// Generate renders the batch as a payment-instruction document.
	// Only batches at or past approval can be exported; regeneration
	// of an unchanged batch is byte-identical.
	Generate(ctx context.Context, batchID snowflake.ID, format Format) (*Document, error)
}

var (
	ErrBatchNotApproved = errors.New("batch_not_approved")
	ErrUnknownFormat    = errors.New("unknown_export_format")
	// ErrBatchDrift means the ledgers no longer match the hash taken
	// at batch creation; the export is refused rather than emitting
	// instructions that differ from what was approved.
	ErrBatchDrift = errors.New("batch_content_drift")
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnknownFormat
	}
}
