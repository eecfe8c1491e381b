package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
	"github.com/Serrius/Educore-sub002/pkg/export"
)

type exportFeeSource interface {
	CollectionSummary(ctx context.Context, orgID int64) ([]models.FeeCollectionSummary, error)
}

type exportLedgerSource interface {
	List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, *models.Pagination, error)
	Balance(ctx context.Context, orgID int64) (*models.LedgerBalance, error)
}

type exportOrgReader interface {
	Get(ctx context.Context, id int64) (*models.Organization, error)
}

// ExportFormat selects the rendered document type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes plus metadata for the HTTP layer.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders fee collection and ledger reports as CSV or PDF.
type ExportService struct {
	fees   exportFeeSource
	ledger exportLedgerSource
	orgs   exportOrgReader
	logger *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(fees exportFeeSource, ledger exportLedgerSource, orgs exportOrgReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		fees:   fees,
		ledger: ledger,
		orgs:   orgs,
		logger: logger,
	}
}

// CollectionReport renders an organization's fee collection summary.
func (s *ExportService) CollectionReport(ctx context.Context, orgID int64, format ExportFormat) (*ExportResult, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	summary, err := s.fees.CollectionSummary(ctx, orgID)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Columns: []string{"Fee", "Amount", "Payers", "Collected"},
	}
	var total float64
	for _, row := range summary {
		total += row.Collected
		table.Rows = append(table.Rows, []string{
			row.FeeName,
			formatAmount(row.Amount),
			strconv.Itoa(row.PayerCount),
			formatAmount(row.Collected),
		})
	}
	table.Footer = []string{"TOTAL", "", "", formatAmount(total)}

	title := fmt.Sprintf("%s Fee Collections", org.Abbreviation)
	return s.render(table, title, fmt.Sprintf("collections_%s", org.Abbreviation), format)
}

// LedgerReport renders an organization's event ledger with its running
// balance as the last row.
func (s *ExportService) LedgerReport(ctx context.Context, orgID int64, format ExportFormat) (*ExportResult, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	entries, _, err := s.ledger.List(ctx, models.LedgerFilter{OrgID: orgID, PageSize: 100})
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, orgID)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Columns: []string{"Event", "Type", "Amount", "Recorded"},
	}
	for _, entry := range entries {
		table.Rows = append(table.Rows, []string{
			entry.EventName,
			string(entry.EntryType),
			formatAmount(entry.Amount),
			entry.CreatedAt.Format("2006-01-02"),
		})
	}
	table.Footer = []string{"BALANCE", "", formatAmount(balance.Balance), ""}

	title := fmt.Sprintf("%s Event Ledger", org.Abbreviation)
	return s.render(table, title, fmt.Sprintf("ledger_%s", org.Abbreviation), format)
}

func (s *ExportService) render(table export.Table, title, basename string, format ExportFormat) (*ExportResult, error) {
	switch format {
	case ExportFormatCSV:
		data, err := export.RenderCSV(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportResult{Filename: basename + ".csv", ContentType: "text/csv", Data: data}, nil
	case ExportFormatPDF:
		data, err := export.RenderPDF(table, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportResult{Filename: basename + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
