package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

// The export service is wired from the other services, not the repositories;
// these guards keep their method sets aligned.
var (
	_ exportFeeSource    = (*FeeService)(nil)
	_ exportLedgerSource = (*LedgerService)(nil)
	_ exportOrgReader    = (*OrganizationService)(nil)
)

type stubExportFees struct {
	summary []models.FeeCollectionSummary
}

func (s *stubExportFees) CollectionSummary(_ context.Context, _ int64) ([]models.FeeCollectionSummary, error) {
	return s.summary, nil
}

type stubExportLedger struct {
	entries []models.LedgerEntry
	balance *models.LedgerBalance
}

func (s *stubExportLedger) List(_ context.Context, _ models.LedgerFilter) ([]models.LedgerEntry, *models.Pagination, error) {
	return s.entries, nil, nil
}

func (s *stubExportLedger) Balance(_ context.Context, _ int64) (*models.LedgerBalance, error) {
	return s.balance, nil
}

type stubExportOrgs struct {
	org *models.Organization
}

func (s *stubExportOrgs) Get(_ context.Context, _ int64) (*models.Organization, error) {
	return s.org, nil
}

func newExportFixture() *ExportService {
	fees := &stubExportFees{summary: []models.FeeCollectionSummary{
		{FeeID: 1, FeeName: "Membership Fee", Amount: 50, PayerCount: 3, Collected: 150},
		{FeeID: 2, FeeName: "Shirt Fee", Amount: 250, PayerCount: 2, Collected: 500},
	}}
	ledger := &stubExportLedger{
		entries: []models.LedgerEntry{
			{EventName: "Acquaintance Party", EntryType: models.LedgerCredit, Amount: 1200, CreatedAt: time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)},
			{EventName: "Venue Rental", EntryType: models.LedgerDebit, Amount: 400, CreatedAt: time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)},
		},
		balance: &models.LedgerBalance{OrgID: 7, TotalCredit: 1200, TotalDebit: 400, Balance: 800},
	}
	orgs := &stubExportOrgs{org: &models.Organization{ID: 7, Name: "Circle of Builders League", Abbreviation: "CBL"}}
	return NewExportService(fees, ledger, orgs, nil)
}

func TestCollectionReportCSVTotalsRows(t *testing.T) {
	svc := newExportFixture()

	result, err := svc.CollectionReport(context.Background(), 7, ExportFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "collections_CBL.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)

	body := string(result.Data)
	assert.True(t, strings.HasPrefix(body, "Fee,Amount,Payers,Collected\n"))
	assert.Contains(t, body, "Membership Fee,50.00,3,150.00")
	assert.Contains(t, body, "TOTAL,,,650.00")
}

func TestLedgerReportCSVEndsWithBalance(t *testing.T) {
	svc := newExportFixture()

	result, err := svc.LedgerReport(context.Background(), 7, ExportFormatCSV)
	require.NoError(t, err)

	body := string(result.Data)
	assert.Contains(t, body, "Acquaintance Party,CREDIT,1200.00,2025-09-05")
	assert.Contains(t, body, "Venue Rental,DEBIT,400.00,2025-09-06")
	assert.True(t, strings.HasSuffix(strings.TrimRight(body, "\n"), "BALANCE,,800.00,"))
}

func TestLedgerReportPDFFilename(t *testing.T) {
	svc := newExportFixture()

	result, err := svc.LedgerReport(context.Background(), 7, ExportFormatPDF)
	require.NoError(t, err)

	assert.Equal(t, "ledger_CBL.pdf", result.Filename)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.NotEmpty(t, result.Data)
}

func TestExportUnsupportedFormatRejected(t *testing.T) {
	svc := newExportFixture()

	_, err := svc.CollectionReport(context.Background(), 7, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
