package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type mockOrgRepo struct {
	orgs   map[int64]*models.Organization
	nextID int64
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{orgs: map[int64]*models.Organization{}, nextID: 1}
}

func (m *mockOrgRepo) List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error) {
	var out []models.Organization
	for _, org := range m.orgs {
		out = append(out, *org)
	}
	return out, len(out), nil
}

func (m *mockOrgRepo) FindByID(ctx context.Context, id int64) (*models.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *org
	return &copied, nil
}

func (m *mockOrgRepo) ExistsByAbbreviation(ctx context.Context, abbreviation string, period models.Period, excludeID int64) (bool, error) {
	for _, org := range m.orgs {
		if org.ID != excludeID && org.Abbreviation == abbreviation && org.Period() == period {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrgRepo) Create(ctx context.Context, org *models.Organization) error {
	org.ID = m.nextID
	m.nextID++
	copied := *org
	m.orgs[org.ID] = &copied
	return nil
}

// seed inserts a pre-existing row and keeps Create's ID sequence ahead of it.
func (m *mockOrgRepo) seed(org *models.Organization) {
	copied := *org
	m.orgs[org.ID] = &copied
	if org.ID >= m.nextID {
		m.nextID = org.ID + 1
	}
}

func (m *mockOrgRepo) Update(ctx context.Context, org *models.Organization) error {
	copied := *org
	m.orgs[org.ID] = &copied
	return nil
}

func (m *mockOrgRepo) Delete(ctx context.Context, id int64) error {
	delete(m.orgs, id)
	return nil
}

func newOrganizationFixture() (*OrganizationService, *mockOrgRepo) {
	repo := newMockOrgRepo()
	years := fixedPeriod{period: models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025}}
	return NewOrganizationService(repo, years, nil, nil), repo
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: 2, Role: models.RoleAdmin}
}

func TestCreateOrganizationDefaultsToPending(t *testing.T) {
	svc, _ := newOrganizationFixture()

	org, err := svc.Create(context.Background(), CreateOrganizationRequest{
		Name:         "Computing Society",
		Abbreviation: "cbl",
		Scope:        string(models.OrgScopeGeneral),
		AdminID:      testOrgAdminID,
	}, adminClaims())
	require.NoError(t, err)

	assert.Equal(t, models.OrgStatusPending, org.Status)
	assert.Equal(t, "CBL", org.Abbreviation)
	assert.Equal(t, 2025, org.ActiveYear)
	assert.Equal(t, int64(2), org.AuthorID)
}

func TestCreateOrganizationDuplicateAbbreviationConflicts(t *testing.T) {
	svc, _ := newOrganizationFixture()

	req := CreateOrganizationRequest{
		Name:         "Computing Society",
		Abbreviation: "CBL",
		Scope:        string(models.OrgScopeGeneral),
		AdminID:      testOrgAdminID,
	}
	_, err := svc.Create(context.Background(), req, adminClaims())
	require.NoError(t, err)

	req.Name = "Computing Society Duplicate"
	_, err = svc.Create(context.Background(), req, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// Same abbreviation in different case is the same abbreviation.
	req.Abbreviation = "cbl"
	_, err = svc.Create(context.Background(), req, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateExclusiveOrganizationRequiresCourse(t *testing.T) {
	svc, _ := newOrganizationFixture()

	_, err := svc.Create(context.Background(), CreateOrganizationRequest{
		Name:         "Nursing Guild",
		Abbreviation: "NG",
		Scope:        string(models.OrgScopeExclusive),
		AdminID:      testOrgAdminID,
	}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateForeignOrgAdminForbidden(t *testing.T) {
	svc, repo := newOrganizationFixture()
	repo.seed(&models.Organization{
		ID:           1,
		Name:         "Computing Society",
		Abbreviation: "CBL",
		Scope:        models.OrgScopeGeneral,
		AdminID:      testOrgAdminID,
		Status:       models.OrgStatusPending,
		StartYear:    2025,
		EndYear:      2026,
		ActiveYear:   2025,
	})

	_, err := svc.Update(context.Background(), 1, UpdateOrganizationRequest{
		Name:         "Computing Society",
		Abbreviation: "CBL",
		Scope:        string(models.OrgScopeGeneral),
		AdminID:      testOrgAdminID,
	}, &models.JWTClaims{UserID: 999, Role: models.RoleOrgAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRenewCopiesOrganizationIntoActiveYear(t *testing.T) {
	svc, repo := newOrganizationFixture()
	repo.seed(&models.Organization{
		ID:           1,
		Name:         "Computing Society",
		Abbreviation: "CBL",
		Scope:        models.OrgScopeGeneral,
		AdminID:      testOrgAdminID,
		Status:       models.OrgStatusAccredited,
		StartYear:    2024,
		EndYear:      2025,
		ActiveYear:   2024,
	})

	renewed, err := svc.Renew(context.Background(), 1, adminClaims())
	require.NoError(t, err)

	assert.NotEqual(t, int64(1), renewed.ID)
	assert.Equal(t, models.OrgStatusPending, renewed.Status)
	assert.Equal(t, "CBL", renewed.Abbreviation)
	assert.Equal(t, 2025, renewed.ActiveYear)
	// The source record keeps its earned status in the old year.
	assert.Equal(t, models.OrgStatusAccredited, repo.orgs[1].Status)
}

func TestRenewCurrentYearOrganizationConflicts(t *testing.T) {
	svc, repo := newOrganizationFixture()
	repo.seed(&models.Organization{
		ID:           1,
		Name:         "Computing Society",
		Abbreviation: "CBL",
		Scope:        models.OrgScopeGeneral,
		AdminID:      testOrgAdminID,
		Status:       models.OrgStatusPending,
		StartYear:    2025,
		EndYear:      2026,
		ActiveYear:   2025,
	})

	_, err := svc.Renew(context.Background(), 1, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRenewTwiceConflicts(t *testing.T) {
	svc, repo := newOrganizationFixture()
	repo.seed(&models.Organization{
		ID:           1,
		Name:         "Computing Society",
		Abbreviation: "CBL",
		Scope:        models.OrgScopeGeneral,
		AdminID:      testOrgAdminID,
		Status:       models.OrgStatusAccredited,
		StartYear:    2024,
		EndYear:      2025,
		ActiveYear:   2024,
	})

	_, err := svc.Renew(context.Background(), 1, adminClaims())
	require.NoError(t, err)

	_, err = svc.Renew(context.Background(), 1, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
