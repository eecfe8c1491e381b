package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/Serrius/Educore-sub002/internal/middleware"
	"github.com/Serrius/Educore-sub002/internal/models"
	"github.com/Serrius/Educore-sub002/internal/service"
)

type academicYearRepoStub struct {
	years     []models.AcademicYear
	activated []int64
	closed    []int64
}

func (s *academicYearRepoStub) FindActive(context.Context) (*models.AcademicYear, error) {
	for i := range s.years {
		if s.years[i].Status == models.AcademicYearActive {
			return &s.years[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *academicYearRepoStub) FindByID(_ context.Context, id int64) (*models.AcademicYear, error) {
	for i := range s.years {
		if s.years[i].ID == id {
			return &s.years[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *academicYearRepoStub) List(context.Context) ([]models.AcademicYear, error) {
	return s.years, nil
}

func (s *academicYearRepoStub) ExistsBySpan(_ context.Context, startYear, endYear, activeYear int) (bool, error) {
	for _, y := range s.years {
		if y.StartYear == startYear && y.EndYear == endYear && y.ActiveYear == activeYear {
			return true, nil
		}
	}
	return false, nil
}

func (s *academicYearRepoStub) Create(_ context.Context, year *models.AcademicYear) error {
	year.ID = int64(len(s.years) + 1)
	s.years = append(s.years, *year)
	return nil
}

func (s *academicYearRepoStub) SetActive(_ context.Context, id int64) error {
	s.activated = append(s.activated, id)
	for i := range s.years {
		if s.years[i].ID == id {
			s.years[i].Status = models.AcademicYearActive
		} else {
			s.years[i].Status = models.AcademicYearClosed
		}
	}
	return nil
}

func (s *academicYearRepoStub) Close(_ context.Context, id int64) error {
	s.closed = append(s.closed, id)
	return nil
}

func buildAcademicYearRouter(repo *academicYearRepoStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: 1,
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	h := NewAcademicYearHandler(service.NewAcademicYearService(repo, nil, nil))
	adminOnly := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	years := router.Group("/academic-years")
	years.GET("", h.List)
	years.GET("/active", h.Active)
	years.POST("", adminOnly, h.Create)
	years.POST("/:id/activate", adminOnly, h.Activate)
	years.POST("/:id/close", adminOnly, h.Close)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAcademicYearRoutes(t *testing.T) {
	now := time.Now()
	repo := &academicYearRepoStub{years: []models.AcademicYear{
		{ID: 1, StartYear: 2024, EndYear: 2025, ActiveYear: 2024, Status: models.AcademicYearClosed, CreatedAt: now},
		{ID: 2, StartYear: 2025, EndYear: 2026, ActiveYear: 2025, Status: models.AcademicYearActive, CreatedAt: now},
	}}
	router := buildAcademicYearRouter(repo)

	t.Run("list", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/academic-years", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"start_year":2025`)
	})

	t.Run("active", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/academic-years/active", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"ACTIVE"`)
	})

	t.Run("create forbidden for org admins", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/academic-years", bytes.NewBufferString(`{"start_year":2026,"end_year":2027,"active_year":2026}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleOrgAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("create success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/academic-years", bytes.NewBufferString(`{"start_year":2026,"end_year":2027,"active_year":2026}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
	})

	t.Run("create duplicate span conflicts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/academic-years", bytes.NewBufferString(`{"start_year":2025,"end_year":2026,"active_year":2025}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("activate", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/academic-years/1/activate", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSuperAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, []int64{1}, repo.activated)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/academic-years/1/close", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}
