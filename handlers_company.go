package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"finchat/models"
	"finchat/pkg/access"
	"finchat/pkg/companies"
	"finchat/pkg/extract"
	"finchat/pkg/ingest"
	"finchat/pkg/sheet"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// companyFromParam resolves the :name path parameter to a company the caller
// may read. It writes the error response itself.
func (s *server) companyFromParam(c *gin.Context, name string) (*models.Company, bool) {
	company, status, msg := s.resolveCompany(c, name)
	if company == nil {
		c.JSON(status, gin.H{"error": msg})
		return nil, false
	}
	return company, true
}

// resolveCompany is companyFromParam without the response: on failure it
// returns the status and message to report.
func (s *server) resolveCompany(c *gin.Context, name string) (*models.Company, int, string) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return nil, http.StatusBadRequest, "invalid company id"
	}
	if err := principal(c).Require(uint(id)); err != nil {
		return nil, http.StatusForbidden, "forbidden"
	}
	company, err := s.companies.Get(c.Request.Context(), uint(id))
	if err != nil {
		status, msg := s.companyStatus(err)
		return nil, status, msg
	}
	return company, 0, ""
}

func (s *server) companyError(c *gin.Context, err error) {
	status, msg := s.companyStatus(err)
	c.JSON(status, gin.H{"error": msg})
}

func (s *server) companyStatus(err error) (int, string) {
	switch {
	case errors.Is(err, companies.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, companies.ErrDuplicateName):
		return http.StatusConflict, err.Error()
	case errors.Is(err, companies.ErrInvalid), errors.Is(err, companies.ErrCycle):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		s.log.Error("company operation failed", zap.Error(err))
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *server) listCompaniesHandler(c *gin.Context) {
	list, err := s.companies.List(c.Request.Context(), principal(c))
	if err != nil {
		s.companyError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *server) createCompanyHandler(c *gin.Context) {
	var in companies.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company, err := s.companies.Create(c.Request.Context(), in)
	if err != nil {
		s.companyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

func (s *server) updateCompanyHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company id"})
		return
	}
	var in companies.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company, err := s.companies.Update(c.Request.Context(), uint(id), in)
	if err != nil {
		s.companyError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (s *server) deleteCompanyHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company id"})
		return
	}
	if err := s.companies.Delete(c.Request.Context(), uint(id)); err != nil {
		s.companyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "company deleted"})
}

// uploadFileHandler ingests one multipart balance sheet into the company.
// Every failure answers {status:"error", message}.
func (s *server) uploadFileHandler(c *gin.Context) {
	if principal(c).Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "forbidden"})
		return
	}
	company, status, msg := s.resolveCompany(c, "id")
	if company == nil {
		c.JSON(status, gin.H{"status": "error", "message": msg})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "file missing"})
		return
	}
	if s.cfg.MaxUploadBytes > 0 && file.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "message": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "cannot read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "cannot read file"})
		return
	}

	out, err := s.ingest.Ingest(c.Request.Context(), ingest.Request{
		CompanyID:   company.ID,
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
		Principal:   principal(c),
	})
	if err != nil {
		resp := gin.H{"status": "error", "message": err.Error()}
		if out != nil && out.Batch != nil && out.Batch.ID != 0 {
			resp["upload_id"] = out.Batch.ID
		}
		c.JSON(uploadStatus(err), resp)
		return
	}
	warnings := out.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "success",
		"upload_id":       out.Batch.ID,
		"company":         company.Name,
		"layout":          out.Batch.Layout,
		"processed_years": out.ProcessedYears,
		"warnings":        warnings,
	})
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ingest.ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sheet.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, sheet.ErrEmptyDocument), errors.Is(err, extract.ErrNoYearColumnsFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, companies.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) listUploadsHandler(c *gin.Context) {
	company, ok := s.companyFromParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	batches, err := s.facts.Batches(c.Request.Context(), company.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, batches)
}

// companyMetricsHandler returns chart data: the sorted years and one series
// per metric with null where no fact exists.
func (s *server) companyMetricsHandler(c *gin.Context) {
	company, ok := s.companyFromParam(c, "id")
	if !ok {
		return
	}
	series, err := s.facts.Timeseries(c.Request.Context(), company.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"company_id": company.ID,
		"company":    company.Name,
		"currency":   company.Currency,
		"years":      series.Years,
		"metrics":    series.Metrics,
	})
}

func (s *server) deleteYearHandler(c *gin.Context) {
	company, ok := s.companyFromParam(c, "id")
	if !ok {
		return
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return
	}
	n, err := s.facts.DeleteYear(c.Request.Context(), company.ID, year)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if n > 0 {
		s.chat.Invalidate(company.ID)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
