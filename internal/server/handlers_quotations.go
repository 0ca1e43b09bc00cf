package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"quotations/internal/quotation"
	"quotations/models"
)

// quotationView adds the computed totals to a stored quotation.
type quotationView struct {
	*models.Quotation
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

func viewOf(q *models.Quotation) quotationView {
	return quotationView{
		Quotation:  q,
		Subtotal:   q.Subtotal(),
		TaxAmount:  q.TaxAmount(),
		GrandTotal: q.GrandTotal(),
	}
}

func (s *Server) createQuotation(c *gin.Context) {
	var in quotation.Input
	files, err := s.decodeQuotationRequest(c, &in)
	if err != nil {
		s.fail(c, err)
		return
	}
	q, err := s.quotes.Create(c.Request.Context(), in, files)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(q))
}

func (s *Server) listQuotations(c *gin.Context) {
	list, err := s.quotes.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]quotationView, len(list))
	for i := range list {
		out[i] = viewOf(&list[i])
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getQuotation(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	q, err := s.quotes.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(q))
}

func (s *Server) updateQuotation(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var p quotation.Patch
	files, err := s.decodeQuotationRequest(c, &p)
	if err != nil {
		s.fail(c, err)
		return
	}
	q, err := s.quotes.Update(c.Request.Context(), id, p, files)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(q))
}

func (s *Server) deleteQuotation(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.quotes.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) summary(c *gin.Context) {
	rows, err := s.reports.Summary(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
