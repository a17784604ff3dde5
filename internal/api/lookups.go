package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Catalog lookups answer in plain text; the screens drop the string
// straight into a label.

func (s *Server) shipName(c *gin.Context) {
	initial, ok := c.GetQuery("inicial")
	if !ok {
		c.String(http.StatusOK, "")
		return
	}
	name, found, err := s.deps.Catalog.ShipName(c.Request.Context(), initial)
	if err != nil {
		s.logger.Printf("Ship lookup failed: %v", err)
		c.String(http.StatusInternalServerError, "")
		return
	}
	if !found {
		c.String(http.StatusOK, "No encontrado")
		return
	}
	c.String(http.StatusOK, name)
}

func (s *Server) sizeDescription(c *gin.Context) {
	desc, err := s.deps.Catalog.SizeDescription(c.Request.Context(), c.Query("sku_talla"))
	if err != nil {
		s.logger.Printf("Size lookup failed: %v", err)
		c.String(http.StatusInternalServerError, "")
		return
	}
	c.String(http.StatusOK, desc)
}

func (s *Server) tare(c *gin.Context) {
	sku, ok := c.GetQuery("sku_tina")
	if !ok {
		c.String(http.StatusOK, "")
		return
	}
	tare, found, err := s.deps.Catalog.TareFor(c.Request.Context(), sku)
	if err != nil {
		s.logger.Printf("Tare lookup failed: %v", err)
		c.String(http.StatusInternalServerError, "")
		return
	}
	if !found {
		c.String(http.StatusOK, "Tara: desconocida")
		return
	}
	c.String(http.StatusOK, "Tara: "+strconv.FormatFloat(tare, 'f', -1, 64)+" Kg")
}
