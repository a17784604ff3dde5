package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/procesa/pesaje/internal/split"
)

// splitRequest is the JSON form of /devolucion.
type splitRequest struct {
	RequestedQty float64   `json:"cantidad_solicitada"`
	Nets         []float64 `json:"pesos_netos"`
}

// splitQuery answers GET /devolucion?cantidad_solicitada=1700&pesos_netos=500,500,1000.
// Unparsable weights in the list are skipped.
func (s *Server) splitQuery(c *gin.Context) {
	qty, ok, err := number("cantidad_solicitada", c.Query("cantidad_solicitada"))
	if err != nil || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cantidad_solicitada inválida"})
		return
	}

	var nets []float64
	for _, part := range strings.Split(c.Query("pesos_netos"), ",") {
		n, ok, err := number("pesos_netos", part)
		if err != nil || !ok {
			continue
		}
		nets = append(nets, n)
	}
	s.answerSplit(c, qty, nets)
}

func (s *Server) splitJSON(c *gin.Context) {
	var req splitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Datos inválidos"})
		return
	}
	s.answerSplit(c, req.RequestedQty, req.Nets)
}

func (s *Server) answerSplit(c *gin.Context, qty float64, nets []float64) {
	res, err := split.Split(qty, nets)
	switch {
	case errors.Is(err, split.ErrInsufficientQuantity):
		c.JSON(http.StatusOK, gin.H{"error": split.InsufficientMessage})
	case errors.Is(err, split.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
	case res.NoSplitNeeded:
		c.JSON(http.StatusOK, gin.H{"mensaje": split.NoSplitMessage})
	default:
		c.JSON(http.StatusOK, res)
	}
}
