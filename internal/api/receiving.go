package api

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/schema"
)

// receivingForm is the form posted by the receiving dock screen.
type receivingForm struct {
	LoteBasico    string `form:"lote_basico"`
	FDA           string `form:"fda"`
	SKUTina       string `form:"sku_tina"`
	SKUTalla      string `form:"sku_talla"`
	Tanque        string `form:"tanque"`
	Certificado   string `form:"certificado"`
	FechaDescarga string `form:"fecha_de_descarga"`
	HoraMarbete   string `form:"hora_de_marbete"`
	HoraPesado    string `form:"hora_de_pesado"`
	Observaciones string `form:"observaciones"`
	Empleado      string `form:"empleado"`
	PesoBruto     string `form:"peso_bruto"`
	PesoTara      string `form:"peso_tara"` // display text, e.g. "Tara: 171 Kg"
	NuevaTara     string `form:"nueva_tara"`
}

var tareText = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)

// tare prefers an explicit nueva_tara and falls back to the number shown in
// the peso_tara text.
func (f *receivingForm) tare() float64 {
	if n, ok, err := number("nueva_tara", f.NuevaTara); err == nil && ok && n > 0 {
		return n
	}
	m := tareText.FindStringSubmatch(f.PesoTara)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) saveReceiving(c *gin.Context) {
	var form receivingForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		fail(c, http.StatusBadRequest, "Datos inválidos")
		return
	}
	for _, req := range [][2]string{
		{"lote_basico", form.LoteBasico},
		{"peso_bruto", form.PesoBruto},
		{"peso_tara", form.PesoTara},
		{"sku_tina", form.SKUTina},
	} {
		if strings.TrimSpace(req[1]) == "" {
			fail(c, http.StatusBadRequest, `El campo "`+req[0]+`" es obligatorio.`)
			return
		}
	}
	gross, _, err := number("peso_bruto", form.PesoBruto)
	if err != nil {
		failErr(c, err)
		return
	}

	rec, err := s.deps.Ledger.SaveReceivingRecord(c.Request.Context(), db.ReceivingInput{
		BasicLot:     form.LoteBasico,
		FDA:          form.FDA,
		ContainerSKU: form.SKUTina,
		SizeSKU:      form.SKUTalla,
		Tank:         form.Tanque,
		Certificate:  form.Certificado,
		UnloadDate:   form.FechaDescarga,
		TagTime:      form.HoraMarbete,
		WeighTime:    form.HoraPesado,
		Notes:        form.Observaciones,
		Employee:     form.Empleado,
		GrossWeight:  gross,
		Tare:         form.tare(),
	})
	if err != nil {
		s.logger.Printf("Failed to save receiving record for lot %s: %v", form.LoteBasico, err)
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Registro guardado", "registro": rec})
}

type receivingEditRequest struct {
	ID    string `json:"id"`
	Campo string `json:"campo"`
	Valor any    `json:"valor"`
}

func (s *Server) updateReceivingField(c *gin.Context) {
	var req receivingEditRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Campo) == "" || req.Valor == nil {
		fail(c, http.StatusBadRequest, "ID o campo inválido")
		return
	}
	err := s.deps.Ledger.SetField(c.Request.Context(), schema.TableReceiving, strings.TrimSpace(req.ID), req.Campo, req.Valor)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Campo actualizado correctamente"})
}

func (s *Server) deleteReceiving(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Ledger.SoftDelete(c.Request.Context(), schema.TableReceiving, id); err != nil {
		s.logger.Printf("Failed to delete receiving record %s: %v", id, err)
		c.JSON(statusFor(err), gin.H{"error": "No se pudo eliminar"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) recentReceiving(c *gin.Context) {
	recs, err := s.deps.Ledger.RecentReceivingRecords(c.Request.Context(), 13)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"datos": recs})
}

// lotTotal answers with the active net weight of a lot as plain text.
func (s *Server) lotTotal(c *gin.Context) {
	lot := strings.TrimSpace(c.Query("lote_fda"))
	if lot == "" {
		c.String(http.StatusOK, "0")
		return
	}
	total, err := s.deps.Ledger.LotNetTotal(c.Request.Context(), lot)
	if err != nil {
		c.String(http.StatusInternalServerError, "0")
		return
	}
	c.String(http.StatusOK, strconv.FormatFloat(total, 'f', -1, 64))
}
