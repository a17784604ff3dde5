package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/AlekSi/pointer"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/gateway"
	"github.com/procesa/pesaje/internal/ledger/schema"
	"github.com/procesa/pesaje/internal/sitetime"
)

// weighingForm is the form posted by the weighing screen.
type weighingForm struct {
	Carga              string `form:"carga"`
	CantidadSolicitada string `form:"cantidad_solicitada"`
	SKUTina            string `form:"sku_tina"`
	SKUTalla           string `form:"sku_talla"`
	Tara               string `form:"peso_tara_numero"`
	Lote               string `form:"lote"`
	Tanque             string `form:"tanque"`
	PesoMarbete        string `form:"peso_marbete"`
	PesoBascula        string `form:"peso_bascula"`
	Merma              string `form:"merma"`
	Sensorial          string `form:"btn_sensorial"`
	NumeroRemision     string `form:"numero_remision"`
	Empleado           string `form:"empleado"`

	DevolucionBruto string `form:"peso_bascula_devolucion"`
	DevolucionNeto  string `form:"peso_neto_devolucion"`
	TinaEntrega     string `form:"tina_entrega"`

	DivisionCarga    string `form:"dvd_nueva_carga"`
	DivisionCantidad string `form:"dvd_cantidad_solicitada"`
	DivisionTina     string `form:"dvd_tina_nueva"`
}

func (f *weighingForm) input() (db.WeighingInput, error) {
	in := db.WeighingInput{
		LoadNumber:   strings.TrimSpace(f.Carga),
		ContainerSKU: f.SKUTina,
		SizeSKU:      f.SKUTalla,
		Lot:          f.Lote,
		Tank:         f.Tanque,
		Sensory:      schema.FlagValue(f.Sensorial) == 1,
		Header: map[string]string{
			"numero_remision": strings.TrimSpace(f.NumeroRemision),
			"empleado":        strings.TrimSpace(f.Empleado),
		},
	}
	if in.Header["numero_remision"] == "" {
		in.Header["numero_remision"] = "1"
	}

	nums := []struct {
		field string
		raw   string
		dst   *float64
	}{
		{"cantidad_solicitada", f.CantidadSolicitada, &in.RequestedQty},
		{"peso_tara_numero", f.Tara, &in.Tare},
		{"peso_bascula", f.PesoBascula, &in.GrossWeight},
		{"peso_marbete", f.PesoMarbete, &in.TagWeight},
		{"merma", f.Merma, &in.Shrink},
	}
	for _, n := range nums {
		v, _, err := number(n.field, n.raw)
		if err != nil {
			return db.WeighingInput{}, err
		}
		*n.dst = v
	}

	returnGross, hasGross, err := number("peso_bascula_devolucion", f.DevolucionBruto)
	if err != nil {
		return db.WeighingInput{}, err
	}
	returnNet, hasNet, err := number("peso_neto_devolucion", f.DevolucionNeto)
	if err != nil {
		return db.WeighingInput{}, err
	}
	if hasGross {
		in.ReturnGross = pointer.ToFloat64(returnGross)
	}
	if hasNet {
		in.ReturnNet = pointer.ToFloat64(returnNet)
	}
	if tina := strings.TrimSpace(f.TinaEntrega); tina != "" && hasGross && hasNet {
		in.Notes = "DEVOLUCION " + tina
	}

	carga := strings.TrimSpace(f.DivisionCarga)
	tina := strings.TrimSpace(f.DivisionTina)
	if carga != "" && tina != "" && strings.TrimSpace(f.DivisionCantidad) != "" {
		qty, _, err := number("dvd_cantidad_solicitada", f.DivisionCantidad)
		if err != nil {
			return db.WeighingInput{}, err
		}
		in.Division = &db.Division{
			NewLoadNumber:   carga,
			NewRequestedQty: qty,
			NewContainer:    tina,
		}
	}
	return in, nil
}

func (s *Server) saveWeighing(c *gin.Context) {
	var form weighingForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		fail(c, http.StatusBadRequest, "Datos inválidos")
		return
	}
	in, err := form.input()
	if err != nil {
		failErr(c, err)
		return
	}

	res, err := s.deps.Ledger.SaveWeighing(c.Request.Context(), in)
	if err != nil {
		s.logger.Printf("Failed to save weighing for carga %s: %v", in.LoadNumber, err)
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Remisión guardada correctamente",
		"resultado": res,
	})
}

// fieldEditRequest is the body of /actualizar_campo_remision.
type fieldEditRequest struct {
	ID        string `json:"id"`
	Tabla     string `json:"tabla"`
	Campo     string `json:"campo"`
	Valor     any    `json:"valor"`
	GeneralID string `json:"id_remision_general"`
}

func (s *Server) updateRemisionField(c *gin.Context) {
	var req fieldEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Datos inválidos")
		return
	}
	if strings.TrimSpace(req.GeneralID) == "undefined" {
		fail(c, http.StatusBadRequest, "ID inválido")
		return
	}
	if strings.TrimSpace(req.Tabla) == "" || strings.TrimSpace(req.Campo) == "" {
		fail(c, http.StatusBadRequest, "Datos inválidos")
		return
	}

	res, err := s.deps.Gateway.SetRemisionField(c.Request.Context(), gateway.Edit{
		Table:           req.Tabla,
		ID:              req.ID,
		Field:           req.Campo,
		Value:           req.Valor,
		ParentGeneralID: req.GeneralID,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Campo actualizado correctamente",
		"nuevo_id": res.ID,
	})
}

type deleteRowRequest struct {
	ID    string `json:"id"`
	Tabla string `json:"tabla"`
}

func (s *Server) deleteRemisionRow(c *gin.Context) {
	var req deleteRowRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Tabla) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Faltan datos"})
		return
	}
	table, err := schema.ParseRemisionTable(req.Tabla)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Ledger.SoftDelete(c.Request.Context(), table, strings.TrimSpace(req.ID)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "mensaje": fmt.Sprintf("Registro eliminado de %s", table)})
}

func (s *Server) loadsOfDay(c *gin.Context) {
	ctx := c.Request.Context()
	day, err := s.deps.Ledger.Clock().ResolveDay(c.Query("dia"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	loads, err := s.deps.Ledger.LoadsForDay(ctx, day)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dia": day, "cargas": loads})
}

func (s *Server) regradeLines(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, "ID inválido")
		return
	}
	lines, err := s.deps.Ledger.RegradeLinesForGeneral(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retallados": lines})
}

// loadOfDay answers one load of a day by carga and requested quantity, or {}
// when the load does not exist yet.
func (s *Server) loadOfDay(c *gin.Context) {
	ctx := c.Request.Context()
	carga := strings.TrimSpace(c.Query("carga"))
	qty, ok, err := number("cantidad_solicitada", c.Query("cantidad_solicitada"))
	if err != nil || !ok || carga == "" {
		fail(c, http.StatusBadRequest, "Datos inválidos")
		return
	}
	day, err := s.deps.Ledger.Clock().ResolveDay(c.Query("dia"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	load, err := s.deps.Ledger.LoadForDay(ctx, day, carga, qty)
	if errors.Is(err, schema.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, load)
}

// loadsOfWeek lists the loads of an ISO week (?year=&week=), or of an
// explicit [desde, hasta) day range. The current week is the default.
func (s *Server) loadsOfWeek(c *gin.Context) {
	ctx := c.Request.Context()
	clock := s.deps.Ledger.Clock()

	var from, to sitetime.Day
	var err error
	switch {
	case c.Query("desde") != "" || c.Query("hasta") != "":
		if from, err = clock.ResolveDay(c.Query("desde")); err == nil {
			to, err = clock.ResolveDay(c.Query("hasta"))
		}
	default:
		year, week, werr := clock.Today().Week()
		if y := c.Query("year"); y != "" {
			year, werr = strconv.Atoi(y)
		}
		if w := c.Query("week"); w != "" && werr == nil {
			week, werr = strconv.Atoi(w)
		}
		if err = werr; err == nil {
			from, to, err = sitetime.ISOWeek(year, week)
		}
	}
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	loads, err := s.deps.Ledger.LoadsInRange(ctx, from, to)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"desde": from, "hasta": to, "remisiones": loads})
}

// netDelivered answers the delivered net of a general document as plain
// text.
func (s *Server) netDelivered(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id_remision_general"))
	if id == "" {
		c.String(http.StatusOK, "0")
		return
	}
	total, err := s.deps.Ledger.NetDelivered(c.Request.Context(), id)
	if err != nil {
		s.logger.Printf("Failed to sum delivered net of %s: %v", id, err)
		c.String(http.StatusInternalServerError, "0")
		return
	}
	c.String(http.StatusOK, strconv.FormatFloat(total, 'f', -1, 64))
}
