package schema

// Nullable columns are pointers so a row marshals with explicit nulls, the
// shape the remote backend expects for "full row objects".

// GeneralDocument is the per-day shipment header (remisiones_general).
type GeneralDocument struct {
	ID              string  `json:"uuid"`
	Folio           *string `json:"folio"`
	Client          *string `json:"cliente"`
	SealNumber      *string `json:"numero_sello"`
	ContainerPlates *string `json:"placas_contenedor"`
	Invoice         *string `json:"factura"`
	Notes           *string `json:"observaciones"`
	ProductionDate  *string `json:"fecha_produccion"`
	ShipmentNumber  *string `json:"numero_remision"`
	Employee        *string `json:"empleado"`
	Deleted         int     `json:"borrado"`
	CreatedAt       string  `json:"fecha_creacion"`
}

// GeneralColumns is the column order used by GeneralDocument.ScanArgs.
var GeneralColumns = []string{
	"uuid", "folio", "cliente", "numero_sello", "placas_contenedor", "factura",
	"observaciones", "fecha_produccion", "numero_remision", "empleado",
	"borrado", "fecha_creacion",
}

// ScanArgs returns scan destinations in GeneralColumns order.
func (g *GeneralDocument) ScanArgs() []any {
	return []any{
		&g.ID, &g.Folio, &g.Client, &g.SealNumber, &g.ContainerPlates, &g.Invoice,
		&g.Notes, &g.ProductionDate, &g.ShipmentNumber, &g.Employee,
		&g.Deleted, &g.CreatedAt,
	}
}

// LoadHeader is one load inside a general document (remisiones_cabecera).
type LoadHeader struct {
	ID           string   `json:"uuid"`
	GeneralID    *string  `json:"id_remision_general"`
	LoadNumber   *string  `json:"carga"`
	RequestedQty *float64 `json:"cantidad_solicitada"`
	Deleted      int      `json:"borrado"`
	CreatedAt    string   `json:"fecha_creacion"`
}

// LoadColumns is the column order used by LoadHeader.ScanArgs.
var LoadColumns = []string{
	"uuid", "id_remision_general", "carga", "cantidad_solicitada", "borrado", "fecha_creacion",
}

// ScanArgs returns scan destinations in LoadColumns order.
func (l *LoadHeader) ScanArgs() []any {
	return []any{&l.ID, &l.GeneralID, &l.LoadNumber, &l.RequestedQty, &l.Deleted, &l.CreatedAt}
}

// DetailLine is one weighed container inside a load (remisiones_cuerpo).
// NetWeight and Shrink are maintained by store triggers.
type DetailLine struct {
	ID           string   `json:"uuid"`
	LoadID       *string  `json:"id_remision"`
	ContainerSKU *string  `json:"sku_tina"`
	SizeSKU      *string  `json:"sku_talla"`
	Tare         *float64 `json:"tara"`
	NetWeight    *float64 `json:"peso_neto"`
	Shrink       *float64 `json:"merma"`
	Lot          *string  `json:"lote"`
	Tank         *string  `json:"tanque"`
	TagWeight    *float64 `json:"peso_marbete"`
	GrossWeight  *float64 `json:"peso_bascula"`
	ReturnNet    *float64 `json:"peso_neto_devolucion"`
	ReturnGross  *float64 `json:"peso_bruto_devolucion"`
	Notes        *string  `json:"observaciones"`
	MSC          int      `json:"is_msc"`
	Sensory      int      `json:"is_sensorial"`
	Deleted      int      `json:"borrado"`
	CreatedAt    string   `json:"fecha_creacion"`
}

// DetailColumns is the column order used by DetailLine.ScanArgs.
var DetailColumns = []string{
	"uuid", "id_remision", "sku_tina", "sku_talla", "tara", "peso_neto", "merma",
	"lote", "tanque", "peso_marbete", "peso_bascula", "peso_neto_devolucion",
	"peso_bruto_devolucion", "observaciones", "is_msc", "is_sensorial",
	"borrado", "fecha_creacion",
}

// ScanArgs returns scan destinations in DetailColumns order.
func (d *DetailLine) ScanArgs() []any {
	return []any{
		&d.ID, &d.LoadID, &d.ContainerSKU, &d.SizeSKU, &d.Tare, &d.NetWeight, &d.Shrink,
		&d.Lot, &d.Tank, &d.TagWeight, &d.GrossWeight, &d.ReturnNet,
		&d.ReturnGross, &d.Notes, &d.MSC, &d.Sensory,
		&d.Deleted, &d.CreatedAt,
	}
}

// RegradeLine is a reprocessed container attached directly to a general
// document (remisiones_retallados).
type RegradeLine struct {
	ID           string   `json:"uuid"`
	GeneralID    *string  `json:"id_remision_general"`
	ContainerSKU *string  `json:"sku_tina"`
	SizeSKU      *string  `json:"sku_talla"`
	Lot          *string  `json:"lote"`
	Tank         *string  `json:"tanque"`
	Tare         *float64 `json:"tara"`
	GrossWeight  *float64 `json:"peso_bascula"`
	NetWeight    *float64 `json:"peso_neto"`
	TagWeight    *float64 `json:"peso_marbete"`
	Shrink       *float64 `json:"merma"`
	Notes        *string  `json:"observaciones"`
	MSC          int      `json:"is_msc"`
	Sensory      int      `json:"is_sensorial"`
	Deleted      int      `json:"borrado"`
	CreatedAt    string   `json:"fecha_creacion"`
}

// RegradeColumns is the column order used by RegradeLine.ScanArgs.
var RegradeColumns = []string{
	"uuid", "id_remision_general", "sku_tina", "sku_talla", "lote", "tanque",
	"tara", "peso_bascula", "peso_neto", "peso_marbete", "merma", "observaciones",
	"is_msc", "is_sensorial", "borrado", "fecha_creacion",
}

// ScanArgs returns scan destinations in RegradeColumns order.
func (r *RegradeLine) ScanArgs() []any {
	return []any{
		&r.ID, &r.GeneralID, &r.ContainerSKU, &r.SizeSKU, &r.Lot, &r.Tank,
		&r.Tare, &r.GrossWeight, &r.NetWeight, &r.TagWeight, &r.Shrink, &r.Notes,
		&r.MSC, &r.Sensory, &r.Deleted, &r.CreatedAt,
	}
}

// ReceivingRecord is one weighing at the receiving dock (camaras_frigorifico).
//
// RemoteID stays nil until the remote backend confirms the insert; a nil
// RemoteID is the only signal that the record still owes a push. State 1
// marks a soft-deleted record.
type ReceivingRecord struct {
	ID           string   `json:"uuid"`
	RemoteID     *int64   `json:"id_procesa_app"`
	UnloadDate   *string  `json:"fecha_de_descarga"`
	Certificate  *string  `json:"certificado"`
	ContainerSKU *string  `json:"sku_tina"`
	SizeSKU      *string  `json:"sku_talla"`
	GrossWeight  *float64 `json:"peso_bruto"`
	Tank         *string  `json:"tanque"`
	TagTime      *string  `json:"hora_de_marbete"`
	WeighTime    *string  `json:"hora_de_pesado"`
	FDA          *string  `json:"fda"`
	LotFDA       *string  `json:"lote_fda"`
	LotSAP       *string  `json:"lote_sap"`
	NetWeight    *float64 `json:"peso_neto"`
	Tare         *float64 `json:"tara"`
	Notes        *string  `json:"observaciones"`
	SavedAt      string   `json:"fecha_hora_guardado"`
	State        int      `json:"estado"`
	Employee     *string  `json:"empleado"`
}

// ReceivingColumns is the column order used by ReceivingRecord.ScanArgs.
var ReceivingColumns = []string{
	"uuid", "id_procesa_app", "fecha_de_descarga", "certificado", "sku_tina",
	"sku_talla", "peso_bruto", "tanque", "hora_de_marbete", "hora_de_pesado",
	"fda", "lote_fda", "lote_sap", "peso_neto", "tara", "observaciones",
	"fecha_hora_guardado", "estado", "empleado",
}

// ScanArgs returns scan destinations in ReceivingColumns order.
func (r *ReceivingRecord) ScanArgs() []any {
	return []any{
		&r.ID, &r.RemoteID, &r.UnloadDate, &r.Certificate, &r.ContainerSKU,
		&r.SizeSKU, &r.GrossWeight, &r.Tank, &r.TagTime, &r.WeighTime,
		&r.FDA, &r.LotFDA, &r.LotSAP, &r.NetWeight, &r.Tare, &r.Notes,
		&r.SavedAt, &r.State, &r.Employee,
	}
}

// Deleted reports whether the record is soft-deleted.
func (r *ReceivingRecord) Deleted() bool { return r.State == 1 }

// QueueEntry is one pending or processed mutation of a receiving record.
type QueueEntry struct {
	ID          int64     `json:"id"`
	Table       Table     `json:"tabla"`
	RecordID    string    `json:"id_registro"`
	Operation   Operation `json:"tipo_operacion"`
	Processed   bool      `json:"procesado"`
	CreatedAt   string    `json:"fecha_creacion"`
	ProcessedAt *string   `json:"fecha_procesado"`
}

// Snapshot is the set of active rows of one site-local day, keyed the way
// the remote snapshot endpoint expects.
type Snapshot struct {
	Receiving []ReceivingRecord `json:"camaras_frigorifico"`
	General   []GeneralDocument `json:"remisiones_general"`
	Loads     []LoadHeader      `json:"remisiones_cabecera"`
	Details   []DetailLine      `json:"remisiones_cuerpo"`
	Regrades  []RegradeLine     `json:"remisiones_retallados"`
}

// NewSnapshot returns a snapshot whose tables are empty but non-nil, so it
// marshals as empty arrays rather than nulls.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Receiving: []ReceivingRecord{},
		General:   []GeneralDocument{},
		Loads:     []LoadHeader{},
		Details:   []DetailLine{},
		Regrades:  []RegradeLine{},
	}
}

// Len returns the total number of rows across all tables.
func (s *Snapshot) Len() int {
	return len(s.Receiving) + len(s.General) + len(s.Loads) + len(s.Details) + len(s.Regrades)
}

// Empty reports whether the snapshot holds no rows.
func (s *Snapshot) Empty() bool { return s.Len() == 0 }

// Counts returns the row count per table.
func (s *Snapshot) Counts() map[Table]int {
	return map[Table]int{
		TableReceiving: len(s.Receiving),
		TableGeneral:   len(s.General),
		TableLoad:      len(s.Loads),
		TableDetail:    len(s.Details),
		TableRegrade:   len(s.Regrades),
	}
}
