package db

import (
	"context"
	"fmt"
)

// ledgerDDL is idempotent. Triggers only fire when a source column changes,
// so the derived-column updates they issue never recurse.
const ledgerDDL = `
-- Receiving dock weighings
CREATE TABLE IF NOT EXISTS camaras_frigorifico (
	uuid TEXT PRIMARY KEY,
	id_procesa_app INTEGER,
	fecha_de_descarga TEXT,
	certificado TEXT,
	sku_tina TEXT,
	sku_talla TEXT,
	peso_bruto REAL,
	tanque TEXT,
	hora_de_marbete TEXT,
	hora_de_pesado TEXT,
	fda TEXT,
	lote_fda TEXT,
	lote_sap TEXT,
	peso_neto REAL,
	tara REAL,
	observaciones TEXT,
	fecha_hora_guardado TEXT NOT NULL,
	estado INTEGER NOT NULL DEFAULT 0,
	empleado TEXT
);

-- Remision hierarchy
CREATE TABLE IF NOT EXISTS remisiones_general (
	uuid TEXT PRIMARY KEY,
	folio TEXT,
	cliente TEXT,
	numero_sello TEXT,
	placas_contenedor TEXT,
	factura TEXT,
	observaciones TEXT,
	fecha_produccion TEXT,
	numero_remision TEXT,
	empleado TEXT,
	borrado INTEGER NOT NULL DEFAULT 0,
	fecha_creacion TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS remisiones_cabecera (
	uuid TEXT PRIMARY KEY,
	id_remision_general TEXT REFERENCES remisiones_general(uuid),
	carga TEXT,
	cantidad_solicitada REAL,
	borrado INTEGER NOT NULL DEFAULT 0,
	fecha_creacion TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS remisiones_cuerpo (
	uuid TEXT PRIMARY KEY,
	id_remision TEXT REFERENCES remisiones_cabecera(uuid),
	sku_tina TEXT,
	sku_talla TEXT,
	tara REAL,
	peso_neto REAL,
	merma REAL,
	lote TEXT,
	tanque TEXT,
	peso_marbete REAL,
	peso_bascula REAL,
	peso_neto_devolucion REAL,
	peso_bruto_devolucion REAL,
	observaciones TEXT,
	is_msc INTEGER NOT NULL DEFAULT 0,
	is_sensorial INTEGER NOT NULL DEFAULT 0,
	borrado INTEGER NOT NULL DEFAULT 0,
	fecha_creacion TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS remisiones_retallados (
	uuid TEXT PRIMARY KEY,
	id_remision_general TEXT REFERENCES remisiones_general(uuid),
	sku_tina TEXT,
	sku_talla TEXT,
	lote TEXT,
	tanque TEXT,
	tara REAL,
	peso_bascula REAL,
	peso_neto REAL,
	peso_marbete REAL,
	merma REAL,
	observaciones TEXT,
	is_msc INTEGER NOT NULL DEFAULT 0,
	is_sensorial INTEGER NOT NULL DEFAULT 0,
	borrado INTEGER NOT NULL DEFAULT 0,
	fecha_creacion TEXT NOT NULL
);

-- Pending mutations of receiving records; append-only
CREATE TABLE IF NOT EXISTS cola_sincronizacion (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tabla TEXT NOT NULL,
	id_registro TEXT NOT NULL,
	tipo_operacion TEXT NOT NULL CHECK (tipo_operacion IN ('INSERT', 'UPDATE', 'DELETE')),
	procesado INTEGER NOT NULL DEFAULT 0,
	fecha_creacion TEXT NOT NULL,
	fecha_procesado TEXT
);

-- Static catalogs, replaced wholesale on import
CREATE TABLE IF NOT EXISTS catalogo_de_tina (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sku TEXT NOT NULL,
	tara REAL NOT NULL,
	fecha_hora_guardado TEXT
);

CREATE TABLE IF NOT EXISTS catalogo_de_talla (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sku TEXT NOT NULL,
	descripcion TEXT,
	especie TEXT,
	talla TEXT,
	fecha_hora_guardado TEXT
);

CREATE TABLE IF NOT EXISTS catalogo_de_barcos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	inicial TEXT,
	descripcion TEXT,
	fecha_hora_guardado TEXT
);

-- Indexes for day-scoped and active-row queries
CREATE INDEX IF NOT EXISTS idx_camaras_guardado ON camaras_frigorifico(fecha_hora_guardado);
CREATE INDEX IF NOT EXISTS idx_general_creacion ON remisiones_general(fecha_creacion, borrado);
CREATE INDEX IF NOT EXISTS idx_cabecera_general ON remisiones_cabecera(id_remision_general, carga, cantidad_solicitada);
CREATE INDEX IF NOT EXISTS idx_cuerpo_remision ON remisiones_cuerpo(id_remision, borrado);
CREATE INDEX IF NOT EXISTS idx_cuerpo_creacion ON remisiones_cuerpo(fecha_creacion);
CREATE INDEX IF NOT EXISTS idx_retallados_general ON remisiones_retallados(id_remision_general, borrado);
CREATE INDEX IF NOT EXISTS idx_cola_pendiente ON cola_sincronizacion(procesado, id);
CREATE INDEX IF NOT EXISTS idx_catalogo_tina_sku ON catalogo_de_tina(sku);
CREATE INDEX IF NOT EXISTS idx_catalogo_talla_sku ON catalogo_de_talla(sku);

-- Derived columns: peso_neto = peso_bascula - tara, merma = peso_marbete - peso_neto
CREATE TRIGGER IF NOT EXISTS trg_cuerpo_derivados_insert
AFTER INSERT ON remisiones_cuerpo
BEGIN
	UPDATE remisiones_cuerpo
	SET peso_neto = NEW.peso_bascula - NEW.tara,
	    merma = NEW.peso_marbete - (NEW.peso_bascula - NEW.tara)
	WHERE uuid = NEW.uuid;
END;

CREATE TRIGGER IF NOT EXISTS trg_cuerpo_neto_update
AFTER UPDATE OF peso_bascula, tara ON remisiones_cuerpo
BEGIN
	UPDATE remisiones_cuerpo
	SET peso_neto = NEW.peso_bascula - NEW.tara
	WHERE uuid = NEW.uuid;
END;

CREATE TRIGGER IF NOT EXISTS trg_cuerpo_merma_update
AFTER UPDATE OF peso_marbete, peso_neto ON remisiones_cuerpo
BEGIN
	UPDATE remisiones_cuerpo
	SET merma = NEW.peso_marbete - NEW.peso_neto
	WHERE uuid = NEW.uuid;
END;

CREATE TRIGGER IF NOT EXISTS trg_retallados_derivados_insert
AFTER INSERT ON remisiones_retallados
BEGIN
	UPDATE remisiones_retallados
	SET peso_neto = NEW.peso_bascula - NEW.tara,
	    merma = NEW.peso_marbete - (NEW.peso_bascula - NEW.tara)
	WHERE uuid = NEW.uuid;
END;

CREATE TRIGGER IF NOT EXISTS trg_retallados_neto_update
AFTER UPDATE OF peso_bascula, tara ON remisiones_retallados
BEGIN
	UPDATE remisiones_retallados
	SET peso_neto = NEW.peso_bascula - NEW.tara
	WHERE uuid = NEW.uuid;
END;

CREATE TRIGGER IF NOT EXISTS trg_retallados_merma_update
AFTER UPDATE OF peso_marbete, peso_neto ON remisiones_retallados
BEGIN
	UPDATE remisiones_retallados
	SET merma = NEW.peso_marbete - NEW.peso_neto
	WHERE uuid = NEW.uuid;
END;
`

// EnsureSchema creates all tables, indexes and triggers that do not exist.
//
// It is idempotent and safe to call on every process start.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
