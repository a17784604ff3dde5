package db

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/procesa/pesaje/internal/ledger/schema"
	"github.com/procesa/pesaje/internal/sitetime"
	"github.com/procesa/pesaje/internal/split"
)

// testNow is 10:30 on 2025-03-14 at the site.
func testNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(sitetime.DefaultZone)
	if err != nil {
		t.Fatalf("LoadLocation() failed: %v", err)
	}
	return time.Date(2025, 3, 14, 10, 30, 0, 0, loc)
}

// setupTestDB opens a fresh ledger with a fixed clock and the schema applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := DefaultConfig()
	cfg.Clock = sitetime.Fixed(testNow(t))

	db, err := OpenWithConfig(path, cfg)
	if err != nil {
		t.Fatalf("OpenWithConfig() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	return db
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

// newLoad creates today's general document and one load.
func newLoad(t *testing.T, db *DB, carga string, qty float64) (generalID, loadID string) {
	t.Helper()
	ctx := context.Background()
	generalID, err := db.UpsertGeneralDocument(ctx, db.Today(), nil)
	if err != nil {
		t.Fatalf("UpsertGeneralDocument() failed: %v", err)
	}
	loadID, err = db.UpsertLoadHeader(ctx, db.Today(), generalID, carga, qty)
	if err != nil {
		t.Fatalf("UpsertLoadHeader() failed: %v", err)
	}
	return generalID, loadID
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("Open(\"\") should fail")
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema() failed: %v", err)
	}

	tables := []string{
		"camaras_frigorifico", "remisiones_general", "remisiones_cabecera",
		"remisiones_cuerpo", "remisiones_retallados", "cola_sincronizacion",
		"catalogo_de_tina", "catalogo_de_talla", "catalogo_de_barcos",
	}
	for _, table := range tables {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestDetailLine_DerivedColumns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, loadID := newLoad(t, db, "1", 500)

	id, err := db.InsertDetailLine(ctx, loadID, schema.DetailLine{
		ContainerSKU: str("T-01"),
		Tare:         f64(20),
		GrossWeight:  f64(120),
		TagWeight:    f64(105),
	})
	if err != nil {
		t.Fatalf("InsertDetailLine() failed: %v", err)
	}

	line, err := db.GetDetailLine(ctx, id)
	if err != nil {
		t.Fatalf("GetDetailLine() failed: %v", err)
	}
	if line.NetWeight == nil || !approx(*line.NetWeight, 100) {
		t.Errorf("peso_neto = %v, want 100", line.NetWeight)
	}
	if line.Shrink == nil || !approx(*line.Shrink, 5) {
		t.Errorf("merma = %v, want 5", line.Shrink)
	}

	if err := db.SetField(ctx, schema.TableDetail, id, "peso_bascula", "130"); err != nil {
		t.Fatalf("SetField(peso_bascula) failed: %v", err)
	}
	line, _ = db.GetDetailLine(ctx, id)
	if !approx(*line.NetWeight, 110) || !approx(*line.Shrink, -5) {
		t.Errorf("after peso_bascula: neto=%v merma=%v, want 110 and -5", *line.NetWeight, *line.Shrink)
	}

	if err := db.SetField(ctx, schema.TableDetail, id, "peso_marbete", "112,5"); err != nil {
		t.Fatalf("SetField(peso_marbete) failed: %v", err)
	}
	line, _ = db.GetDetailLine(ctx, id)
	if !approx(*line.Shrink, 2.5) {
		t.Errorf("after peso_marbete: merma=%v, want 2.5", *line.Shrink)
	}

	if err := db.SetField(ctx, schema.TableDetail, id, "tara", "30"); err != nil {
		t.Fatalf("SetField(tara) failed: %v", err)
	}
	line, _ = db.GetDetailLine(ctx, id)
	if !approx(*line.NetWeight, 100) || !approx(*line.Shrink, 12.5) {
		t.Errorf("after tara: neto=%v merma=%v, want 100 and 12.5", *line.NetWeight, *line.Shrink)
	}
}

func TestRegradeLine_DerivedColumns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	generalID, _ := newLoad(t, db, "1", 100)

	id, err := db.InsertRegradeLine(ctx, generalID, schema.RegradeLine{
		Tare:        f64(10),
		GrossWeight: f64(60),
		TagWeight:   f64(48),
	})
	if err != nil {
		t.Fatalf("InsertRegradeLine() failed: %v", err)
	}
	r, err := db.GetRegradeLine(ctx, id)
	if err != nil {
		t.Fatalf("GetRegradeLine() failed: %v", err)
	}
	if !approx(*r.NetWeight, 50) || !approx(*r.Shrink, -2) {
		t.Errorf("neto=%v merma=%v, want 50 and -2", *r.NetWeight, *r.Shrink)
	}

	lines, err := db.RegradeLinesForGeneral(ctx, generalID)
	if err != nil {
		t.Fatalf("RegradeLinesForGeneral() failed: %v", err)
	}
	if len(lines) != 1 || lines[0].ID != id {
		t.Errorf("RegradeLinesForGeneral() = %+v, want one line %s", lines, id)
	}
}

func TestUpsertGeneralDocument_MergesNonEmpty(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := db.Today()

	first, err := db.UpsertGeneralDocument(ctx, day, map[string]string{"cliente": "ACME", "folio": "F-1"})
	if err != nil {
		t.Fatalf("UpsertGeneralDocument() failed: %v", err)
	}
	second, err := db.UpsertGeneralDocument(ctx, day, map[string]string{"cliente": "", "factura": "FX-9"})
	if err != nil {
		t.Fatalf("UpsertGeneralDocument() failed: %v", err)
	}
	if first != second {
		t.Fatalf("same day returned %s and %s, want one document", first, second)
	}

	g, err := db.GetGeneralDocument(ctx, first)
	if err != nil {
		t.Fatalf("GetGeneralDocument() failed: %v", err)
	}
	if g.Client == nil || *g.Client != "ACME" {
		t.Errorf("cliente = %v, want ACME kept", g.Client)
	}
	if g.Invoice == nil || *g.Invoice != "FX-9" {
		t.Errorf("factura = %v, want FX-9", g.Invoice)
	}
	if g.CreatedAt != "2025-03-14 10:30:00" {
		t.Errorf("fecha_creacion = %q, want site-local stamp", g.CreatedAt)
	}

	other, err := db.UpsertGeneralDocument(ctx, "2025-03-13", nil)
	if err != nil {
		t.Fatalf("UpsertGeneralDocument(other day) failed: %v", err)
	}
	if other == first {
		t.Error("another day reused today's document")
	}
}

func TestUpsertGeneralDocument_RejectsUnknownField(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.UpsertGeneralDocument(context.Background(), db.Today(), map[string]string{"uuid": "x"})
	if !schema.IsValidation(err) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestUpsertLoadHeader_KeyedByCargaAndQuantity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	generalID, loadID := newLoad(t, db, "3", 1700)

	again, err := db.UpsertLoadHeader(ctx, db.Today(), generalID, "3", 1700)
	if err != nil {
		t.Fatalf("UpsertLoadHeader() failed: %v", err)
	}
	if again != loadID {
		t.Errorf("same carga and quantity returned %s, want %s", again, loadID)
	}

	other, err := db.UpsertLoadHeader(ctx, db.Today(), generalID, "3", 1800)
	if err != nil {
		t.Fatalf("UpsertLoadHeader() failed: %v", err)
	}
	if other == loadID {
		t.Error("different quantity reused the existing load")
	}

	if _, err := db.UpsertLoadHeader(ctx, db.Today(), generalID, " ", 10); !schema.IsValidation(err) {
		t.Errorf("empty carga error = %v, want validation error", err)
	}
}

func TestSoftDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, loadID := newLoad(t, db, "1", 100)

	id, err := db.InsertDetailLine(ctx, loadID, schema.DetailLine{Tare: f64(1), GrossWeight: f64(11), TagWeight: f64(10)})
	if err != nil {
		t.Fatalf("InsertDetailLine() failed: %v", err)
	}

	if err := db.SoftDelete(ctx, schema.TableDetail, id); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	if err := db.SoftDelete(ctx, schema.TableDetail, id); err != nil {
		t.Errorf("second SoftDelete() = %v, want no-op", err)
	}

	line, err := db.GetDetailLine(ctx, id)
	if err != nil {
		t.Fatalf("GetDetailLine() after delete failed: %v", err)
	}
	if line.Deleted != 1 {
		t.Errorf("borrado = %d, want 1", line.Deleted)
	}

	active, err := db.ActiveDetailLines(ctx, loadID)
	if err != nil {
		t.Fatalf("ActiveDetailLines() failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("ActiveDetailLines() returned %d lines, want 0", len(active))
	}

	exists, deleted, err := db.RowState(ctx, schema.TableDetail, id)
	if err != nil || !exists || !deleted {
		t.Errorf("RowState() = %v, %v, %v; want true, true, nil", exists, deleted, err)
	}

	if err := db.SoftDelete(ctx, schema.TableDetail, "missing"); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("SoftDelete(missing) = %v, want ErrNotFound", err)
	}
	if err := db.SoftDelete(ctx, schema.TableQueue, id); !schema.IsValidation(err) {
		t.Errorf("SoftDelete(queue) = %v, want validation error", err)
	}
}

func TestSetField_Rules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, loadID := newLoad(t, db, "1", 100)
	id, err := db.InsertDetailLine(ctx, loadID, schema.DetailLine{Tare: f64(1), GrossWeight: f64(11), TagWeight: f64(10)})
	if err != nil {
		t.Fatalf("InsertDetailLine() failed: %v", err)
	}

	tests := []struct {
		name  string
		field string
		value any
		check func(error) bool
	}{
		{"derived column", "peso_neto", "5", schema.IsValidation},
		{"unknown column", "uuid", "x", schema.IsValidation},
		{"bad number", "tara", "abc", schema.IsValidation},
		{"not a number", "tara", "NaN", schema.IsValidation},
		{"infinite gross", "peso_bascula", "Inf", schema.IsValidation},
		{"text ok", "observaciones", "ok", func(err error) bool { return err == nil }},
		{"flag ok", "is_msc", "si", func(err error) bool { return err == nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.SetField(ctx, schema.TableDetail, id, tt.field, tt.value)
			if !tt.check(err) {
				t.Errorf("SetField(%s) = %v", tt.field, err)
			}
		})
	}

	line, _ := db.GetDetailLine(ctx, id)
	if line.MSC != 1 {
		t.Errorf("is_msc = %d, want 1", line.MSC)
	}
	if line.Tare == nil || !approx(*line.Tare, 1) || line.NetWeight == nil || !approx(*line.NetWeight, 10) || line.Shrink == nil {
		t.Errorf("rejected edits changed weights: tara=%v neto=%v merma=%v", line.Tare, line.NetWeight, line.Shrink)
	}

	if err := db.SoftDelete(ctx, schema.TableDetail, id); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	if err := db.SetField(ctx, schema.TableDetail, id, "observaciones", "late"); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("SetField(deleted) = %v, want ErrNotFound", err)
	}
}

func TestSaveReceivingRecord(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec, err := db.SaveReceivingRecord(ctx, ReceivingInput{
		BasicLot:     "abc123",
		ContainerSKU: "T1",
		Tank:         "4",
		GrossWeight:  1000,
		Tare:         50,
	})
	if err != nil {
		t.Fatalf("SaveReceivingRecord() failed: %v", err)
	}
	if rec.RemoteID != nil {
		t.Errorf("id_procesa_app = %v, want nil until confirmed", *rec.RemoteID)
	}
	if !approx(*rec.NetWeight, 950) {
		t.Errorf("peso_neto = %v, want 950", *rec.NetWeight)
	}
	if *rec.FDA != "L001" || *rec.LotFDA != "ABC123L001" || *rec.LotSAP != "ABC123L001-T1" {
		t.Errorf("labels = %s %s %s", *rec.FDA, *rec.LotFDA, *rec.LotSAP)
	}
	if rec.SavedAt != "2025-03-14 10:30:00" {
		t.Errorf("fecha_hora_guardado = %q", rec.SavedAt)
	}

	second, err := db.SaveReceivingRecord(ctx, ReceivingInput{BasicLot: "ABC123", ContainerSKU: "T2", GrossWeight: 30000})
	if err != nil {
		t.Fatalf("SaveReceivingRecord() failed: %v", err)
	}
	if *second.FDA != "L002" {
		t.Errorf("cumulative 30950 kg got %s, want L002", *second.FDA)
	}

	manual, err := db.SaveReceivingRecord(ctx, ReceivingInput{BasicLot: "XYZ", FDA: "L009", ContainerSKU: "T3", GrossWeight: 10})
	if err != nil {
		t.Fatalf("SaveReceivingRecord() failed: %v", err)
	}
	if *manual.FDA != "L009" || *manual.LotFDA != "XYZL009" {
		t.Errorf("non-basic lot labels = %s %s, want supplied code", *manual.FDA, *manual.LotFDA)
	}

	pending, err := db.PendingEntries(ctx)
	if err != nil {
		t.Fatalf("PendingEntries() failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("PendingEntries() = %d entries, want 3", len(pending))
	}
	if pending[0].RecordID != rec.ID || pending[0].Operation != schema.OpInsert || pending[0].Table != schema.TableReceiving {
		t.Errorf("first entry = %+v, want INSERT of %s", pending[0], rec.ID)
	}

	if _, err := db.SaveReceivingRecord(ctx, ReceivingInput{ContainerSKU: "T1"}); !schema.IsValidation(err) {
		t.Errorf("missing fields error = %v, want validation error", err)
	}
}

func TestReceivingRecord_EditAndDeleteEnqueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec, err := db.SaveReceivingRecord(ctx, ReceivingInput{BasicLot: "ABC123", ContainerSKU: "T1", GrossWeight: 100, Tare: 10})
	if err != nil {
		t.Fatalf("SaveReceivingRecord() failed: %v", err)
	}

	if err := db.SetField(ctx, schema.TableReceiving, rec.ID, "tara", "15"); err != nil {
		t.Fatalf("SetField(tara) failed: %v", err)
	}
	got, _ := db.GetReceivingRecord(ctx, rec.ID)
	if !approx(*got.NetWeight, 85) {
		t.Errorf("peso_neto = %v, want 85", *got.NetWeight)
	}

	if err := db.SoftDelete(ctx, schema.TableReceiving, rec.ID); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	got, _ = db.GetReceivingRecord(ctx, rec.ID)
	if !got.Deleted() {
		t.Error("record not marked deleted")
	}

	pending, err := db.PendingEntries(ctx)
	if err != nil {
		t.Fatalf("PendingEntries() failed: %v", err)
	}
	want := []schema.Operation{schema.OpInsert, schema.OpUpdate, schema.OpDelete}
	if len(pending) != len(want) {
		t.Fatalf("PendingEntries() = %d entries, want %d", len(pending), len(want))
	}
	for i, op := range want {
		if pending[i].Operation != op {
			t.Errorf("entry %d = %s, want %s", i, pending[i].Operation, op)
		}
	}

	recent, err := db.RecentReceivingRecords(ctx, 0)
	if err != nil {
		t.Fatalf("RecentReceivingRecords() failed: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("RecentReceivingRecords() = %d, want deleted record hidden", len(recent))
	}
}

func TestQueue_MarkProcessed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.Enqueue(ctx, schema.TableReceiving, "rec-1", schema.OpInsert)
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if _, err := db.Enqueue(ctx, schema.TableReceiving, "rec-1", "MERGE"); !schema.IsValidation(err) {
		t.Errorf("Enqueue(MERGE) = %v, want validation error", err)
	}

	if err := db.MarkProcessed(ctx, id); err != nil {
		t.Fatalf("MarkProcessed() failed: %v", err)
	}
	if err := db.MarkProcessed(ctx, id); err != nil {
		t.Errorf("second MarkProcessed() = %v, want no-op", err)
	}

	entries, err := db.QueueEntries(ctx, 10)
	if err != nil {
		t.Fatalf("QueueEntries() failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].Processed || entries[0].ProcessedAt == nil {
		t.Fatalf("QueueEntries() = %+v, want one processed entry", entries)
	}

	stats, err := db.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats() failed: %v", err)
	}
	if stats.Pending != 0 || stats.Processed != 1 {
		t.Errorf("QueueStats() = %+v, want 0 pending 1 processed", stats)
	}

	if err := db.UnmarkProcessed(ctx, id); err != nil {
		t.Fatalf("UnmarkProcessed() failed: %v", err)
	}
	pending, _ := db.PendingEntries(ctx)
	if len(pending) != 1 || pending[0].ProcessedAt != nil {
		t.Errorf("PendingEntries() after unmark = %+v", pending)
	}

	if err := db.MarkProcessed(ctx, 999); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("MarkProcessed(999) = %v, want ErrNotFound", err)
	}
}

func TestSetRemoteID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rec, err := db.SaveReceivingRecord(ctx, ReceivingInput{BasicLot: "ABC123", ContainerSKU: "T1", GrossWeight: 100})
	if err != nil {
		t.Fatalf("SaveReceivingRecord() failed: %v", err)
	}

	if err := db.SetRemoteID(ctx, rec.ID, 0); !schema.IsValidation(err) {
		t.Errorf("SetRemoteID(0) = %v, want validation error", err)
	}
	if err := db.SetRemoteID(ctx, rec.ID, 42); err != nil {
		t.Fatalf("SetRemoteID() failed: %v", err)
	}
	got, _ := db.GetReceivingRecord(ctx, rec.ID)
	if got.RemoteID == nil || *got.RemoteID != 42 {
		t.Errorf("id_procesa_app = %v, want 42", got.RemoteID)
	}
	if err := db.SetRemoteID(ctx, "missing", 7); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("SetRemoteID(missing) = %v, want ErrNotFound", err)
	}
}

func TestCollectDay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	snap, err := db.CollectToday(ctx)
	if err != nil {
		t.Fatalf("CollectToday() failed: %v", err)
	}
	if !snap.Empty() {
		t.Fatalf("empty ledger snapshot has %d rows", snap.Len())
	}

	generalID, loadID := newLoad(t, db, "1", 100)
	keep, _ := db.InsertDetailLine(ctx, loadID, schema.DetailLine{Tare: f64(1), GrossWeight: f64(11), TagWeight: f64(10)})
	drop, _ := db.InsertDetailLine(ctx, loadID, schema.DetailLine{Tare: f64(1), GrossWeight: f64(21), TagWeight: f64(20)})
	if err := db.SoftDelete(ctx, schema.TableDetail, drop); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	if _, err := db.InsertRegradeLine(ctx, generalID, schema.RegradeLine{Tare: f64(1), GrossWeight: f64(5), TagWeight: f64(4)}); err != nil {
		t.Fatalf("InsertRegradeLine() failed: %v", err)
	}
	if _, err := db.SaveReceivingRecord(ctx, ReceivingInput{BasicLot: "ABC123", ContainerSKU: "T1", GrossWeight: 100}); err != nil {
		t.Fatalf("SaveReceivingRecord() failed: %v", err)
	}
	if _, err := db.UpsertGeneralDocument(ctx, "2025-03-13", map[string]string{"cliente": "AYER"}); err != nil {
		t.Fatalf("UpsertGeneralDocument() failed: %v", err)
	}

	snap, err = db.CollectToday(ctx)
	if err != nil {
		t.Fatalf("CollectToday() failed: %v", err)
	}
	want := map[schema.Table]int{
		schema.TableReceiving: 1,
		schema.TableGeneral:   1,
		schema.TableLoad:      1,
		schema.TableDetail:    1,
		schema.TableRegrade:   1,
	}
	for table, n := range snap.Counts() {
		if n != want[table] {
			t.Errorf("%s: %d rows, want %d", table, n, want[table])
		}
	}
	if snap.Details[0].ID != keep {
		t.Errorf("detail = %s, want %s", snap.Details[0].ID, keep)
	}

	yesterday, err := db.CollectDay(ctx, "2025-03-13")
	if err != nil {
		t.Fatalf("CollectDay() failed: %v", err)
	}
	if len(yesterday.General) != 1 || yesterday.Len() != 1 {
		t.Errorf("yesterday snapshot = %v, want only its general document", yesterday.Counts())
	}
}

func TestLoadsForDay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, loadID := newLoad(t, db, "1", 100)
	if _, err := db.InsertDetailLine(ctx, loadID, schema.DetailLine{Tare: f64(1), GrossWeight: f64(11), TagWeight: f64(10)}); err != nil {
		t.Fatalf("InsertDetailLine() failed: %v", err)
	}

	loads, err := db.LoadsForDay(ctx, db.Today())
	if err != nil {
		t.Fatalf("LoadsForDay() failed: %v", err)
	}
	if len(loads) != 1 || len(loads[0].Lines) != 1 {
		t.Fatalf("LoadsForDay() = %+v, want one load with one line", loads)
	}
}

func TestLoadsInRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := db.Today()

	for _, day := range []sitetime.Day{today.AddDays(-10), today.AddDays(-1), today, today.AddDays(3)} {
		gid, err := db.UpsertGeneralDocument(ctx, day, nil)
		if err != nil {
			t.Fatalf("UpsertGeneralDocument(%s) failed: %v", day, err)
		}
		lid, err := db.UpsertLoadHeader(ctx, day, gid, "1", 100)
		if err != nil {
			t.Fatalf("UpsertLoadHeader(%s) failed: %v", day, err)
		}
		if _, err := db.InsertDetailLine(ctx, lid, schema.DetailLine{Tare: f64(1), GrossWeight: f64(11), TagWeight: f64(10)}); err != nil {
			t.Fatalf("InsertDetailLine() failed: %v", err)
		}
	}

	year, week, err := today.Week()
	if err != nil {
		t.Fatalf("Week() failed: %v", err)
	}
	from, to, err := sitetime.ISOWeek(year, week)
	if err != nil {
		t.Fatalf("ISOWeek() failed: %v", err)
	}
	loads, err := db.LoadsInRange(ctx, from, to)
	if err != nil {
		t.Fatalf("LoadsInRange() failed: %v", err)
	}
	if len(loads) != 2 {
		t.Fatalf("LoadsInRange(%s, %s) = %d loads, want 2", from, to, len(loads))
	}
	if !strings.HasPrefix(loads[0].CreatedAt, string(today.AddDays(-1))) || len(loads[1].Lines) != 1 {
		t.Errorf("loads = %+v, want yesterday first", loads)
	}

	if err := db.SoftDelete(ctx, schema.TableLoad, loads[0].ID); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	loads, _ = db.LoadsInRange(ctx, today.AddDays(-30), today.AddDays(30))
	if len(loads) != 3 {
		t.Errorf("after delete = %d loads, want 3", len(loads))
	}

	if _, err := db.LoadsInRange(ctx, today, today); !schema.IsValidation(err) {
		t.Errorf("LoadsInRange(empty) = %v, want validation error", err)
	}
}

func TestLoadForDay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, loadID := newLoad(t, db, "2", 250)
	newLoad(t, db, "2", 300)
	if _, err := db.InsertDetailLine(ctx, loadID, schema.DetailLine{Tare: f64(1), GrossWeight: f64(11), TagWeight: f64(10)}); err != nil {
		t.Fatalf("InsertDetailLine() failed: %v", err)
	}

	load, err := db.LoadForDay(ctx, db.Today(), " 2 ", 250)
	if err != nil {
		t.Fatalf("LoadForDay() failed: %v", err)
	}
	if load.ID != loadID || len(load.Lines) != 1 {
		t.Errorf("LoadForDay() = %+v, want load %s with one line", load, loadID)
	}

	if _, err := db.LoadForDay(ctx, db.Today(), "2", 999); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("LoadForDay(missing) = %v, want ErrNotFound", err)
	}
	if _, err := db.LoadForDay(ctx, db.Today().AddDays(-1), "2", 250); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("LoadForDay(yesterday) = %v, want ErrNotFound", err)
	}
}

func TestNetDelivered(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	generalID, loadA := newLoad(t, db, "1", 100)
	_, loadB := newLoad(t, db, "2", 100)

	var ids []string
	for _, l := range []struct {
		load  string
		gross float64
	}{{loadA, 51}, {loadA, 41}, {loadB, 21}} {
		id, err := db.InsertDetailLine(ctx, l.load, schema.DetailLine{Tare: f64(1), GrossWeight: f64(l.gross), TagWeight: f64(l.gross)})
		if err != nil {
			t.Fatalf("InsertDetailLine() failed: %v", err)
		}
		ids = append(ids, id)
	}

	total, err := db.NetDelivered(ctx, generalID)
	if err != nil {
		t.Fatalf("NetDelivered() failed: %v", err)
	}
	if !approx(total, 110) {
		t.Errorf("NetDelivered() = %v, want 110", total)
	}

	if err := db.SoftDelete(ctx, schema.TableDetail, ids[1]); err != nil {
		t.Fatalf("SoftDelete(line) failed: %v", err)
	}
	if err := db.SoftDelete(ctx, schema.TableLoad, loadB); err != nil {
		t.Fatalf("SoftDelete(load) failed: %v", err)
	}
	if total, _ := db.NetDelivered(ctx, generalID); !approx(total, 50) {
		t.Errorf("NetDelivered() after deletes = %v, want 50", total)
	}
	if total, err := db.NetDelivered(ctx, "unknown"); err != nil || total != 0 {
		t.Errorf("NetDelivered(unknown) = %v, %v", total, err)
	}
}

func weighing(carga string, qty, gross, tare, tag float64) WeighingInput {
	return WeighingInput{
		LoadNumber:   carga,
		RequestedQty: qty,
		ContainerSKU: "T-01",
		SizeSKU:      "S-10",
		Lot:          "MXA001",
		Tank:         "2",
		Tare:         tare,
		GrossWeight:  gross,
		TagWeight:    tag,
		Header:       map[string]string{"numero_remision": "R-77", "empleado": "E-5"},
	}
}

func TestSaveWeighing_Plain(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	res, err := db.SaveWeighing(ctx, weighing("1", 100, 70, 10, 62))
	if err != nil {
		t.Fatalf("SaveWeighing() failed: %v", err)
	}
	if len(res.LineIDs) != 1 || res.Split != nil {
		t.Fatalf("SaveWeighing() = %+v, want one line and no split", res)
	}

	line, _ := db.GetDetailLine(ctx, res.LineIDs[0])
	if !approx(*line.NetWeight, 60) || !approx(*line.Shrink, 2) {
		t.Errorf("neto=%v merma=%v, want 60 and 2", *line.NetWeight, *line.Shrink)
	}
	if line.MSC != 1 {
		t.Error("lot starting with M should be MSC")
	}

	g, _ := db.GetGeneralDocument(ctx, res.GeneralID)
	if g.ShipmentNumber == nil || *g.ShipmentNumber != "R-77" {
		t.Errorf("numero_remision = %v, want R-77", g.ShipmentNumber)
	}

	again, err := db.SaveWeighing(ctx, weighing("1", 100, 50, 10, 40))
	if err != nil {
		t.Fatalf("SaveWeighing() failed: %v", err)
	}
	if again.GeneralID != res.GeneralID || again.LoadID != res.LoadID {
		t.Error("second container should land in the same document and load")
	}
}

func TestSaveWeighing_Division(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.SaveWeighing(ctx, weighing("1", 100, 70, 10, 62))
	if err != nil {
		t.Fatalf("SaveWeighing() failed: %v", err)
	}

	in := weighing("1", 100, 60, 10, 52)
	in.Shrink = 2
	in.Division = &Division{NewLoadNumber: "2", NewRequestedQty: 10, NewContainer: "T-09"}
	res, err := db.SaveWeighing(ctx, in)
	if err != nil {
		t.Fatalf("SaveWeighing(division) failed: %v", err)
	}
	if res.Split == nil || !approx(res.Split.Surplus, 10) || !approx(res.Split.Remainder, 40) {
		t.Fatalf("split = %+v, want surplus 10 remainder 40", res.Split)
	}
	if len(res.LineIDs) != 2 {
		t.Fatalf("LineIDs = %v, want two lines", res.LineIDs)
	}

	kept, _ := db.GetDetailLine(ctx, res.LineIDs[0])
	if *kept.LoadID != first.LoadID {
		t.Errorf("kept line in load %s, want %s", *kept.LoadID, first.LoadID)
	}
	if !approx(*kept.GrossWeight, 50) || !approx(*kept.NetWeight, 40) || math.Abs(*kept.Shrink) > 1e-9 {
		t.Errorf("kept: bruto=%v neto=%v merma=%v, want 50 40 0", *kept.GrossWeight, *kept.NetWeight, *kept.Shrink)
	}

	moved, _ := db.GetDetailLine(ctx, res.LineIDs[1])
	if *moved.LoadID == first.LoadID {
		t.Error("moved line should be in the division load")
	}
	if !approx(*moved.GrossWeight, 20) || !approx(*moved.NetWeight, 10) || !approx(*moved.Shrink, 2) {
		t.Errorf("moved: bruto=%v neto=%v merma=%v, want 20 10 2", *moved.GrossWeight, *moved.NetWeight, *moved.Shrink)
	}
	if moved.Notes == nil || *moved.Notes != "SE DIVIDE T-09" {
		t.Errorf("observaciones = %v, want SE DIVIDE T-09", moved.Notes)
	}

	lines, _ := db.ActiveDetailLines(ctx, first.LoadID)
	var total float64
	for _, l := range lines {
		total += *l.NetWeight
	}
	if !approx(total, 100) {
		t.Errorf("load net total = %v, want the requested 100", total)
	}
}

func TestSaveWeighing_DivisionErrorsRollBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	in := weighing("1", 500, 60, 10, 52)
	in.Division = &Division{NewLoadNumber: "2", NewRequestedQty: 10, NewContainer: "T-09"}
	if _, err := db.SaveWeighing(ctx, in); !errors.Is(err, split.ErrInsufficientQuantity) {
		t.Fatalf("SaveWeighing() = %v, want ErrInsufficientQuantity", err)
	}

	snap, err := db.CollectToday(ctx)
	if err != nil {
		t.Fatalf("CollectToday() failed: %v", err)
	}
	if !snap.Empty() {
		t.Errorf("failed division left %v rows", snap.Counts())
	}
}

func TestSaveWeighing_DivisionSurplusCoversContainer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.SaveWeighing(ctx, weighing("1", 50, 70, 10, 62)); err != nil {
		t.Fatalf("SaveWeighing() failed: %v", err)
	}

	in := weighing("1", 50, 60, 10, 52)
	in.Division = &Division{NewLoadNumber: "2", NewRequestedQty: 10, NewContainer: "T-09"}
	_, err := db.SaveWeighing(ctx, in)
	if !errors.Is(err, split.ErrSplitNotPossible) || !schema.IsValidation(err) {
		t.Fatalf("SaveWeighing() = %v, want ErrSplitNotPossible as validation error", err)
	}

	snap, err := db.CollectToday(ctx)
	if err != nil {
		t.Fatalf("CollectToday() failed: %v", err)
	}
	if n := snap.Counts()[schema.TableDetail]; n != 1 {
		t.Errorf("detail lines = %d, want only the first container", n)
	}
}

func TestWeighingInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WeighingInput)
	}{
		{"missing lot", func(in *WeighingInput) { in.Lot = "" }},
		{"non numeric carga", func(in *WeighingInput) { in.LoadNumber = "uno" }},
		{"zero gross", func(in *WeighingInput) { in.GrossWeight = 0 }},
		{"negative tare", func(in *WeighingInput) { in.Tare = -1 }},
		{"bad division", func(in *WeighingInput) { in.Division = &Division{NewLoadNumber: "x", NewRequestedQty: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := weighing("1", 100, 70, 10, 62)
			tt.mutate(&in)
			if err := in.Validate(); !schema.IsValidation(err) {
				t.Errorf("Validate() = %v, want validation error", err)
			}
		})
	}

	ok := weighing("1", 100, 70, 10, 62)
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
