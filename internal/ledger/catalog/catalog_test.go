package catalog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/schema"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ledger, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	if err := ledger.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	return New(ledger)
}

func TestImport_ReplacesTareCatalog(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	n, err := s.Import(ctx, KindTare, strings.NewReader(`[{"sku":"T-01","tara":"42"},{"sku":"T-02","tara":55.5}]`))
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Import() = %d rows, want 2", n)
	}

	tare, found, err := s.TareFor(ctx, "T-02")
	if err != nil || !found || tare != 55.5 {
		t.Errorf("TareFor(T-02) = %v, %v, %v; want 55.5, true, nil", tare, found, err)
	}

	if _, err := s.Import(ctx, KindTare, strings.NewReader(`[{"sku":"T-03","tara":10}]`)); err != nil {
		t.Fatalf("second Import() failed: %v", err)
	}
	if _, found, _ := s.TareFor(ctx, "T-01"); found {
		t.Error("old entry survived the replace")
	}
	if count, _ := s.Count(ctx, KindTare); count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestImport_MalformedKeepsCatalog(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, err := s.Import(ctx, KindTare, strings.NewReader(`[{"sku":"T-01","tara":42}]`)); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing sku", `[{"tara":1}]`},
		{"missing tara", `[{"sku":"T-09"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Import(ctx, KindTare, strings.NewReader(tt.doc))
			if !schema.IsValidation(err) {
				t.Errorf("Import() = %v, want validation error", err)
			}
		})
	}

	if _, found, _ := s.TareFor(ctx, "T-01"); !found {
		t.Error("failed import removed the existing catalog")
	}
}

func TestSizeDescription(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	doc := `[
		{"sku":"P100","descripcion":"ignored","especie":"ATUN","talla":"40-60"},
		{"sku":"B200","descripcion":"BARRIGA","especie":"","talla":""}
	]`
	if _, err := s.Import(ctx, KindSize, strings.NewReader(doc)); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	tests := []struct {
		sku  string
		want string
	}{
		{"P100", "ATUN 40-60"},
		{"B200", "BARRIGA"},
		{"X999", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := s.SizeDescription(ctx, tt.sku)
		if err != nil {
			t.Fatalf("SizeDescription(%q) failed: %v", tt.sku, err)
		}
		if got != tt.want {
			t.Errorf("SizeDescription(%q) = %q, want %q", tt.sku, got, tt.want)
		}
	}
}

func TestShipName(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, err := Import(ctx, s.ledger, KindShip, strings.NewReader(`[{"inicial":"M","descripcion":"MARIA I"}]`)); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	name, found, err := s.ShipName(ctx, "M")
	if err != nil || !found || name != "MARIA I" {
		t.Errorf("ShipName(M) = %q, %v, %v", name, found, err)
	}
	if _, found, _ := s.ShipName(ctx, "Z"); found {
		t.Error("ShipName(Z) found an unknown ship")
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"tina", KindTare, false},
		{"catalogo_de_talla", KindSize, false},
		{" BARCOS ", KindShip, false},
		{"peces", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v", tt.in, got, err)
		}
	}
}
