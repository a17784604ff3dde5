package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	gosync "sync"
	"testing"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/schema"
)

// setupTestDB creates a temporary ledger for testing.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	ledger, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	if err := ledger.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return ledger
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// fakeRemote records calls and fails on demand.
type fakeRemote struct {
	mu       gosync.Mutex
	calls    []string
	nextID   int64
	failFor  map[string]error // record uuid → error for Insert/Update
	snapErr  error
	snapshot *schema.Snapshot
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{nextID: 100, failFor: map[string]error{}}
}

func (f *fakeRemote) PushSnapshot(ctx context.Context, snap *schema.Snapshot) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "SNAPSHOT")
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	f.snapshot = snap
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeRemote) InsertRecord(ctx context.Context, rec *schema.ReceivingRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "INSERT "+rec.ID)
	if err := f.failFor[rec.ID]; err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeRemote) UpdateRecord(ctx context.Context, rec *schema.ReceivingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "UPDATE "+rec.ID)
	if rec.RemoteID == nil {
		return ErrNoRemoteID
	}
	return f.failFor[rec.ID]
}

func (f *fakeRemote) DeleteRecord(ctx context.Context, remoteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("DELETE %d", remoteID))
	return nil
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func saveRecord(t *testing.T, ledger *db.DB, sku string) *schema.ReceivingRecord {
	t.Helper()
	rec, err := ledger.SaveReceivingRecord(context.Background(), db.ReceivingInput{
		BasicLot:     "ABC123",
		ContainerSKU: sku,
		GrossWeight:  100,
		Tare:         10,
	})
	if err != nil {
		t.Fatalf("SaveReceivingRecord() failed: %v", err)
	}
	return rec
}

func TestRunPass_DrainsQueueInOrder(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	remote := newFakeRemote()

	rec := saveRecord(t, ledger, "T1")
	if err := ledger.SetField(ctx, schema.TableReceiving, rec.ID, "tanque", "7"); err != nil {
		t.Fatalf("SetField() failed: %v", err)
	}
	if err := ledger.SoftDelete(ctx, schema.TableReceiving, rec.ID); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}

	out := New(ledger, remote, quietLogger()).RunPass(ctx)
	if !out.OK() {
		t.Fatalf("RunPass() = %+v, want ok", out)
	}

	want := []string{"INSERT " + rec.ID, "UPDATE " + rec.ID, "DELETE 101"}
	calls := remote.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}

	got, _ := ledger.GetReceivingRecord(ctx, rec.ID)
	if got.RemoteID == nil || *got.RemoteID != 101 {
		t.Errorf("id_procesa_app = %v, want 101", got.RemoteID)
	}
	pending, _ := ledger.PendingEntries(ctx)
	if len(pending) != 0 {
		t.Errorf("%d entries still pending", len(pending))
	}
	if out.Snapshot.Sent {
		t.Error("snapshot with only a deleted record should not be sent")
	}
	if out.Message != "No hay datos para sincronizar" {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestRunPass_FailedInsertStaysPending(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	remote := newFakeRemote()

	bad := saveRecord(t, ledger, "T1")
	good := saveRecord(t, ledger, "T2")
	if err := ledger.SetField(ctx, schema.TableReceiving, bad.ID, "tara", "5"); err != nil {
		t.Fatalf("SetField() failed: %v", err)
	}
	remote.failFor[bad.ID] = fmt.Errorf("%w: \"0\"", ErrRemoteIdentifierInvalid)

	out := New(ledger, remote, quietLogger()).RunPass(ctx)
	if out.OK() {
		t.Fatal("RunPass() should report the failed record")
	}
	if !errors.Is(out.Err, ErrRemoteIdentifierInvalid) {
		t.Errorf("Err = %v, want ErrRemoteIdentifierInvalid", out.Err)
	}
	if out.Queue.Processed != 1 || out.Queue.Failed != 1 || out.Queue.Blocked != 1 {
		t.Errorf("queue report = %+v, want 1 processed 1 failed 1 blocked", out.Queue)
	}
	if !out.Snapshot.Sent {
		t.Error("record failures should not stop the snapshot push")
	}

	got, _ := ledger.GetReceivingRecord(ctx, bad.ID)
	if got.RemoteID != nil {
		t.Errorf("failed insert stored remote id %d", *got.RemoteID)
	}
	pending, _ := ledger.PendingEntries(ctx)
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want INSERT and UPDATE of the failed record", len(pending))
	}
	for _, e := range pending {
		if e.RecordID != bad.ID {
			t.Errorf("pending entry for %s, want only %s", e.RecordID, bad.ID)
		}
	}
	for _, c := range remote.Calls() {
		if c == "UPDATE "+bad.ID {
			t.Error("UPDATE was sent before its INSERT succeeded")
		}
	}

	delete(remote.failFor, bad.ID)
	out = New(ledger, remote, quietLogger()).RunPass(ctx)
	if !out.OK() {
		t.Fatalf("second RunPass() = %+v, want ok", out)
	}
	if g, _ := ledger.GetReceivingRecord(ctx, good.ID); g.RemoteID == nil {
		t.Error("good record lost its remote id")
	}
}

func TestRunPass_ChangeWithoutRemoteIDIsBlocked(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	remote := newFakeRemote()

	rec := saveRecord(t, ledger, "T1")
	pending, err := ledger.PendingEntries(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingEntries() = %v, %v", pending, err)
	}
	// An INSERT confirmed elsewhere without its id coming back.
	if err := ledger.MarkProcessed(ctx, pending[0].ID); err != nil {
		t.Fatalf("MarkProcessed() failed: %v", err)
	}
	if err := ledger.SetField(ctx, schema.TableReceiving, rec.ID, "tanque", "4"); err != nil {
		t.Fatalf("SetField() failed: %v", err)
	}

	out := New(ledger, remote, quietLogger()).RunPass(ctx)
	if !out.OK() {
		t.Fatalf("RunPass() = %+v, want ok while the update waits", out)
	}
	if out.Queue.Blocked != 1 || out.Queue.Failed != 0 || out.Queue.Processed != 0 {
		t.Errorf("queue report = %+v, want 1 blocked", out.Queue)
	}
	if pending, _ := ledger.PendingEntries(ctx); len(pending) != 1 {
		t.Fatalf("pending = %d, want the blocked UPDATE", len(pending))
	}

	if err := ledger.SetRemoteID(ctx, rec.ID, 55); err != nil {
		t.Fatalf("SetRemoteID() failed: %v", err)
	}
	out = New(ledger, remote, quietLogger()).RunPass(ctx)
	if !out.OK() || out.Queue.Processed != 1 {
		t.Errorf("second RunPass() = %+v, want the UPDATE processed", out)
	}
}

func TestRunPass_UnreachableStopsPass(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	remote := newFakeRemote()

	first := saveRecord(t, ledger, "T1")
	saveRecord(t, ledger, "T2")
	remote.failFor[first.ID] = fmt.Errorf("%w: connection refused", ErrUnreachable)

	out := New(ledger, remote, quietLogger()).RunPass(ctx)
	if out.OK() || !out.Queue.Aborted {
		t.Fatalf("RunPass() = %+v, want aborted error", out)
	}
	calls := remote.Calls()
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the first insert", calls)
	}
	pending, _ := ledger.PendingEntries(ctx)
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestRunPass_SnapshotFailureMarksNothing(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	remote := newFakeRemote()
	remote.snapErr = &RemoteError{URL: "http://remote", StatusCode: 500, Body: []byte(`{"error":"boom"}`)}

	if _, err := ledger.UpsertGeneralDocument(ctx, ledger.Today(), map[string]string{"cliente": "ACME"}); err != nil {
		t.Fatalf("UpsertGeneralDocument() failed: %v", err)
	}

	out := New(ledger, remote, quietLogger()).RunPass(ctx)
	if out.Status != StatusError {
		t.Fatalf("Status = %q, want error", out.Status)
	}
	if string(out.Response) != `{"error":"boom"}` {
		t.Errorf("respuesta_backend = %s", out.Response)
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	var shape map[string]any
	_ = json.Unmarshal(encoded, &shape)
	for _, key := range []string{"status", "mensaje", "respuesta_backend"} {
		if _, ok := shape[key]; !ok {
			t.Errorf("outcome JSON missing %q: %s", key, encoded)
		}
	}
}

func TestRunPass_PushesTodaySnapshot(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	remote := newFakeRemote()

	res, err := ledger.SaveWeighing(ctx, db.WeighingInput{
		LoadNumber: "1", RequestedQty: 100, ContainerSKU: "T1", SizeSKU: "S1",
		Lot: "A1", Tank: "1", Tare: 10, GrossWeight: 60, TagWeight: 50,
	})
	if err != nil {
		t.Fatalf("SaveWeighing() failed: %v", err)
	}

	out := New(ledger, remote, quietLogger()).RunPass(ctx)
	if !out.OK() || !out.Snapshot.Sent {
		t.Fatalf("RunPass() = %+v, want sent snapshot", out)
	}
	if len(remote.snapshot.Details) != 1 || remote.snapshot.Details[0].ID != res.LineIDs[0] {
		t.Errorf("snapshot details = %+v", remote.snapshot.Details)
	}
	if string(out.Response) != `{"ok":true}` {
		t.Errorf("respuesta_backend = %s", out.Response)
	}
}
