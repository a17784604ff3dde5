// Package sync reconciles the local ledger with the remote authoritative
// backend.
//
// # Overview
//
// Two kinds of work are pushed in every pass:
//
//	cola_sincronizacion (receiving records)      → Remote.InsertRecord / UpdateRecord / DeleteRecord
//	today's snapshot (all five ledger tables)    → Remote.PushSnapshot
//
// The queue is drained first, in enqueue order. An INSERT stores the id
// the remote assigned (id_procesa_app) before its entry is marked
// processed, so later UPDATE and DELETE entries of the same record can
// address it. Then the day snapshot is collected and posted as a single
// document; the remote treats it as the authoritative state of the day.
//
// # Failure handling
//
//   - A failed entry stays pending and blocks the later entries of the
//     same record until the next pass; other records keep going.
//   - ErrUnreachable (timeout, refused connection) stops the pass.
//   - A failed snapshot marks nothing; the next pass resends the day.
//
// Nothing is retried inside a pass. The orchestrator's next tick is the
// retry.
//
// # Usage
//
//	client := sync.NewClient(sync.ClientConfig{
//	    SnapshotURL: cfg.Remote.SnapshotURL,
//	    RecordURL:   cfg.Remote.RecordURL,
//	    DeleteURL:   cfg.Remote.DeleteURL,
//	    Key:         cfg.Remote.Key,
//	})
//	syncer := sync.New(ledger, client, logger)
//	outcome := syncer.RunPass(ctx)
//	if !outcome.OK() {
//	    log.Printf("sync failed: %s", outcome.Message)
//	}
package sync
