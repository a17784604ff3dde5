package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/procesa/pesaje/internal/ledger/schema"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of an answer is read.
const maxBody = 1 << 20

// ClientConfig describes the remote endpoints.
type ClientConfig struct {
	// SnapshotURL receives the whole-day snapshot.
	SnapshotURL string

	// RecordURL receives receiving-record INSERTs and answers {"id": n}.
	RecordURL string

	// UpdateURL receives receiving-record UPDATEs. Defaults to RecordURL.
	UpdateURL string

	// DeleteURL receives DELETEs as ?id=<remote id>.
	DeleteURL string

	// Key is sent in the pass header of every request.
	Key string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the remote authoritative backend.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient returns a Client for cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UpdateURL == "" {
		cfg.UpdateURL = cfg.RecordURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc}
}

// PushSnapshot posts a day snapshot as one document and returns the raw
// answer. Any failure means the remote accepted nothing.
func (c *Client) PushSnapshot(ctx context.Context, snap *schema.Snapshot) (json.RawMessage, error) {
	if snap == nil {
		snap = schema.NewSnapshot()
	}
	body, err := c.postJSON(ctx, c.cfg.SnapshotURL, snap)
	if err != nil {
		return nil, err
	}
	return asJSON(body), nil
}

// InsertRecord posts a new receiving record and returns the id the remote
// assigned to it. The id may arrive as a JSON number or a numeric string;
// anything else is ErrRemoteIdentifierInvalid.
func (c *Client) InsertRecord(ctx context.Context, rec *schema.ReceivingRecord) (int64, error) {
	body, err := c.postJSON(ctx, c.cfg.RecordURL, rec)
	if err != nil {
		return 0, err
	}
	return parseRemoteID(body)
}

// UpdateRecord posts the full current record. The remote locates it by
// id_procesa_app, so the record must have one.
func (c *Client) UpdateRecord(ctx context.Context, rec *schema.ReceivingRecord) error {
	if rec.RemoteID == nil || *rec.RemoteID <= 0 {
		return fmt.Errorf("%w: %s", ErrNoRemoteID, rec.ID)
	}
	_, err := c.postJSON(ctx, c.cfg.UpdateURL, rec)
	return err
}

// DeleteRecord asks the remote to delete the record with remoteID.
func (c *Client) DeleteRecord(ctx context.Context, remoteID int64) error {
	if remoteID <= 0 {
		return fmt.Errorf("%w: got %d", ErrNoRemoteID, remoteID)
	}
	u, err := url.Parse(c.cfg.DeleteURL)
	if err != nil {
		return fmt.Errorf("invalid delete url: %w", err)
	}
	q := u.Query()
	q.Set("id", strconv.FormatInt(remoteID, 10))
	u.RawQuery = q.Encode()

	_, err = c.do(ctx, u.String(), nil)
	return err
}

func (c *Client) postJSON(ctx context.Context, endpoint string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return c.do(ctx, endpoint, payload)
}

// do posts payload (or nothing) to endpoint and returns the answer body.
func (c *Client) do(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint not configured", ErrTransport)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("pass", c.cfg.Key)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read answer from %s: %v", ErrTransport, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{URL: endpoint, StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}

// parseRemoteID reads {"id": n} where n is a positive integer or a string
// holding one.
func parseRemoteID(body []byte) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var answer struct {
		ID any `json:"id"`
	}
	if err := dec.Decode(&answer); err != nil {
		return 0, fmt.Errorf("%w: unreadable answer %q", ErrRemoteIdentifierInvalid, truncate(body))
	}

	var raw string
	switch v := answer.ID.(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = strings.TrimSpace(v)
	default:
		return 0, fmt.Errorf("%w: %v", ErrRemoteIdentifierInvalid, answer.ID)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrRemoteIdentifierInvalid, raw)
	}
	return id, nil
}

// asJSON returns body unchanged when it is JSON, otherwise as a JSON string.
func asJSON(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return json.RawMessage(quoted)
}

func truncate(b []byte) string {
	if len(b) > 120 {
		return string(b[:120]) + "..."
	}
	return string(b)
}
