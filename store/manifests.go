package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type manifestRepo struct{ tx *sqlTx }

const manifestSelectCols = `id, run_id, version, status, generated_at, superseded_at, snapshot_data`

func scanManifest(row scanner) (*Manifest, error) {
	var m Manifest
	var status, snapshot string
	var generatedAt, supersededAt any
	if err := row.Scan(&m.ID, &m.RunID, &m.Version, &status, &generatedAt, &supersededAt, &snapshot); err != nil {
		return nil, err
	}
	m.Status = ManifestStatus(status)
	if snapshot != "" {
		if err := json.Unmarshal([]byte(snapshot), &m.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for manifest %s: %w", m.ID, err)
		}
	}
	m.GeneratedAt = parseTime(generatedAt)
	m.SupersededAt = parseTimePtr(supersededAt)
	return &m, nil
}

func (r *manifestRepo) ListAll(ctx context.Context) ([]*Manifest, error) {
	return listRows(ctx, r.tx, "manifests", `SELECT `+manifestSelectCols+` FROM manifests ORDER BY run_id, version`, scanManifest)
}

func (r *manifestRepo) Get(ctx context.Context, id string) (*Manifest, error) {
	return getRow(ctx, r.tx, "manifest", `SELECT `+manifestSelectCols+` FROM manifests WHERE id=?`, id, scanManifest)
}

func (r *manifestRepo) Upsert(ctx context.Context, m *Manifest) error {
	if m.GeneratedAt.IsZero() {
		m.GeneratedAt = time.Now()
	}
	data, err := json.Marshal(m.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	d := r.tx.db.dialect
	// snapshot_data is written once; later upserts only move the status.
	_, err = r.tx.q.ExecContext(ctx, r.tx.db.Q(`INSERT INTO manifests (id, run_id, version, status, generated_at, superseded_at, snapshot_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, superseded_at=excluded.superseded_at`),
		m.ID, m.RunID, m.Version, string(m.Status), d.Time(m.GeneratedAt), timeArg(d, m.SupersededAt), string(data))
	if err != nil {
		return fmt.Errorf("upsert manifest %s: %w", m.ID, err)
	}
	return nil
}

func (r *manifestRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.tx, "manifests", "manifest", id)
}
