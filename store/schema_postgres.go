package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS customers (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    mobile        TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    order_history JSONB NOT NULL DEFAULT '[]',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_customers_mobile ON customers(mobile);

CREATE TABLE IF NOT EXISTS orders (
    id                 TEXT PRIMARY KEY,
    customer_id        TEXT NOT NULL DEFAULT '',
    bottles            JSONB,
    bottle_type        TEXT NOT NULL DEFAULT '',
    quantity           INTEGER NOT NULL DEFAULT 0,
    total_bottle_count INTEGER NOT NULL DEFAULT 0,
    preferred_day      TEXT NOT NULL DEFAULT 'Any',
    delivery_date      TEXT NOT NULL DEFAULT '',
    invoice_number     TEXT NOT NULL DEFAULT '',
    notes              TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'Unassigned',
    run_id             TEXT NOT NULL DEFAULT '',
    delivered          BOOLEAN NOT NULL DEFAULT FALSE,
    delivered_at       TIMESTAMPTZ,
    delivered_run_id   TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(delivery_date);
CREATE INDEX IF NOT EXISTS idx_orders_run ON orders(run_id);

CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    delivery_date TEXT NOT NULL,
    run_number    INTEGER NOT NULL,
    order_ids     JSONB NOT NULL DEFAULT '[]',
    manifest_id   TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'Pending',
    completed_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_date_number ON runs(delivery_date, run_number);

CREATE TABLE IF NOT EXISTS run_sequences (
    delivery_date TEXT PRIMARY KEY,
    last_number   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS manifests (
    id            TEXT PRIMARY KEY,
    run_id        TEXT NOT NULL,
    version       INTEGER NOT NULL,
    status        TEXT NOT NULL DEFAULT 'ACTIVE',
    generated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    superseded_at TIMESTAMPTZ,
    snapshot_data JSONB NOT NULL DEFAULT '{}'
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_manifests_run_version ON manifests(run_id, version);
CREATE UNIQUE INDEX IF NOT EXISTS idx_manifests_active ON manifests(run_id) WHERE status = 'ACTIVE';

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    depot_id    TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
