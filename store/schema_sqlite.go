package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS customers (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    mobile        TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    order_history TEXT NOT NULL DEFAULT '[]',
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_customers_mobile ON customers(mobile);

CREATE TABLE IF NOT EXISTS orders (
    id                 TEXT PRIMARY KEY,
    customer_id        TEXT NOT NULL DEFAULT '',
    bottles            TEXT,
    bottle_type        TEXT NOT NULL DEFAULT '',
    quantity           INTEGER NOT NULL DEFAULT 0,
    total_bottle_count INTEGER NOT NULL DEFAULT 0,
    preferred_day      TEXT NOT NULL DEFAULT 'Any',
    delivery_date      TEXT NOT NULL DEFAULT '',
    invoice_number     TEXT NOT NULL DEFAULT '',
    notes              TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'Unassigned',
    run_id             TEXT NOT NULL DEFAULT '',
    delivered          INTEGER NOT NULL DEFAULT 0,
    delivered_at       TEXT,
    delivered_run_id   TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(delivery_date);
CREATE INDEX IF NOT EXISTS idx_orders_run ON orders(run_id);

CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    delivery_date TEXT NOT NULL,
    run_number    INTEGER NOT NULL,
    order_ids     TEXT NOT NULL DEFAULT '[]',
    manifest_id   TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'Pending',
    completed_at  TEXT,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
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
    generated_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    superseded_at TEXT,
    snapshot_data TEXT NOT NULL DEFAULT '{}'
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_manifests_run_version ON manifests(run_id, version);
CREATE UNIQUE INDEX IF NOT EXISTS idx_manifests_active ON manifests(run_id) WHERE status = 'ACTIVE';

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    depot_id    TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
