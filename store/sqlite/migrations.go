package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Gate store (SQLite).
var Migrations = migrate.NewGroup("gate")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_gate_subscriptions",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gate_subscriptions (
    id           TEXT PRIMARY KEY,
    principal_id TEXT NOT NULL DEFAULT '',
    plan_slug    TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'active',
    period_start TEXT NOT NULL DEFAULT (datetime('now')),
    period_end   TEXT NOT NULL DEFAULT (datetime('now')),
    canceled_at  TEXT,
    cancel_at    TEXT,
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_gate_subs_principal ON gate_subscriptions (principal_id);
CREATE INDEX IF NOT EXISTS idx_gate_subs_status ON gate_subscriptions (principal_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gate_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_gate_usage_events",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gate_usage_events (
    id              TEXT PRIMARY KEY,
    principal_id    TEXT NOT NULL DEFAULT '',
    weight          INTEGER NOT NULL DEFAULT 1,
    endpoint        TEXT NOT NULL DEFAULT '',
    timestamp       TEXT NOT NULL DEFAULT (datetime('now')),
    idempotency_key TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_gate_usage_principal_ts ON gate_usage_events (principal_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_gate_usage_timestamp ON gate_usage_events (timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS idx_gate_usage_idempotency ON gate_usage_events (idempotency_key) WHERE idempotency_key != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gate_usage_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_gate_decisions",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gate_decisions (
    id           TEXT PRIMARY KEY,
    kind         TEXT NOT NULL DEFAULT '',
    passed       INTEGER NOT NULL DEFAULT 0,
    reason       TEXT NOT NULL DEFAULT '',
    principal_id TEXT NOT NULL DEFAULT '',
    plan_slug    TEXT NOT NULL DEFAULT '',
    feature      TEXT NOT NULL DEFAULT '',
    module_id    TEXT NOT NULL DEFAULT '',
    timestamp    TEXT NOT NULL DEFAULT (datetime('now')),
    metadata     TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_gate_decisions_principal_ts ON gate_decisions (principal_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_gate_decisions_kind ON gate_decisions (kind, passed);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gate_decisions`)
				return err
			},
		},
	)
}
