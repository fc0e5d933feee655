package db

const schemaSQL = `
-- ===========================================================================
-- TENANCY
-- ===========================================================================

CREATE TABLE IF NOT EXISTS projects (
  project_id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  mode TEXT NOT NULL DEFAULT 'live' CHECK (mode IN ('live', 'simulation')),
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS api_clients (
  api_client_id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  name TEXT NOT NULL,
  contact_email TEXT,
  status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  FOREIGN KEY (project_id) REFERENCES projects(project_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_api_clients_project ON api_clients(project_id);

CREATE TABLE IF NOT EXISTS api_keys (
  api_key_id TEXT PRIMARY KEY,
  api_client_id TEXT NOT NULL,
  hash BLOB NOT NULL,
  scopes TEXT NOT NULL DEFAULT '[]',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  last_used_at TEXT,
  FOREIGN KEY (api_client_id) REFERENCES api_clients(api_client_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_api_keys_client ON api_keys(api_client_id);

CREATE TABLE IF NOT EXISTS client_credentials (
  credential_id TEXT PRIMARY KEY,
  api_client_id TEXT NOT NULL,
  service_name TEXT NOT NULL,
  credential_type TEXT NOT NULL CHECK (credential_type IN ('api_token', 'oauth_token', 'certificate', 'base_url', 'other')),
  encrypted_value TEXT NOT NULL,
  environment TEXT NOT NULL DEFAULT 'prod',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  expires_at TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  FOREIGN KEY (api_client_id) REFERENCES api_clients(api_client_id) ON DELETE CASCADE
);

-- One live credential per (client, service, type, environment). SQLite
-- supports the partial index, so this is enforced here as well as by the
-- deactivate-before-insert discipline in the credential service.
CREATE UNIQUE INDEX IF NOT EXISTS idx_credentials_active
  ON client_credentials(api_client_id, service_name, credential_type, environment)
  WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS scope_catalogue (
  scope_code TEXT PRIMARY KEY,
  description TEXT NOT NULL,
  category TEXT NOT NULL
);

-- ===========================================================================
-- ASSETS & SENSORS
-- ===========================================================================

CREATE TABLE IF NOT EXISTS assets (
  asset_id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  external_id TEXT NOT NULL,
  name TEXT,
  road_class TEXT,
  control_mode TEXT NOT NULL CHECK (control_mode IN ('optimise', 'passthrough')),
  metadata TEXT NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  FOREIGN KEY (project_id) REFERENCES projects(project_id) ON DELETE CASCADE,
  UNIQUE (project_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_assets_project ON assets(project_id);

CREATE TABLE IF NOT EXISTS sensor_types (
  sensor_type_id TEXT PRIMARY KEY,
  manufacturer TEXT NOT NULL,
  model TEXT NOT NULL,
  firmware_ver TEXT,
  notes TEXT,
  capabilities TEXT NOT NULL DEFAULT '[]',
  UNIQUE (manufacturer, model)
);

CREATE TABLE IF NOT EXISTS sensors (
  sensor_id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  external_id TEXT NOT NULL,
  sensor_type_id TEXT NOT NULL,
  metadata TEXT NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  FOREIGN KEY (project_id) REFERENCES projects(project_id) ON DELETE CASCADE,
  FOREIGN KEY (sensor_type_id) REFERENCES sensor_types(sensor_type_id),
  UNIQUE (project_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_sensors_project ON sensors(project_id);

CREATE TABLE IF NOT EXISTS sensor_asset_links (
  link_id TEXT PRIMARY KEY,
  sensor_id TEXT NOT NULL,
  asset_id TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  FOREIGN KEY (sensor_id) REFERENCES sensors(sensor_id) ON DELETE CASCADE,
  FOREIGN KEY (asset_id) REFERENCES assets(asset_id) ON DELETE CASCADE,
  UNIQUE (sensor_id, asset_id, section)
);

-- ===========================================================================
-- READINGS (one table per reading type; (sensor, timestamp) is the dedup key)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS vehicle_readings (
  vehicle_reading_id INTEGER PRIMARY KEY AUTOINCREMENT,
  sensor_id TEXT NOT NULL,
  timestamp TEXT NOT NULL,
  veh_count INTEGER NOT NULL,
  hash_unique BLOB NOT NULL,
  source TEXT,
  FOREIGN KEY (sensor_id) REFERENCES sensors(sensor_id) ON DELETE CASCADE,
  UNIQUE (sensor_id, timestamp)
);

CREATE TABLE IF NOT EXISTS ped_readings (
  ped_reading_id INTEGER PRIMARY KEY AUTOINCREMENT,
  sensor_id TEXT NOT NULL,
  timestamp TEXT NOT NULL,
  ped_count INTEGER NOT NULL,
  hash_unique BLOB NOT NULL,
  source TEXT,
  FOREIGN KEY (sensor_id) REFERENCES sensors(sensor_id) ON DELETE CASCADE,
  UNIQUE (sensor_id, timestamp)
);

CREATE TABLE IF NOT EXISTS speed_readings (
  speed_reading_id INTEGER PRIMARY KEY AUTOINCREMENT,
  sensor_id TEXT NOT NULL,
  timestamp TEXT NOT NULL,
  avg_speed_kmh REAL NOT NULL,
  p85_speed_kmh REAL,
  hash_unique BLOB NOT NULL,
  source TEXT,
  FOREIGN KEY (sensor_id) REFERENCES sensors(sensor_id) ON DELETE CASCADE,
  UNIQUE (sensor_id, timestamp)
);

-- ===========================================================================
-- COMMANDS & SCHEDULES
-- ===========================================================================

CREATE TABLE IF NOT EXISTS realtime_commands (
  command_id TEXT PRIMARY KEY,
  asset_id TEXT NOT NULL,
  requested_at TEXT NOT NULL,
  dim_percent INTEGER NOT NULL CHECK (dim_percent BETWEEN 0 AND 100),
  source_mode TEXT NOT NULL,
  vendor TEXT,
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'sent', 'failed', 'simulated')),
  response TEXT,
  error TEXT,
  latency_ms INTEGER,
  requested_by_api_client TEXT,
  idempotency_key TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  FOREIGN KEY (asset_id) REFERENCES assets(asset_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_commands_asset_ts ON realtime_commands(asset_id, requested_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_commands_idempotency
  ON realtime_commands(requested_by_api_client, idempotency_key)
  WHERE idempotency_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS schedules (
  schedule_id TEXT PRIMARY KEY,
  asset_id TEXT NOT NULL,
  body TEXT NOT NULL,
  provider TEXT NOT NULL DEFAULT 'vendor',
  status TEXT NOT NULL CHECK (status IN ('active', 'superseded', 'pending_commission', 'failed')),
  vendor_program_id TEXT,
  is_simulated INTEGER NOT NULL DEFAULT 0,
  commission_attempts INTEGER NOT NULL DEFAULT 0,
  last_commission_attempt TEXT,
  commission_error TEXT,
  idempotency_key TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  FOREIGN KEY (asset_id) REFERENCES assets(asset_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_schedules_asset_created ON schedules(asset_id, created_at);
CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_idempotency
  ON schedules(asset_id, idempotency_key)
  WHERE idempotency_key IS NOT NULL;

-- ===========================================================================
-- POLICY & AUDIT
-- ===========================================================================

CREATE TABLE IF NOT EXISTS policies (
  policy_id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  version TEXT NOT NULL,
  body TEXT NOT NULL,
  active_from TEXT NOT NULL DEFAULT (datetime('now')),
  FOREIGN KEY (project_id) REFERENCES projects(project_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_policies_project_active ON policies(project_id, active_from);

CREATE TABLE IF NOT EXISTS audit_log (
  audit_log_id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  actor TEXT NOT NULL,
  project_id TEXT,
  action TEXT NOT NULL,
  entity TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  details TEXT NOT NULL DEFAULT '{}',
  FOREIGN KEY (project_id) REFERENCES projects(project_id)
);

CREATE INDEX IF NOT EXISTS idx_audit_project_ts ON audit_log(project_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_project_action ON audit_log(project_id, action, timestamp);
`
