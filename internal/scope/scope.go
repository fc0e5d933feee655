// Package scope holds the API scope catalogue. Definitions are compiled in
// and synced to the scope_catalogue table at startup; key issuance validates
// against the table so a running instance can carry extra scopes.
package scope

import (
	"database/sql"
	"sort"
)

// Definition describes one scope code.
type Definition struct {
	Code        string `json:"scope_code"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Definitions is the built-in catalogue.
var Definitions = []Definition{
	{"asset:read", "Read asset information, state, metadata, and schedules", "asset"},
	{"asset:write", "Update asset metadata, configuration, and control mode", "asset"},
	{"asset:command", "Execute asset commands (schedules and real-time dimming)", "asset"},
	{"asset:override", "Override asset policy constraints for optimise mode assets", "asset"},
	{"command:realtime.write", "Submit real-time dimming commands", "command"},
	{"command:schedule.write", "Submit lighting schedules", "command"},
	{"command:override", "Command optimise mode assets, subject to policy guardrails", "command"},
	{"sensor:read", "Read sensor information, capabilities, and metadata", "sensor"},
	{"sensor:write", "Update sensor configuration and metadata", "sensor"},
	{"sensor:ingest", "Submit sensor data readings", "sensor"},
	{"admin:policy:read", "Read system policy configurations", "admin"},
	{"admin:policy:write", "Create and update system policies", "admin"},
	{"admin:killswitch", "Enable/disable system kill switch", "admin"},
	{"admin:audit:read", "Read system audit logs", "admin"},
	{"admin:credentials:write", "Store and manage client credentials (EXEDRA keys, etc.)", "admin"},
	{"admin:apikeys:write", "Generate and manage API keys for clients", "admin"},
	{"metadata:read", "Read system metadata and configuration catalogues", "metadata"},
	{"config:write", "Update system configuration and settings", "config"},
}

// Recommended maps common use cases to scope sets.
var Recommended = map[string][]string{
	"asset_readonly":      {"asset:read", "metadata:read"},
	"asset_manager":       {"asset:read", "asset:write", "metadata:read", "config:write"},
	"asset_operator":      {"asset:read", "asset:command", "metadata:read"},
	"asset_full_control":  {"asset:read", "asset:write", "asset:command", "asset:override", "metadata:read", "config:write"},
	"sensor_client":       {"sensor:read", "sensor:ingest", "metadata:read"},
	"system_admin":        {"admin:policy:read", "admin:policy:write", "admin:killswitch", "admin:audit:read", "admin:credentials:write", "admin:apikeys:write", "metadata:read", "config:write"},
	"integration_service": {"asset:read", "asset:command", "sensor:read", "sensor:ingest", "metadata:read"},
}

// Sync upserts the built-in catalogue into the database. Returns the number
// of newly inserted scopes.
func Sync(writer *sql.DB) (int, error) {
	inserted := 0
	for _, def := range Definitions {
		var exists int
		err := writer.QueryRow(`SELECT COUNT(*) FROM scope_catalogue WHERE scope_code = ?`, def.Code).Scan(&exists)
		if err != nil {
			return inserted, err
		}
		if exists == 0 {
			inserted++
		}
		_, err = writer.Exec(`
			INSERT INTO scope_catalogue (scope_code, description, category)
			VALUES (?, ?, ?)
			ON CONFLICT(scope_code) DO UPDATE SET description = excluded.description, category = excluded.category
		`, def.Code, def.Description, def.Category)
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// All reads the catalogue from the database, sorted by code.
func All(reader *sql.DB) ([]Definition, error) {
	rows, err := reader.Query(`SELECT scope_code, description, category FROM scope_catalogue`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var def Definition
		if err := rows.Scan(&def.Code, &def.Description, &def.Category); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Code < defs[j].Code })
	return defs, nil
}

// Validate reports which of the requested scopes are not in the catalogue.
func Validate(reader *sql.DB, scopes []string) ([]string, error) {
	defs, err := All(reader)
	if err != nil {
		return nil, err
	}
	valid := make(map[string]bool, len(defs))
	for _, def := range defs {
		valid[def.Code] = true
	}

	var invalid []string
	for _, requested := range scopes {
		if !valid[requested] {
			invalid = append(invalid, requested)
		}
	}
	return invalid, nil
}
