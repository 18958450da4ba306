package db

const (
	InsertJob = `
		INSERT INTO print_queue (content, printer_config, status, created_at, retry_count)
		VALUES (?, ?, 'pending', ?, 0)
	`

	GetJobByID = `
		SELECT id, content, printer_config, status, created_at, printed_at, error_message, retry_count
		FROM print_queue WHERE id = ?
	`

	GetPendingBatch = `
		SELECT id, content, printer_config, status, created_at, printed_at, error_message, retry_count
		FROM print_queue WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	ListRecentJobs = `
		SELECT id, content, printer_config, status, created_at, printed_at, error_message, retry_count
		FROM print_queue
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	MarkJobPrinted = `
		UPDATE print_queue SET status = 'printed', printed_at = ? WHERE id = ? AND status = 'pending'
	`

	MarkJobRetry = `
		UPDATE print_queue SET retry_count = ? WHERE id = ? AND status = 'pending'
	`

	MarkJobFailed = `
		UPDATE print_queue SET status = 'failed', retry_count = ?, error_message = ? WHERE id = ? AND status = 'pending'
	`

	MarkJobError = `
		UPDATE print_queue SET status = 'error', error_message = ? WHERE id = ? AND status = 'pending'
	`

	CountJobsByStatus = `
		SELECT status, COUNT(*) FROM print_queue GROUP BY status
	`

	DeleteTerminalJobs = `
		DELETE FROM print_queue WHERE status IN ('printed', 'failed')
	`
)

const (
	InsertPreset = `
		INSERT INTO printer_configs (name, type, interface, config_json, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	ListPresets = `
		SELECT id, name, type, interface, config_json, active, created_at
		FROM printer_configs ORDER BY name ASC
	`

	GetPresetByID = `
		SELECT id, name, type, interface, config_json, active, created_at
		FROM printer_configs WHERE id = ?
	`

	GetActivePreset = `
		SELECT id, name, type, interface, config_json, active, created_at
		FROM printer_configs WHERE active = 1 ORDER BY id ASC LIMIT 1
	`

	ClearActivePresets = `UPDATE printer_configs SET active = 0 WHERE active = 1`

	ActivatePreset = `UPDATE printer_configs SET active = 1 WHERE id = ?`
)

const (
	InsertMigration = `INSERT INTO schema_migrations (version) VALUES (?)`

	GetAppliedMigrations = `
		SELECT version FROM schema_migrations
	`
)
