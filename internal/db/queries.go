package db

const (
	InsertEvent = `
		INSERT INTO events (kind, occurred_at, job_id, printer, status, exit_status, process_group, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	ListEvents = `
		SELECT id, kind, occurred_at, job_id, printer, status, exit_status, process_group, detail_json
		FROM events
		WHERE (? IS NULL OR job_id = ?) AND (? = '' OR kind = ?)
		ORDER BY id DESC
		LIMIT ?
	`

	CountEvents = `SELECT COUNT(*) FROM events`

	DeleteEventsBefore = `DELETE FROM events WHERE occurred_at < ?`
)
