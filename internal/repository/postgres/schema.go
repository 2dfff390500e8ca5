package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id                      UUID PRIMARY KEY,
		user_id                 UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title                   TEXT NOT NULL,
		description             TEXT,
		total_estimated_minutes INTEGER NOT NULL DEFAULT 0 CHECK (total_estimated_minutes >= 0),
		total_spent_minutes     INTEGER NOT NULL DEFAULT 0 CHECK (total_spent_minutes >= 0),
		is_completed            BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at            TIMESTAMPTZ,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (NOT is_completed OR completed_at IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id)`,
	`CREATE TABLE IF NOT EXISTS subtasks (
		id                UUID PRIMARY KEY,
		task_id           UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		title             TEXT NOT NULL,
		estimated_minutes INTEGER NOT NULL DEFAULT 0 CHECK (estimated_minutes >= 0),
		spent_minutes     INTEGER NOT NULL DEFAULT 0 CHECK (spent_minutes >= 0),
		is_completed      BOOLEAN NOT NULL DEFAULT FALSE,
		order_index       INTEGER NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (task_id, order_index)
	)`,
	`CREATE TABLE IF NOT EXISTS time_entries (
		id               UUID PRIMARY KEY,
		task_id          UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id          UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		started_at       TIMESTAMPTZ NOT NULL,
		ended_at         TIMESTAMPTZ,
		duration_minutes INTEGER CHECK (duration_minutes >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_entries_open ON time_entries(task_id, user_id) WHERE ended_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_time_entries_user_started ON time_entries(user_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		friend_id  UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, friend_id),
		CHECK (user_id <> friend_id)
	)`,
}
