package storage

// sqliteSchema holds the statements for the SQLite driver. Paths use the default
// BINARY collation so they stay case-sensitive.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		name        TEXT NOT NULL,
		quota_bytes INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,
	`CREATE TABLE IF NOT EXISTS apps (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		name        TEXT NOT NULL,
		quota_bytes INTEGER NOT NULL DEFAULT 0,
		files       BLOB,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_apps_owner ON apps(owner_id)`,
	`CREATE TABLE IF NOT EXISTS files (
		project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		path        TEXT NOT NULL,
		content     TEXT NOT NULL,
		size        INTEGER NOT NULL,
		hash        TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (project_id, path)
	)`,
}

// mysqlSchema mirrors sqliteSchema. utf8mb4_bin keeps path comparisons
// case-sensitive and byte-ordered, matching SQLite.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id          VARCHAR(36) NOT NULL,
		owner_id    VARCHAR(255) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		quota_bytes BIGINT NOT NULL DEFAULT 0,
		created_at  BIGINT NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_projects_owner (owner_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS apps (
		id          VARCHAR(36) NOT NULL,
		owner_id    VARCHAR(255) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		quota_bytes BIGINT NOT NULL DEFAULT 0,
		files       LONGBLOB,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_apps_owner (owner_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS files (
		project_id  VARCHAR(36) NOT NULL,
		path        VARCHAR(512) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		content     LONGTEXT NOT NULL,
		size        BIGINT NOT NULL,
		hash        VARCHAR(64) NOT NULL,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL,
		PRIMARY KEY (project_id, path),
		CONSTRAINT fk_files_project FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// sqlitePragmas configures SQLite connections opened by OpenSQLite.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate"
