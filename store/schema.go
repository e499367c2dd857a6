package store

// seen_links is declared for compatibility with existing databases and is
// never written or read.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS all_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_title TEXT NOT NULL,
		link TEXT NOT NULL,
		source_url TEXT NOT NULL,
		is_pdf BOOLEAN NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT 'unknown',
		first_seen TIMESTAMP NOT NULL,
		last_checked TIMESTAMP NOT NULL,
		times_seen INTEGER NOT NULL DEFAULT 1,
		http_status INTEGER,
		UNIQUE (feed_title, link)
	)`,
	`CREATE TABLE IF NOT EXISTS pdf_content (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_title TEXT NOT NULL,
		pdf_url TEXT NOT NULL,
		source_link TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		page_title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		creation_date TEXT NOT NULL DEFAULT '',
		modification_date TEXT NOT NULL DEFAULT '',
		number_of_pages INTEGER NOT NULL DEFAULT 0,
		file_size_bytes INTEGER NOT NULL DEFAULT 0,
		date_processed TIMESTAMP NOT NULL,
		UNIQUE (feed_title, pdf_url),
		FOREIGN KEY (feed_title, pdf_url) REFERENCES all_links (feed_title, link)
	)`,
	`CREATE TABLE IF NOT EXISTS seen_links (
		feed_title TEXT NOT NULL,
		link TEXT NOT NULL,
		first_seen TIMESTAMP,
		PRIMARY KEY (feed_title, link)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pdf_content_date_processed ON pdf_content (date_processed)`,
	`CREATE INDEX IF NOT EXISTS idx_pdf_content_source_link ON pdf_content (source_link)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS all_links (
		id BIGSERIAL PRIMARY KEY,
		feed_title TEXT NOT NULL,
		link TEXT NOT NULL,
		source_url TEXT NOT NULL,
		is_pdf BOOLEAN NOT NULL DEFAULT FALSE,
		content_type TEXT NOT NULL DEFAULT 'unknown',
		first_seen TIMESTAMPTZ NOT NULL,
		last_checked TIMESTAMPTZ NOT NULL,
		times_seen INTEGER NOT NULL DEFAULT 1,
		http_status INTEGER,
		UNIQUE (feed_title, link)
	)`,
	`CREATE TABLE IF NOT EXISTS pdf_content (
		id BIGSERIAL PRIMARY KEY,
		feed_title TEXT NOT NULL,
		pdf_url TEXT NOT NULL,
		source_link TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		page_title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		creation_date TEXT NOT NULL DEFAULT '',
		modification_date TEXT NOT NULL DEFAULT '',
		number_of_pages INTEGER NOT NULL DEFAULT 0,
		file_size_bytes BIGINT NOT NULL DEFAULT 0,
		date_processed TIMESTAMPTZ NOT NULL,
		UNIQUE (feed_title, pdf_url),
		FOREIGN KEY (feed_title, pdf_url) REFERENCES all_links (feed_title, link)
	)`,
	`CREATE TABLE IF NOT EXISTS seen_links (
		feed_title TEXT NOT NULL,
		link TEXT NOT NULL,
		first_seen TIMESTAMPTZ,
		PRIMARY KEY (feed_title, link)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pdf_content_date_processed ON pdf_content (date_processed)`,
	`CREATE INDEX IF NOT EXISTS idx_pdf_content_source_link ON pdf_content (source_link)`,
}

func schemaFor(driver string) []string {
	if driver == DriverPostgres {
		return postgresSchema
	}
	return sqliteSchema
}
