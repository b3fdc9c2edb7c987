package config

type Config struct {
	// DBDsn is a PostgreSQL DSN. Empty selects the in-memory store.
	DBDsn string
}
