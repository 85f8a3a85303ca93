// Package database provides the optional PostgreSQL connection pool used
// for the live tick and bar archive and the trade journal. The service
// runs fully in memory when the database is disabled in config.
package database
