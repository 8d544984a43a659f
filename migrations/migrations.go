// Package migrations embute os scripts SQL do PostgreSQL
package migrations

import _ "embed"

//go:embed 001_init.sql
var InitSQL string
