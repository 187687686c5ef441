package store

import (
	"strconv"
	"strings"
)

type dialect struct {
	driver       string
	schema       []string
	insertIgnore string
	placeholders bool
}

const datesTable = `CREATE TABLE IF NOT EXISTS dates(year INTEGER NOT NULL, month INTEGER NOT NULL, day INTEGER NOT NULL, clouds_computed INTEGER, shadows_computed INTEGER, percent_cloudy REAL, percent_shadows REAL, percent_invalid REAL, PRIMARY KEY(year, month, day));`

const dateBandsTable = `CREATE TABLE IF NOT EXISTS date_bands(
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		band_name TEXT NOT NULL,
		PRIMARY KEY(year, month, day, band_name),
		FOREIGN KEY(year, month, day) REFERENCES dates(year, month, day)
	);`

const summaryTable = `CREATE TABLE IF NOT EXISTS single_image_summary(
		index_name TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		use_approximated_data INTEGER NOT NULL,
		exclude_cloudy_pixels INTEGER NOT NULL,
		exclude_shadow_pixels INTEGER NOT NULL,
		min REAL,
		max REAL,
		mean REAL,
		num_pixels INTEGER,
		PRIMARY KEY(index_name, year, month, day, use_approximated_data, exclude_cloudy_pixels, exclude_shadow_pixels),
		FOREIGN KEY(year, month, day) REFERENCES dates(year, month, day)
	);`

const noiseTable = `CREATE TABLE IF NOT EXISTS noise_removal(
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		min_region_size INTEGER NOT NULL,
		percent_invalid_noise_removed REAL,
		PRIMARY KEY(year, month, day, min_region_size),
		FOREIGN KEY(year, month, day) REFERENCES dates(year, month, day)
	);`

func approximatedTable(idColumn string) string {
	return `CREATE TABLE IF NOT EXISTS approximated_data(
		id ` + idColumn + `,
		band_name TEXT NOT NULL,
		method TEXT NOT NULL,
		approximated_fraction REAL,
		temporal_fraction REAL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		UNIQUE(year, month, day, band_name),
		FOREIGN KEY(year, month, day) REFERENCES dates(year, month, day)
	);`
}

var sqliteDialect = &dialect{
	driver: "sqlite3",
	schema: []string{
		datesTable,
		dateBandsTable,
		approximatedTable("INTEGER PRIMARY KEY AUTOINCREMENT"),
		summaryTable,
		noiseTable,
	},
	insertIgnore: "INSERT OR IGNORE INTO",
}

var postgresDialect = &dialect{
	driver: "postgres",
	schema: []string{
		datesTable,
		dateBandsTable,
		approximatedTable("SERIAL PRIMARY KEY"),
		summaryTable,
		noiseTable,
	},
	placeholders: true,
}

func dialectFor(driver string) (*dialect, bool) {
	switch driver {
	case "", "sqlite3", "sqlite":
		return sqliteDialect, true
	case "postgres", "postgresql":
		return postgresDialect, true
	}
	return nil, false
}

// rebind rewrites ? placeholders to $n for drivers that need it.
func (d *dialect) rebind(query string) string {
	if !d.placeholders {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ignoring builds an insert that leaves an existing row untouched.
func (d *dialect) ignoring(table, columns, values string) string {
	if d.insertIgnore != "" {
		return d.rebind(d.insertIgnore + " " + table + "(" + columns + ") VALUES (" + values + ")")
	}
	return d.rebind("INSERT INTO " + table + "(" + columns + ") VALUES (" + values + ") ON CONFLICT DO NOTHING")
}
