package db

// CheckIntegrity runs the engine's full integrity scan and returns the
// reported lines. A healthy database reports exactly ["ok"].
func (d *DB) CheckIntegrity() ([]string, error) {
	return d.pragmaLines("PRAGMA integrity_check")
}

// QuickCheck runs the cheaper page-level scan, which skips index
// content verification.
func (d *DB) QuickCheck() ([]string, error) {
	return d.pragmaLines("PRAGMA quick_check")
}

// ExistingTables queries the engine catalog for the tables actually
// present in the file, in catalog order. Unlike Tables, this reflects
// the file rather than the declarations.
func (d *DB) ExistingTables() ([]string, error) {
	rows, err := d.queryRows(nil, "SELECT name FROM sqlite_master WHERE type='table'", nil)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		switch name := r["name"].(type) {
		case string:
			names = append(names, name)
		case []byte:
			names = append(names, string(name))
		}
	}
	return names, nil
}

// pragmaLines collects the single-column result rows of a pragma
// statement as strings.
func (d *DB) pragmaLines(sqlText string) ([]string, error) {
	rows, err := d.queryRows(nil, sqlText, nil)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		for _, v := range r {
			switch s := v.(type) {
			case string:
				lines = append(lines, s)
			case []byte:
				lines = append(lines, string(s))
			}
		}
	}
	return lines, nil
}
