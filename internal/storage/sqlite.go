package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"semq/internal/analysis"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "open %s", path)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to init schema")
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			dir TEXT PRIMARY KEY,
			package TEXT,
			analysed_at TEXT DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS smart_casts (
			dir TEXT,
			filepath TEXT,
			line INTEGER,
			col INTEGER,
			end_line INTEGER,
			end_col INTEGER,
			start_byte INTEGER,
			end_byte INTEGER,
			expression TEXT,
			type TEXT,
			stable INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS implicit_receivers (
			dir TEXT,
			filepath TEXT,
			line INTEGER,
			col INTEGER,
			end_line INTEGER,
			end_col INTEGER,
			start_byte INTEGER,
			end_byte INTEGER,
			expression TEXT,
			kind TEXT,
			type TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS representations (
			dir TEXT,
			type TEXT,
			mode TEXT,
			fields JSON,
			position INTEGER,
			PRIMARY KEY (dir, type)
		);`,
		`CREATE TABLE IF NOT EXISTS diagnostics (
			dir TEXT,
			code TEXT,
			filepath TEXT,
			line INTEGER,
			message TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS names (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			signature TEXT UNIQUE,
			name TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_smart_casts_dir ON smart_casts(dir);`,
		`CREATE INDEX IF NOT EXISTS idx_implicit_receivers_dir ON implicit_receivers(dir);`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_dir ON diagnostics(dir);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- ReportStore Implementation ---

func (s *SQLiteStore) SaveReport(ctx context.Context, r *analysis.Report) error {
	if r == nil {
		return errors.AssertionFailedf("nil report")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Drop the previous snapshot.
	for _, table := range []string{"smart_casts", "implicit_receivers", "representations", "diagnostics"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE dir = ?", r.Dir); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reports (dir, package) VALUES (?, ?)
		ON CONFLICT(dir) DO UPDATE SET package=excluded.package, analysed_at=CURRENT_TIMESTAMP
	`, r.Dir, r.Package); err != nil {
		return errors.Wrap(err, "save report")
	}

	// 2. Smart casts and implicit receivers.
	castStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO smart_casts (dir, filepath, line, col, end_line, end_col, start_byte, end_byte, expression, type, stable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer castStmt.Close()
	for _, c := range r.SmartCasts {
		l := c.Location
		if _, err := castStmt.ExecContext(ctx, r.Dir, l.File, l.Line, l.Column, l.EndLine, l.EndColumn, l.Start, l.End, c.Expression, c.Type, c.Stable); err != nil {
			return errors.Wrap(err, "save smart cast")
		}
	}

	recvStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO implicit_receivers (dir, filepath, line, col, end_line, end_col, start_byte, end_byte, expression, kind, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer recvStmt.Close()
	for _, c := range r.ImplicitReceivers {
		l := c.Location
		if _, err := recvStmt.ExecContext(ctx, r.Dir, l.File, l.Line, l.Column, l.EndLine, l.EndColumn, l.Start, l.End, c.Expression, c.Kind, c.Type); err != nil {
			return errors.Wrap(err, "save implicit receiver")
		}
	}

	// 3. Representations and diagnostics.
	for i, rep := range r.Representations {
		fields, err := json.Marshal(rep.Fields)
		if err != nil {
			return errors.Wrapf(err, "encode fields of %s", rep.Type)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO representations (dir, type, mode, fields, position) VALUES (?, ?, ?, ?, ?)",
			r.Dir, rep.Type, rep.Mode, fields, i); err != nil {
			return errors.Wrapf(err, "save representation of %s", rep.Type)
		}
	}
	for _, d := range r.Diagnostics {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO diagnostics (dir, code, filepath, line, message) VALUES (?, ?, ?, ?, ?)",
			r.Dir, d.Code, d.File, d.Line, d.Message); err != nil {
			return errors.Wrap(err, "save diagnostic")
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadReport(ctx context.Context, key string) (*analysis.Report, error) {
	r := &analysis.Report{}
	row := s.db.QueryRowContext(ctx,
		"SELECT dir, package FROM reports WHERE dir = ? OR package = ? ORDER BY dir LIMIT 1", key, key)
	if err := row.Scan(&r.Dir, &r.Package); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "%s", key)
		}
		return nil, errors.Wrapf(err, "load report %s", key)
	}

	// 1. Smart casts
	rows, err := s.db.QueryContext(ctx, `
		SELECT filepath, line, col, end_line, end_col, start_byte, end_byte, expression, type, stable
		FROM smart_casts WHERE dir = ? ORDER BY filepath, start_byte, end_byte
	`, r.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query smart casts")
	}
	defer rows.Close()
	for rows.Next() {
		var c analysis.SmartCast
		l := &c.Location
		if err := rows.Scan(&l.File, &l.Line, &l.Column, &l.EndLine, &l.EndColumn, &l.Start, &l.End, &c.Expression, &c.Type, &c.Stable); err != nil {
			return nil, errors.Wrap(err, "failed to scan smart cast")
		}
		r.SmartCasts = append(r.SmartCasts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 2. Implicit receivers
	recvRows, err := s.db.QueryContext(ctx, `
		SELECT filepath, line, col, end_line, end_col, start_byte, end_byte, expression, kind, type
		FROM implicit_receivers WHERE dir = ? ORDER BY filepath, start_byte, end_byte
	`, r.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query implicit receivers")
	}
	defer recvRows.Close()
	for recvRows.Next() {
		var c analysis.ImplicitReceiverCast
		l := &c.Location
		if err := recvRows.Scan(&l.File, &l.Line, &l.Column, &l.EndLine, &l.EndColumn, &l.Start, &l.End, &c.Expression, &c.Kind, &c.Type); err != nil {
			return nil, errors.Wrap(err, "failed to scan implicit receiver")
		}
		r.ImplicitReceivers = append(r.ImplicitReceivers, c)
	}
	if err := recvRows.Err(); err != nil {
		return nil, err
	}

	// 3. Representations
	repRows, err := s.db.QueryContext(ctx,
		"SELECT type, mode, fields FROM representations WHERE dir = ? ORDER BY position", r.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query representations")
	}
	defer repRows.Close()
	for repRows.Next() {
		var rep analysis.Representation
		var fields []byte
		if err := repRows.Scan(&rep.Type, &rep.Mode, &fields); err != nil {
			return nil, errors.Wrap(err, "failed to scan representation")
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &rep.Fields); err != nil {
				return nil, errors.Wrapf(err, "decode fields of %s", rep.Type)
			}
		}
		r.Representations = append(r.Representations, rep)
	}
	if err := repRows.Err(); err != nil {
		return nil, err
	}

	// 4. Diagnostics
	diagRows, err := s.db.QueryContext(ctx,
		"SELECT code, filepath, line, message FROM diagnostics WHERE dir = ? ORDER BY filepath, line, rowid", r.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query diagnostics")
	}
	defer diagRows.Close()
	for diagRows.Next() {
		var d analysis.Diagnostic
		if err := diagRows.Scan(&d.Code, &d.File, &d.Line, &d.Message); err != nil {
			return nil, errors.Wrap(err, "failed to scan diagnostic")
		}
		r.Diagnostics = append(r.Diagnostics, d)
	}
	return r, diagRows.Err()
}

func (s *SQLiteStore) Packages(ctx context.Context) ([]PackageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.dir, r.package,
			(SELECT COUNT(*) FROM smart_casts c WHERE c.dir = r.dir),
			(SELECT COUNT(*) FROM representations p WHERE p.dir = r.dir),
			(SELECT COUNT(*) FROM diagnostics d WHERE d.dir = r.dir)
		FROM reports r ORDER BY r.dir
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reports")
	}
	defer rows.Close()

	var out []PackageSummary
	for rows.Next() {
		var p PackageSummary
		if err := rows.Scan(&p.Dir, &p.Package, &p.SmartCasts, &p.Representations, &p.Diagnostics); err != nil {
			return nil, errors.Wrap(err, "failed to scan report")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- NameStore Implementation ---

func (s *SQLiteStore) SaveNames(ctx context.Context, names []analysis.Name) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO names (signature, name) VALUES (?, ?)
		ON CONFLICT(signature) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range names {
		if _, err := stmt.ExecContext(ctx, n.Signature, n.Name); err != nil {
			return errors.Wrapf(err, "save name of %s", n.Signature)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadNames(ctx context.Context) ([]analysis.Name, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT signature, name FROM names ORDER BY seq")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query names")
	}
	defer rows.Close()

	var out []analysis.Name
	for rows.Next() {
		var n analysis.Name
		if err := rows.Scan(&n.Signature, &n.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan name")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
