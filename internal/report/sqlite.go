package report

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/524D/mzfdr/internal/fdr"
)

// Date format of RunTable (ISO 8601)
const runDateFormat = time.RFC3339

// DBWriter writes the results of a run to an SQLite database. All rows are
// written in a single transaction that is committed by Close.
type DBWriter struct {
	db       *sql.DB
	tx       *sql.Tx
	psmStmt  *sql.Stmt
	nodeStmt *sql.Stmt
	binStmt  *sql.Stmt
}

// NewDBWriter creates the tables in the database at path
func NewDBWriter(path string) (*DBWriter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	w := &DBWriter{db: db}
	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	w.tx, err = db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := w.prepareStatements(); err != nil {
		w.tx.Rollback()
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *DBWriter) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId INTEGER PRIMARY KEY,
		Version TEXT,
		Input TEXT,
		CreationDate TEXT,
		TargetFDR DOUBLE,
		Grouping TEXT,
		Threshold DOUBLE,
		PSMs INTEGER,
		AcceptedTargets INTEGER,
		AcceptedDecoys INTEGER
	);

	CREATE TABLE IF NOT EXISTS NodeTable (
		NodeId TEXT,
		RunId INTEGER REFERENCES RunTable(RunId),
		GroupLabel TEXT,
		Level INTEGER,
		State TEXT,
		Target DOUBLE,
		Decoy DOUBLE,
		Pi0 DOUBLE,
		Pi1 DOUBLE,
		Fallback TEXT,
		Threshold DOUBLE,
		AcceptedTarget DOUBLE,
		AcceptedDecoy DOUBLE,
		PooledFDR DOUBLE
	);

	CREATE TABLE IF NOT EXISTS BinTable (
		NodeId TEXT,
		RunId INTEGER REFERENCES RunTable(RunId),
		Series TEXT,
		BinId INTEGER,
		Midpoints TEXT,
		Target DOUBLE,
		Decoy DOUBLE,
		LocalFDR DOUBLE
	);

	CREATE TABLE IF NOT EXISTS PsmTable (
		RunId INTEGER REFERENCES RunTable(RunId),
		SpectrumId TEXT,
		Peptide TEXT,
		Charge INTEGER,
		Rank INTEGER,
		GroupLabel TEXT,
		Decoy BOOL,
		NodeId TEXT,
		LocalFDR DOUBLE,
		Accepted BOOL
	);
	`
	if _, err := w.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (w *DBWriter) prepareStatements() error {
	var err error
	w.nodeStmt, err = w.tx.Prepare(`
		INSERT INTO NodeTable (
			NodeId, RunId, GroupLabel, Level, State, Target, Decoy, Pi0, Pi1,
			Fallback, Threshold, AcceptedTarget, AcceptedDecoy, PooledFDR
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node statement: %w", err)
	}
	w.binStmt, err = w.tx.Prepare(`
		INSERT INTO BinTable (
			NodeId, RunId, Series, BinId, Midpoints, Target, Decoy, LocalFDR
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bin statement: %w", err)
	}
	w.psmStmt, err = w.tx.Prepare(`
		INSERT INTO PsmTable (
			RunId, SpectrumId, Peptide, Charge, Rank, GroupLabel, Decoy,
			NodeId, LocalFDR, Accepted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare PSM statement: %w", err)
	}
	return nil
}

// WriteRun stores a run with all its nodes, histogram bins and PSMs and
// returns the id of the run
func (w *DBWriter) WriteRun(s *Summary, c *fdr.Calculator, results []PSMResult) (int64, error) {
	res, err := w.tx.Exec(`
		INSERT INTO RunTable (Version, Input, CreationDate, TargetFDR, Grouping,
			Threshold, PSMs, AcceptedTargets, AcceptedDecoys)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Version, s.Input, s.Created.Format(runDateFormat), s.TargetFDR, s.Grouping,
		s.Threshold, s.PSMs, s.AcceptedTargets, s.AcceptedDecoys)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, n := range s.Nodes {
		var fallback interface{}
		if n.Fallback != "" {
			fallback = n.Fallback
		}
		_, err := w.nodeStmt.Exec(n.ID, runID, n.Group, n.Level, n.State, n.Target, n.Decoy,
			n.Pi0, n.Pi1, fallback, n.Threshold, n.AcceptedTarget, n.AcceptedDecoy, n.PooledFDR)
		if err != nil {
			return 0, fmt.Errorf("failed to insert node %s: %w", n.ID, err)
		}
	}

	err = c.EachBin(func(b fdr.BinRecord) error {
		var lfdr interface{}
		if b.LocalFDR >= 0 {
			lfdr = b.LocalFDR
		}
		_, err := w.binStmt.Exec(b.Node, runID, b.Series, b.BinID, joinFloats(b.Midpoints),
			b.Target, b.Decoy, lfdr)
		if err != nil {
			return fmt.Errorf("failed to insert bin %d of node %s: %w", b.BinID, b.Node, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, r := range results {
		var lfdr interface{}
		if r.Resolved {
			lfdr = r.LocalFDR
		}
		_, err := w.psmStmt.Exec(runID, r.PSM.SpectrumID, r.PSM.Peptide, r.PSM.Charge, r.PSM.Rank,
			r.PSM.Group, r.PSM.Decoy, r.PSM.StratumID(), lfdr, r.Accepted)
		if err != nil {
			return 0, fmt.Errorf("failed to insert PSM %s: %w", r.PSM.SpectrumID, err)
		}
	}
	return runID, nil
}

func joinFloats(v []float64) string {
	s := make([]string, len(v))
	for i, f := range v {
		s[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(s, ",")
}

func (w *DBWriter) closeStatements() {
	for _, stmt := range []*sql.Stmt{w.psmStmt, w.nodeStmt, w.binStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Close commits the transaction and closes the database
func (w *DBWriter) Close() error {
	w.closeStatements()
	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to commit: %w", err)
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Abort discards everything written and closes the database
func (w *DBWriter) Abort() error {
	w.closeStatements()
	w.tx.Rollback()
	return w.db.Close()
}
