package nxload

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	// sqlx does not know the modernc driver name
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// ConnectToDatabase opens the report database. driver is one of mysql,
// postgres or sqlite; for sqlite dbname is the path of the database file.
func ConnectToDatabase(driver string, user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	var dbURI string
	switch driver {
	case "mysql", "":
		driver = "mysql"
		port := "3306"
		dbURI = fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	case "postgres":
		dbURI = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, pass, host, dbname)
	case "sqlite":
		dbURI = dbname + "?_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	db, err := sqlx.Connect(driver, dbURI)
	return db, err
}

// LoadReport summarizes one load for bookkeeping. It never contains event
// data.
type LoadReport struct {
	ReportID     string `db:"report_id"`
	FileName     string `db:"file_name"`
	Root         string `db:"root"`
	NumElements  int    `db:"num_elements"`
	NumEvents    int    `db:"num_events"`
	HasPositions bool   `db:"has_positions"`
	NumRejected  int    `db:"num_rejected"`
	DurationMs   int64  `db:"duration_ms"`
	// Unix time in milliseconds, portable across the three drivers
	LoadedAt    int64             `db:"loaded_at"`
	Diagnostics []DiagnosticEntry `db:"-"`
}

type DiagnosticEntry struct {
	ReportID string `db:"report_id"`
	Kind     string `db:"kind"`
	Path     string `db:"path"`
	Message  string `db:"message"`
}

func NewLoadReport(fileName string, root string, result *Result, diags Diagnostics, elapsed time.Duration) LoadReport {
	report := LoadReport{
		ReportID:    uuid.NewString(),
		FileName:    fileName,
		Root:        root,
		NumRejected: len(diags.OfKind(MalformedSource)),
		DurationMs:  elapsed.Milliseconds(),
		LoadedAt:    time.Now().UnixMilli(),
		Diagnostics: make([]DiagnosticEntry, len(diags)),
	}
	if result != nil && result.Detector != nil {
		report.NumElements = result.Detector.NumElements()
		report.NumEvents = result.Detector.NumEvents()
		report.HasPositions = result.Detector.HasPositions()
	}
	for i, diag := range diags {
		report.Diagnostics[i] = DiagnosticEntry{
			ReportID: report.ReportID,
			Kind:     diag.Kind.String(),
			Path:     diag.Path,
			Message:  diag.Message,
		}
	}
	return report
}

// ReportStore keeps load reports in a SQL database.
type ReportStore struct {
	db *sqlx.DB
}

func NewReportStore(db *sqlx.DB) *ReportStore {
	return &ReportStore{db: db}
}

var reportSchema = []string{
	`CREATE TABLE IF NOT EXISTS load_reports (
		report_id VARCHAR(36) PRIMARY KEY,
		file_name VARCHAR(1024) NOT NULL,
		root VARCHAR(1024) NOT NULL,
		num_elements BIGINT NOT NULL,
		num_events BIGINT NOT NULL,
		has_positions BOOLEAN NOT NULL,
		num_rejected INTEGER NOT NULL,
		duration_ms BIGINT NOT NULL,
		loaded_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS load_diagnostics (
		report_id VARCHAR(36) NOT NULL,
		kind VARCHAR(64) NOT NULL,
		path VARCHAR(1024) NOT NULL,
		message TEXT NOT NULL
	)`,
}

func (s *ReportStore) EnsureSchema() error {
	for _, statement := range reportSchema {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("error creating report tables: %w", err)
		}
	}
	return nil
}

// Save writes the report and its diagnostics in one transaction.
func (s *ReportStore) Save(report LoadReport) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	query := `INSERT INTO load_reports (report_id, file_name, root, num_elements, num_events,
		has_positions, num_rejected, duration_ms, loaded_at)
		VALUES (:report_id, :file_name, :root, :num_elements, :num_events,
		:has_positions, :num_rejected, :duration_ms, :loaded_at)`
	if _, err := tx.NamedExec(query, report); err != nil {
		return errors.Join(fmt.Errorf("error inserting load report: %w", err), rollback(tx))
	}

	query = `INSERT INTO load_diagnostics (report_id, kind, path, message)
		VALUES (:report_id, :kind, :path, :message)`
	for _, entry := range report.Diagnostics {
		if _, err := tx.NamedExec(query, entry); err != nil {
			return errors.Join(fmt.Errorf("error inserting diagnostic: %w", err), rollback(tx))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing load report: %w", err)
	}
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Load report %s saved with %d diagnostics", report.ReportID, len(report.Diagnostics))
		logger.Info(message, "database")
	}
	return nil
}

func rollback(tx *sqlx.Tx) error {
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("error rolling back transaction: %w", err)
	}
	return nil
}

// Reports returns the reports stored for fileName, oldest first, with
// their diagnostics.
func (s *ReportStore) Reports(fileName string) ([]LoadReport, error) {
	query := s.db.Rebind(`SELECT report_id, file_name, root, num_elements, num_events,
		has_positions, num_rejected, duration_ms, loaded_at
		FROM load_reports WHERE file_name = ? ORDER BY loaded_at`)
	rows, err := s.db.Queryx(query, fileName)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	reports := make([]LoadReport, 0)
	for rows.Next() {
		report := LoadReport{}
		if err := rows.StructScan(&report); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading load reports: %w", err)
	}

	query = s.db.Rebind(`SELECT report_id, kind, path, message FROM load_diagnostics WHERE report_id = ?`)
	for i := range reports {
		entries := make([]DiagnosticEntry, 0)
		if err := s.db.Select(&entries, query, reports[i].ReportID); err != nil {
			return nil, fmt.Errorf("error querying diagnostics: %w", err)
		}
		reports[i].Diagnostics = entries
	}
	return reports, nil
}
