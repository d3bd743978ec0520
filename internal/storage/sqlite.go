package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mpataki/execlog/internal/diag"
	"github.com/mpataki/execlog/internal/models"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("command not found")
	// ErrStateConflict means the stored state was not one the update expected.
	ErrStateConflict = errors.New("command state changed")
)

// Each connection waits on locks held by other processes instead of
// failing with SQLITE_BUSY. WAL lets readers run alongside a writer.
const dsnPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Record is a stored command together with its bookkeeping columns.
type Record struct {
	Command     *models.ExecutionCommand
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	PID         *int
}

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+dsnPragmas)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		label TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		help TEXT NOT NULL DEFAULT '',
		plugin_api_help TEXT NOT NULL DEFAULT '',
		executable TEXT NOT NULL DEFAULT '',
		executable_uri TEXT NOT NULL DEFAULT '',
		arguments TEXT,
		working_directory TEXT NOT NULL DEFAULT '',
		in_background INTEGER NOT NULL DEFAULT 0,
		is_failsafe INTEGER NOT NULL DEFAULT 0,
		session_action TEXT NOT NULL DEFAULT '',
		is_plugin INTEGER NOT NULL DEFAULT 0,
		caller_creator TEXT,
		current_state TEXT NOT NULL DEFAULT 'Pre-Execution',
		previous_state TEXT NOT NULL DEFAULT 'Pre-Execution',
		stdout TEXT,
		stderr TEXT,
		exit_code INTEGER,
		err_code INTEGER,
		errmsg TEXT NOT NULL DEFAULT '',
		faults TEXT,
		pid INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_commands_state ON commands(current_state);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// columns mirrors the scan order in scanRecord
const columns = `id, created_at, started_at, completed_at, label, description, help, plugin_api_help,
	executable, executable_uri, arguments, working_directory, in_background, is_failsafe, session_action,
	is_plugin, caller_creator, current_state, previous_state, stdout, stderr, exit_code, err_code, errmsg, faults, pid`

// CreateCommand inserts the command and assigns its ID.
func (s *Storage) CreateCommand(cmd *models.ExecutionCommand) (int, error) {
	args, faults, caller, err := encode(cmd)
	if err != nil {
		return 0, err
	}

	result, err := s.db.Exec(
		`INSERT INTO commands (label, description, help, plugin_api_help, executable, executable_uri, arguments,
			working_directory, in_background, is_failsafe, session_action, is_plugin, caller_creator,
			current_state, previous_state, stdout, stderr, exit_code, err_code, errmsg, faults)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.Label, cmd.Description, cmd.Help, cmd.PluginAPIHelp, cmd.Executable, cmd.ExecutableURI, args,
		cmd.WorkingDirectory, cmd.InBackground, cmd.IsFailsafe, cmd.SessionAction, cmd.IsPluginCommand, caller,
		cmd.CurrentState.String(), cmd.PreviousState.String(), cmd.Stdout, cmd.Stderr, cmd.ExitCode,
		cmd.ErrCode, cmd.Errmsg, faults,
	)
	if err != nil {
		return 0, err
	}

	id64, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	id := int(id64)
	cmd.ID = &id
	return id, nil
}

// UpdateCommand writes every facet of an existing command.
func (s *Storage) UpdateCommand(cmd *models.ExecutionCommand) error {
	return s.update(cmd, nil)
}

// UpdateCommandIf writes cmd only while its stored state is one of from.
// It returns ErrStateConflict when the row is in any other state.
func (s *Storage) UpdateCommandIf(cmd *models.ExecutionCommand, from ...models.ExecutionState) error {
	if len(from) == 0 {
		return fmt.Errorf("no expected states given")
	}
	return s.update(cmd, from)
}

func (s *Storage) update(cmd *models.ExecutionCommand, from []models.ExecutionState) error {
	if cmd.ID == nil {
		return fmt.Errorf("command has no id")
	}

	args, faults, caller, err := encode(cmd)
	if err != nil {
		return err
	}

	query := `UPDATE commands SET label = ?, description = ?, help = ?, plugin_api_help = ?, executable = ?,
			executable_uri = ?, arguments = ?, working_directory = ?, in_background = ?, is_failsafe = ?,
			session_action = ?, is_plugin = ?, caller_creator = ?, current_state = ?, previous_state = ?,
			stdout = ?, stderr = ?, exit_code = ?, err_code = ?, errmsg = ?, faults = ?
		 WHERE id = ?`
	params := []any{
		cmd.Label, cmd.Description, cmd.Help, cmd.PluginAPIHelp, cmd.Executable,
		cmd.ExecutableURI, args, cmd.WorkingDirectory, cmd.InBackground, cmd.IsFailsafe,
		cmd.SessionAction, cmd.IsPluginCommand, caller, cmd.CurrentState.String(), cmd.PreviousState.String(),
		cmd.Stdout, cmd.Stderr, cmd.ExitCode, cmd.ErrCode, cmd.Errmsg, faults,
		*cmd.ID,
	}
	if len(from) > 0 {
		query += ` AND current_state IN (?` + strings.Repeat(", ?", len(from)-1) + `)`
		for _, state := range from {
			params = append(params, state.String())
		}
	}

	result, err := s.db.Exec(query, params...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil || n > 0 {
		return err
	}

	if len(from) > 0 {
		var state string
		err := s.db.QueryRow(`SELECT current_state FROM commands WHERE id = ?`, *cmd.ID).Scan(&state)
		if err == nil {
			return fmt.Errorf("command %d is %s: %w", *cmd.ID, state, ErrStateConflict)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}
	return fmt.Errorf("command %d: %w", *cmd.ID, ErrNotFound)
}

func (s *Storage) MarkStarted(id int, at time.Time) error {
	_, err := s.db.Exec(`UPDATE commands SET started_at = ? WHERE id = ?`, at, id)
	return err
}

func (s *Storage) MarkCompleted(id int, at time.Time) error {
	_, err := s.db.Exec(`UPDATE commands SET completed_at = ? WHERE id = ?`, at, id)
	return err
}

func (s *Storage) UpdateCommandPID(id int, pid int) error {
	_, err := s.db.Exec(`UPDATE commands SET pid = ? WHERE id = ?`, pid, id)
	return err
}

func (s *Storage) GetCommand(id int) (*Record, error) {
	row := s.db.QueryRow(`SELECT `+columns+` FROM commands WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("command %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Storage) ListCommands(limit int) ([]*Record, error) {
	rows, err := s.db.Query(`SELECT `+columns+` FROM commands ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *Storage) ListCommandsByState(state models.ExecutionState) ([]*Record, error) {
	rows, err := s.db.Query(`SELECT `+columns+` FROM commands WHERE current_state = ? ORDER BY id DESC`, state.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *Storage) DeleteCommand(id int) error {
	result, err := s.db.Exec(`DELETE FROM commands WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("command %d: %w", id, ErrNotFound)
	}
	return nil
}

func encode(cmd *models.ExecutionCommand) (args, faults, caller *string, err error) {
	if cmd.Arguments != nil {
		data, err := json.Marshal(cmd.Arguments)
		if err != nil {
			return nil, nil, nil, err
		}
		str := string(data)
		args = &str
	}

	if cmd.Faults != nil {
		data, err := json.Marshal(diag.Traces(cmd.Faults))
		if err != nil {
			return nil, nil, nil, err
		}
		str := string(data)
		faults = &str
	}

	if cmd.PluginCaller != nil {
		creator := cmd.PluginCaller.Creator()
		caller = &creator
	}

	return args, faults, caller, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	cmd := models.NewExecutionCommand()
	rec.Command = cmd

	var id int
	var startedAt, completedAt sql.NullTime
	var args, caller, stdout, stderr, faults sql.NullString
	var exitCode, errCode, pid sql.NullInt64
	var currentState, previousState string

	err := row.Scan(
		&id, &rec.CreatedAt, &startedAt, &completedAt, &cmd.Label, &cmd.Description, &cmd.Help, &cmd.PluginAPIHelp,
		&cmd.Executable, &cmd.ExecutableURI, &args, &cmd.WorkingDirectory, &cmd.InBackground, &cmd.IsFailsafe,
		&cmd.SessionAction, &cmd.IsPluginCommand, &caller, &currentState, &previousState, &stdout, &stderr,
		&exitCode, &errCode, &cmd.Errmsg, &faults, &pid,
	)
	if err != nil {
		return nil, err
	}

	cmd.ID = &id

	if startedAt.Valid {
		rec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	if args.Valid {
		if err := json.Unmarshal([]byte(args.String), &cmd.Arguments); err != nil {
			return nil, fmt.Errorf("failed to decode arguments of command %d: %w", id, err)
		}
	}
	if caller.Valid {
		cmd.PluginCaller = models.CallerName(caller.String)
	}
	if state, ok := models.ParseExecutionState(currentState); ok {
		cmd.CurrentState = state
	}
	if state, ok := models.ParseExecutionState(previousState); ok {
		cmd.PreviousState = state
	}
	if stdout.Valid {
		cmd.Stdout = &stdout.String
	}
	if stderr.Valid {
		cmd.Stderr = &stderr.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		cmd.ExitCode = &code
	}
	if errCode.Valid {
		code := int(errCode.Int64)
		cmd.ErrCode = &code
	}
	if faults.Valid {
		var traces []string
		if err := json.Unmarshal([]byte(faults.String), &traces); err != nil {
			return nil, fmt.Errorf("failed to decode faults of command %d: %w", id, err)
		}
		cmd.Faults = make([]error, 0, len(traces))
		for _, trace := range traces {
			cmd.Faults = append(cmd.Faults, errors.New(trace))
		}
	}
	if pid.Valid {
		p := int(pid.Int64)
		rec.PID = &p
	}

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FormatTimeAgo formats t relative to now for list output.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
