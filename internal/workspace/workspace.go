package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	reportFile   = "report.md"
	logFile      = "command.log"
	metadataFile = "command.json"
)

// Workspace is the per-command directory holding its scratch working
// directory and rendered reports.
type Workspace struct {
	Path    string
	WorkDir string
}

type Metadata struct {
	CommandID  int       `json:"command_id"`
	Label      string    `json:"label"`
	Executable string    `json:"executable"`
	Arguments  []string  `json:"arguments"`
	State      string    `json:"state"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func pathFor(baseDir string, commandID int) string {
	return filepath.Join(baseDir, fmt.Sprintf("cmd-%d", commandID))
}

func Create(baseDir string, commandID int) (*Workspace, error) {
	path := pathFor(baseDir, commandID)

	w := &Workspace{
		Path:    path,
		WorkDir: filepath.Join(path, "work"),
	}

	if err := os.MkdirAll(w.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	return w, nil
}

func Open(baseDir string, commandID int) (*Workspace, error) {
	path := pathFor(baseDir, commandID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("workspace for command %d does not exist", commandID)
	}

	return &Workspace{
		Path:    path,
		WorkDir: filepath.Join(path, "work"),
	}, nil
}

func (w *Workspace) WriteMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal command metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(w.Path, metadataFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", metadataFile, err)
	}

	return nil
}

func (w *Workspace) ReadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(w.Path, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", metadataFile, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", metadataFile, err)
	}

	return &meta, nil
}

func (w *Workspace) WriteReport(markdown string) error {
	if err := os.WriteFile(filepath.Join(w.Path, reportFile), []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", reportFile, err)
	}
	return nil
}

func (w *Workspace) ReadReport() (string, error) {
	data, err := os.ReadFile(filepath.Join(w.Path, reportFile))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", reportFile, err)
	}
	return string(data), nil
}

func (w *Workspace) WriteLog(detailed string) error {
	if err := os.WriteFile(filepath.Join(w.Path, logFile), []byte(detailed+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", logFile, err)
	}
	return nil
}

func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Path)
}
