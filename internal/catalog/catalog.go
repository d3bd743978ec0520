package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/execlog/internal/models"
	"gopkg.in/yaml.v3"
)

func Parse(path string) (*models.CommandDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}

	var def models.CommandDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition YAML: %w", err)
	}

	return &def, nil
}

// LoadAll loads definitions from dirs in order. A name defined in an
// earlier directory wins over the same name in a later one.
func LoadAll(dirs []string) (map[string]*models.CommandDef, error) {
	defs := make(map[string]*models.CommandDef)

	for _, dir := range dirs {
		if err := loadFromDir(dir, defs); err != nil {
			// Skip directories that don't exist
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return defs, nil
}

func loadFromDir(dir string, defs map[string]*models.CommandDef) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		def, err := Parse(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		// Use name from file, or filename without extension
		if def.Name == "" {
			def.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}

		if err := Validate(def); err != nil {
			return fmt.Errorf("invalid definition %s: %w", path, err)
		}

		if _, exists := defs[def.Name]; exists {
			continue
		}
		defs[def.Name] = def
	}

	return nil
}

func Validate(def *models.CommandDef) error {
	if def.Name == "" {
		return fmt.Errorf("definition must have a name")
	}

	if strings.ContainsAny(def.Name, " \t/") {
		return fmt.Errorf("definition name %q must not contain whitespace or slashes", def.Name)
	}

	if def.Executable == "" && !def.Failsafe {
		return fmt.Errorf("definition %q must have an executable", def.Name)
	}

	for i, arg := range def.Arguments {
		if strings.ContainsRune(arg, 0) {
			return fmt.Errorf("argument %d of %q contains a NUL byte", i+1, def.Name)
		}
	}

	return nil
}
