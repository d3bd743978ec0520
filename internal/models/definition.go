package models

import "slices"

// CommandDef is a named, reusable command loaded from a definition file.
type CommandDef struct {
	Name             string   `yaml:"name"`
	Label            string   `yaml:"label"`
	Description      string   `yaml:"description"`
	Help             string   `yaml:"help"`
	Executable       string   `yaml:"executable"`
	Arguments        []string `yaml:"arguments"`
	WorkingDirectory string   `yaml:"working_directory"`
	Background       bool     `yaml:"background"`
	Failsafe         bool     `yaml:"failsafe"`
	SessionAction    string   `yaml:"session_action"`
}

// NewCommand builds a fresh execution command from the definition. Extra
// arguments are appended after the defined ones.
func (d *CommandDef) NewCommand(extraArgs ...string) *ExecutionCommand {
	var args []string
	if len(d.Arguments) > 0 || len(extraArgs) > 0 {
		args = append(slices.Clone(d.Arguments), extraArgs...)
	}

	c := NewExecutionCommandWithParams(nil, d.Executable, args, d.WorkingDirectory, d.Background, d.Failsafe)
	c.Label = d.Label
	if c.Label == "" {
		c.Label = d.Name
	}
	c.Description = d.Description
	c.Help = d.Help
	c.SessionAction = d.SessionAction
	return c
}
