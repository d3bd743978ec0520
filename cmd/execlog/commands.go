package main

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpataki/execlog/internal/catalog"
	execLua "github.com/mpataki/execlog/internal/lua"
	"github.com/mpataki/execlog/internal/models"
	"github.com/mpataki/execlog/internal/storage"
)

type runOptions struct {
	label         string
	cwd           string
	background    bool
	failsafe      bool
	sessionAction string
	caller        string
	forceExec     bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <definition|executable> [args...]",
		Short: "Run a command and record it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var defs map[string]*models.CommandDef
			if !opts.forceExec {
				defs, err = catalog.LoadAll(a.cfg.CommandDirs())
				if err != nil {
					return err
				}
			}

			c, err := buildCommand(defs, args, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.runner.Run(ctx, c); err != nil {
				return fmt.Errorf("failed to run command: %w", err)
			}

			fmt.Println(c.String())

			if c.IsInternalFailure() {
				return fmt.Errorf("command #%d failed: %s", *c.ID, c.Errmsg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.label, "label", "", "Human-readable label")
	cmd.Flags().StringVar(&opts.cwd, "cwd", "", "Working directory (default: the command's workspace)")
	cmd.Flags().BoolVar(&opts.background, "background", false, "Mark the command as a background command")
	cmd.Flags().BoolVar(&opts.failsafe, "failsafe", false, "Run under the configured shell with a minimal environment")
	cmd.Flags().StringVar(&opts.sessionAction, "session-action", "", "Session action to record")
	cmd.Flags().StringVar(&opts.caller, "caller", "", "Record the command as plugin-originated with this caller")
	cmd.Flags().BoolVar(&opts.forceExec, "exec", false, "Treat the first argument as an executable, not a definition")
	// Everything after the first positional argument belongs to the command
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// buildCommand turns the run arguments into a command, from a definition
// when the first argument names one and from a bare executable otherwise.
func buildCommand(defs map[string]*models.CommandDef, args []string, opts runOptions) (*models.ExecutionCommand, error) {
	var c *models.ExecutionCommand

	if def, ok := defs[args[0]]; ok && !opts.forceExec {
		if err := catalog.Validate(def); err != nil {
			return nil, err
		}
		c = def.NewCommand(args[1:]...)
	} else {
		var rest []string
		if len(args) > 1 {
			rest = slices.Clone(args[1:])
		}
		c = models.NewExecutionCommandWithParams(nil, args[0], rest, "", false, false)
	}

	if opts.label != "" {
		c.Label = opts.label
	}
	if opts.cwd != "" {
		c.WorkingDirectory = opts.cwd
	}
	if opts.background {
		c.InBackground = true
	}
	if opts.failsafe {
		c.IsFailsafe = true
	}
	if opts.sessionAction != "" {
		c.SessionAction = opts.sessionAction
	}
	if opts.caller != "" {
		c.IsPluginCommand = true
		c.PluginCaller = models.CallerName(opts.caller)
	}

	return c, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid command ID: %w", err)
	}
	return id, nil
}

func newShowCommand() *cobra.Command {
	var detailed, markdown, input, output bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a recorded command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if markdown {
				report, err := a.runner.Report(id)
				if err != nil {
					return fmt.Errorf("failed to get command: %w", err)
				}
				fmt.Print(report)
				return nil
			}

			rec, err := a.runner.GetCommand(id)
			if err != nil {
				return fmt.Errorf("failed to get command: %w", err)
			}

			c := rec.Command
			switch {
			case detailed:
				fmt.Println(c.DetailedLog())
			case input:
				fmt.Println(c.InputLog(models.IgnoreNull))
			case output:
				fmt.Println(c.OutputLog(models.IgnoreNull))
			default:
				fmt.Println(c.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show every field, including absent ones")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Show the markdown report")
	cmd.Flags().BoolVar(&input, "input", false, "Show only the input view")
	cmd.Flags().BoolVar(&output, "output", false, "Show the output view")
	cmd.MarkFlagsMutuallyExclusive("detailed", "markdown", "input", "output")
	return cmd
}

func newListCommand() *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var records []*storage.Record
			if state != "" {
				s, ok := models.ParseExecutionState(state)
				if !ok {
					return fmt.Errorf("unknown state %q", state)
				}
				records, err = a.runner.ListCommandsByState(s)
			} else {
				records, err = a.runner.ListCommands(limit)
			}
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No commands found.")
				return nil
			}

			for _, rec := range records {
				c := rec.Command
				label := c.Label
				if label == "" {
					label = c.Executable
				}
				fmt.Printf("#%d %s [%s] %s\n",
					*c.ID, truncate(label, 40), c.CurrentState, storage.FormatTimeAgo(rec.CreatedAt))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Only list commands in this state")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of commands to list")
	return cmd
}

func newKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <id>",
		Short: "Kill an executing command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.runner.Kill(id); err != nil {
				return fmt.Errorf("failed to kill command: %w", err)
			}

			fmt.Printf("Killed command #%d\n", id)
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a command and its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.runner.DeleteCommand(id); err != nil {
				return fmt.Errorf("failed to delete command: %w", err)
			}

			fmt.Printf("Deleted command #%d\n", id)
			return nil
		},
	}
}

func newScriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "script <file.lua>",
		Short: "Run a Lua script that orchestrates commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !execLua.IsLuaScript(path) {
				return fmt.Errorf("not a Lua script: %s", path)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt := execLua.NewRuntime(ctx, a.runner)
			runErr := rt.Execute(path)

			for _, line := range rt.GetLogs() {
				fmt.Println(line)
			}
			for _, id := range rt.CommandIDs() {
				fmt.Printf("Ran command #%d\n", id)
			}

			if runErr != nil {
				return fmt.Errorf("script failed: %w", runErr)
			}
			return nil
		},
	}
}

func newDefsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "defs",
		Short: "List command definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			defs, err := catalog.LoadAll(a.cfg.CommandDirs())
			if err != nil {
				return err
			}

			if len(defs) == 0 {
				fmt.Println("No definitions found.")
				return nil
			}

			names := make([]string, 0, len(defs))
			for name := range defs {
				names = append(names, name)
			}
			slices.Sort(names)

			for _, name := range names {
				def := defs[name]
				fmt.Printf("%-20s %s\n", name, truncate(def.Description, 60))
			}
			return nil
		},
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
