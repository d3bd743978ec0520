package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/mpataki/execlog/internal/models"
	"github.com/mpataki/execlog/internal/runner"
)

// Runtime executes Lua scripts that orchestrate execution commands in a
// sandboxed environment
type Runtime struct {
	ctx    context.Context
	runner *runner.Runner
	logs   []string
	ids    []int

	// failReason is set when fail() is called
	failReason string
	failed     bool
}

// NewRuntime creates a new Lua runtime backed by r
func NewRuntime(ctx context.Context, r *runner.Runner) *Runtime {
	return &Runtime{
		ctx:    ctx,
		runner: r,
		logs:   make([]string, 0),
	}
}

// Execute runs the Lua script at scriptPath
func (r *Runtime) Execute(scriptPath string) error {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	return r.ExecuteString(string(script))
}

// ExecuteString runs a Lua script from source
func (r *Runtime) ExecuteString(script string) error {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	defer L.Close()
	L.SetContext(r.ctx)

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(script); err != nil {
		if r.failed {
			return fmt.Errorf("script failed: %s", r.failReason)
		}
		return fmt.Errorf("script execution failed: %w", err)
	}

	return nil
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	// Remove dangerous base functions
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Remove non-deterministic math functions
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

// registerAPI registers the execlog-specific API functions
func (r *Runtime) registerAPI(L *lua.LState) {
	L.SetGlobal("exec", L.NewFunction(r.luaExec))
	L.SetGlobal("report", L.NewFunction(r.luaReport))
	L.SetGlobal("log", L.NewFunction(r.luaLog))
	L.SetGlobal("fail", L.NewFunction(r.luaFail))
}

// luaExec implements the exec(executable, args?, opts?) API
func (r *Runtime) luaExec(L *lua.LState) int {
	executable := L.CheckString(1)
	argsTbl := L.OptTable(2, nil)
	opts := L.OptTable(3, nil)

	var args []string
	if argsTbl != nil {
		argsTbl.ForEach(func(_, v lua.LValue) {
			args = append(args, v.String())
		})
	}

	cmd := models.NewExecutionCommandWithParams(nil, executable, args, "", false, false)
	if opts != nil {
		cmd.Label = lua.LVAsString(opts.RawGetString("label"))
		cmd.Description = lua.LVAsString(opts.RawGetString("description"))
		cmd.WorkingDirectory = lua.LVAsString(opts.RawGetString("cwd"))
		cmd.SessionAction = lua.LVAsString(opts.RawGetString("session_action"))
		cmd.InBackground = lua.LVAsBool(opts.RawGetString("background"))
		cmd.IsFailsafe = lua.LVAsBool(opts.RawGetString("failsafe"))
	}

	if err := r.runner.Run(r.ctx, cmd); err != nil {
		L.RaiseError("failed to run %s: %v", executable, err)
		return 0
	}
	r.ids = append(r.ids, *cmd.ID)

	L.Push(r.commandToTable(L, cmd))
	return 1
}

// commandToTable converts the outcome of a command to a Lua table
func (r *Runtime) commandToTable(L *lua.LState, cmd *models.ExecutionCommand) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LNumber(*cmd.ID))
	L.SetField(tbl, "state", lua.LString(cmd.CurrentState.String()))
	L.SetField(tbl, "previous_state", lua.LString(cmd.PreviousState.String()))
	L.SetField(tbl, "ok", lua.LBool(cmd.CurrentState == models.StateSuccess))
	if cmd.ExitCode != nil {
		L.SetField(tbl, "exit_code", lua.LNumber(*cmd.ExitCode))
	}
	if cmd.Stdout != nil {
		L.SetField(tbl, "stdout", lua.LString(*cmd.Stdout))
	}
	if cmd.Stderr != nil {
		L.SetField(tbl, "stderr", lua.LString(*cmd.Stderr))
	}
	if cmd.ErrCode != nil {
		L.SetField(tbl, "err_code", lua.LNumber(*cmd.ErrCode))
		L.SetField(tbl, "errmsg", lua.LString(cmd.Errmsg))
	}
	return tbl
}

// luaReport implements the report(id) API
func (r *Runtime) luaReport(L *lua.LState) int {
	id := L.CheckInt(1)

	report, err := r.runner.Report(id)
	if err != nil {
		L.RaiseError("failed to load report for command %d: %v", id, err)
		return 0
	}

	L.Push(lua.LString(report))
	return 1
}

// luaLog implements the log(message) API
func (r *Runtime) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	r.logs = append(r.logs, message)
	return 0
}

// luaFail implements the fail(reason?) API
func (r *Runtime) luaFail(L *lua.LState) int {
	reason := L.OptString(1, "script failed")
	r.failReason = reason
	r.failed = true
	// Raise an error to stop execution
	L.RaiseError("fail: %s", reason)
	return 0
}

// GetLogs returns the logs collected during execution
func (r *Runtime) GetLogs() []string {
	return r.logs
}

// CommandIDs returns the ids of commands run by the script, in order
func (r *Runtime) CommandIDs() []int {
	return r.ids
}

// IsLuaScript checks if a file is a Lua script
func IsLuaScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}
