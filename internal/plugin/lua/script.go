package lua

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/schema"
)

// Global function names looked up in a script.
const (
	FuncRegisterArguments = "register_arguments"
	FuncHandle            = "handle"
)

// Ext is the file extension of script plugins.
const Ext = ".lua"

// removedGlobals are base library functions that reach outside the sandbox.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// Script is one loaded script plugin.
//
// gopher-lua states are not goroutine-safe; every call into the state holds
// mu.
type Script struct {
	name   string
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	L      *lua.LState
	values *schema.Values
	closed bool

	hasArguments bool
	hasHandler   bool
}

// Load compiles and runs the script at path. The plugin is named after the
// file without its extension.
func Load(path string, logger *slog.Logger) (*Script, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	s := &Script{
		name:   name,
		path:   path,
		logger: logger.With("plugin", name),
		L:      lua.NewState(lua.Options{SkipOpenLibs: true}),
	}
	s.openSafeLibraries()

	src, err := os.ReadFile(path)
	if err != nil {
		s.L.Close()
		return nil, errors.Wrapf(err, errors.CodePluginLoad, "read lua plugin %s", path)
	}

	if err := s.protect(func() error { return s.L.DoString(string(src)) }); err != nil {
		s.L.Close()
		return nil, errors.Wrapf(err, errors.CodePluginLoad, "run lua plugin %s", path)
	}

	for _, global := range []string{FuncRegisterArguments, FuncHandle} {
		switch fn := s.L.GetGlobal(global); fn.Type() {
		case lua.LTNil:
		case lua.LTFunction:
			if global == FuncHandle {
				s.hasHandler = true
			} else {
				s.hasArguments = true
			}
		default:
			s.L.Close()
			return nil, errors.PluginLoadf("lua plugin %s: %s must be a function, got %s", path, global, fn.Type())
		}
	}

	return s, nil
}

// openSafeLibraries opens the base, table, string and math libraries and
// strips the loaders from the base library.
func (s *Script) openSafeLibraries() {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		s.L.Push(s.L.NewFunction(lib.fn))
		s.L.Push(lua.LString(lib.name))
		s.L.Call(1, 0)
	}

	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.L.SetGlobal("log", s.L.NewFunction(s.luaLog))
}

// luaLog implements log(message [, level]).
func (s *Script) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	level := slog.LevelInfo
	if L.GetTop() >= 2 {
		switch strings.ToLower(L.CheckString(2)) {
		case "debug":
			level = slog.LevelDebug
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s.logger.Log(ctx, level, msg)
	return 0
}

// Name returns the plugin name.
func (s *Script) Name() string {
	return s.name
}

// Path returns the script file.
func (s *Script) Path() string {
	return s.path
}

// HasArguments reports whether the script defines register_arguments.
func (s *Script) HasArguments() bool {
	return s.hasArguments
}

// HasHandler reports whether the script defines handle.
func (s *Script) HasHandler() bool {
	return s.hasHandler
}

// RegisterArguments calls register_arguments with a schema table whose
// methods register options in scope.
func (s *Script) RegisterArguments(scope *schema.Scope) error {
	if !s.hasArguments {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStateClosed
	}

	// Registration errors carry their own code; keep the first one so it is
	// not flattened into a Lua error string.
	var regErr error
	tbl := s.schemaTable(scope, &regErr)

	err := s.protect(func() error {
		return s.L.CallByParam(lua.P{
			Fn:      s.L.GetGlobal(FuncRegisterArguments),
			NRet:    0,
			Protect: true,
		}, tbl)
	})
	if regErr != nil {
		return regErr
	}
	if err != nil {
		return errors.Wrapf(err, errors.CodePluginLoad, "%s: register_arguments", s.name)
	}
	return nil
}

// schemaTable builds the table handed to register_arguments. Methods accept
// both schema.string(...) and schema:string(...).
func (s *Script) schemaTable(scope *schema.Scope, regErr *error) *lua.LTable {
	tbl := s.L.NewTable()

	fail := func(L *lua.LState, err error) int {
		if *regErr == nil {
			*regErr = err
		}
		L.RaiseError("%s", err.Error())
		return 0
	}

	// base returns the index of the first real argument.
	base := func(L *lua.LState) int {
		if L.Get(1) == tbl {
			return 2
		}
		return 1
	}

	usage := func(L *lua.LState, i int) string {
		return L.OptString(i, "")
	}

	funcs := map[string]lua.LGFunction{
		"string": func(L *lua.LState) int {
			i := base(L)
			if err := scope.String(L.CheckString(i), L.OptString(i+1, ""), usage(L, i+2)); err != nil {
				return fail(L, err)
			}
			return 0
		},
		"int": func(L *lua.LState) int {
			i := base(L)
			if err := scope.Int(L.CheckString(i), L.OptInt(i+1, 0), usage(L, i+2)); err != nil {
				return fail(L, err)
			}
			return 0
		},
		"bool": func(L *lua.LState) int {
			i := base(L)
			if err := scope.Bool(L.CheckString(i), L.OptBool(i+1, false), usage(L, i+2)); err != nil {
				return fail(L, err)
			}
			return 0
		},
		"float": func(L *lua.LState) int {
			i := base(L)
			if err := scope.Float(L.CheckString(i), float64(L.OptNumber(i+1, 0)), usage(L, i+2)); err != nil {
				return fail(L, err)
			}
			return 0
		},
		"duration": func(L *lua.LState) int {
			i := base(L)
			def, err := luaDuration(L.Get(i + 1))
			if err != nil {
				return fail(L, errors.Validationf("%s: duration default: %v", s.name, err))
			}
			if err := scope.Duration(L.CheckString(i), def, usage(L, i+2)); err != nil {
				return fail(L, err)
			}
			return 0
		},
		"required": func(L *lua.LState) int {
			if err := scope.Required(L.CheckString(base(L))); err != nil {
				return fail(L, err)
			}
			return 0
		},
	}
	s.L.SetFuncs(tbl, funcs)
	return tbl
}

// luaDuration accepts nil, a number of seconds or a Go duration string.
func luaDuration(v lua.LValue) (time.Duration, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return 0, nil
	case lua.LNumber:
		return time.Duration(float64(val) * float64(time.Second)), nil
	case lua.LString:
		return time.ParseDuration(string(val))
	default:
		return 0, fmt.Errorf("expected seconds or a duration string, got %s", v.Type())
	}
}

// Init keeps the parsed values for the options table passed to handle.
func (s *Script) Init(_ context.Context, values *schema.Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
	return nil
}

// Handle calls handle(event, options). The context bounds the script run.
func (s *Script) Handle(ctx context.Context, ev domain.FileEvent) error {
	if !s.hasHandler {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStateClosed
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	err := s.protect(func() error {
		return s.L.CallByParam(lua.P{
			Fn:      s.L.GetGlobal(FuncHandle),
			NRet:    2,
			Protect: true,
		}, s.eventTable(ev), s.optionsTable())
	})
	if err != nil {
		return errors.Wrapf(err, errors.CodeAction, "%s: handle", s.name)
	}

	ok, msg := s.L.Get(-2), s.L.Get(-1)
	s.L.Pop(2)
	if ok == lua.LFalse || (ok == lua.LNil && msg != lua.LNil) {
		return errors.Wrapf(fmt.Errorf("%s", lua.LVAsString(msg)), errors.CodeAction, "%s: handle", s.name)
	}
	return nil
}

// eventTable converts a FileEvent for the script.
func (s *Script) eventTable(ev domain.FileEvent) *lua.LTable {
	t := s.L.NewTable()
	t.RawSetString("id", lua.LString(ev.ID))
	t.RawSetString("path", lua.LString(ev.Path))
	t.RawSetString("name", lua.LString(ev.Name))
	t.RawSetString("content", lua.LString(ev.Content))
	t.RawSetString("digest", lua.LString(ev.Digest))
	t.RawSetString("size", lua.LNumber(ev.File.Size))
	t.RawSetString("modified", lua.LNumber(ev.File.ModifiedUnix()))
	t.RawSetString("mode", lua.LString(ev.File.Mode.String()))
	t.RawSetString("hostname", lua.LString(ev.Machine.Hostname))
	t.RawSetString("ip", lua.LString(ev.Machine.IP))
	t.RawSetString("os", lua.LString(ev.Machine.OS))
	t.RawSetString("detected_at", lua.LNumber(float64(ev.DetectedAt.UnixNano())/float64(time.Second)))
	return t
}

// optionsTable exposes the values of the options this script registered.
// Durations are passed as seconds.
func (s *Script) optionsTable() *lua.LTable {
	t := s.L.NewTable()
	if s.values == nil {
		return t
	}

	for _, name := range s.values.Owned(s.name) {
		var v lua.LValue
		switch s.values.KindOf(name) {
		case schema.KindInt:
			v = lua.LNumber(s.values.Int(name))
		case schema.KindBool:
			v = lua.LBool(s.values.Bool(name))
		case schema.KindFloat:
			v = lua.LNumber(s.values.Float(name))
		case schema.KindDuration:
			v = lua.LNumber(s.values.Duration(name).Seconds())
		default:
			v = lua.LString(s.values.String(name))
		}
		t.RawSetString(name, v)
	}
	return t
}

// protect converts a Go panic escaping the state into an error.
func (s *Script) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close releases the Lua state.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.L.Close()
	}
	return nil
}
