package lua

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/aescanero/capo/pkg/domain"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// ErrorCodeScriptFailed is used when a script reports failure without a code
const ErrorCodeScriptFailed = "SCRIPT_FAILED"

const entryPoint = "execute"

// maxTableDepth bounds how deeply nested a returned table may be
const maxTableDepth = 100

// Config configures a Lua capability. Exactly one of Script or File is set.
type Config struct {
	Script string `json:"script"`
	File   string `json:"file"`
}

// Capability runs a Lua script's global execute(tenant_id, params) function.
//
// The script may return a table with the fields success, data, record_count,
// error and error_code to report a structured result. Any other return value
// is treated as the result data.
type Capability struct {
	name  string
	proto *lua.FunctionProto
}

// New compiles the configured script and checks that it defines execute
func New(name string, cfg Config) (*Capability, error) {
	source, chunkName, err := loadSource(name, cfg)
	if err != nil {
		return nil, err
	}

	chunk, err := parse.Parse(strings.NewReader(source), chunkName)
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	proto, err := lua.Compile(chunk, chunkName)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	c := &Capability{name: name, proto: proto}

	lState := c.newState()
	defer lState.Close()
	if _, err := c.load(lState); err != nil {
		return nil, err
	}

	return c, nil
}

func loadSource(name string, cfg Config) (string, string, error) {
	switch {
	case cfg.Script != "" && cfg.File != "":
		return "", "", fmt.Errorf("script and file are mutually exclusive")
	case cfg.Script != "":
		return cfg.Script, name, nil
	case cfg.File != "":
		absPath, err := filepath.Abs(cfg.File)
		if err != nil {
			return "", "", fmt.Errorf("script path: %w", err)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return "", "", fmt.Errorf("read script: %w", err)
		}
		return string(data), absPath, nil
	default:
		return "", "", fmt.Errorf("script or file is required")
	}
}

// Execute runs the script in a fresh interpreter bound to ctx
func (c *Capability) Execute(ctx context.Context, tenantID int, parameters json.RawMessage) (*domain.CapabilityResult, error) {
	lState := c.newState()
	defer lState.Close()

	lState.SetContext(ctx)

	fn, err := c.load(lState)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("load script: %w", ctxErr)
		}
		return nil, err
	}

	params, err := decodeParameters(lState, parameters)
	if err != nil {
		return nil, err
	}

	if err := lState.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LNumber(tenantID), params); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s(): %w", entryPoint, ctxErr)
		}
		return nil, fmt.Errorf("%s(): %w", entryPoint, err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	return toResult(ret)
}

// newState opens the libraries scripts may use. File loading is removed.
func (c *Capability) newState() *lua.LState {
	lState := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		lState.Push(lState.NewFunction(lib.open))
		lState.Push(lua.LString(lib.name))
		lState.Call(1, 0)
	}
	lState.SetGlobal("dofile", lua.LNil)
	lState.SetGlobal("loadfile", lua.LNil)
	return lState
}

// load runs the compiled chunk and returns the entry point
func (c *Capability) load(lState *lua.LState) (*lua.LFunction, error) {
	lState.Push(lState.NewFunctionFromProto(c.proto))
	if err := lState.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal(entryPoint)
	if fn.Type() == lua.LTNil {
		return nil, fmt.Errorf("script must define global function %s(tenant_id, params)", entryPoint)
	}
	lfn, ok := fn.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s must be a function, got %s", entryPoint, fn.Type().String())
	}
	return lfn, nil
}

func decodeParameters(lState *lua.LState, parameters json.RawMessage) (lua.LValue, error) {
	if len(parameters) == 0 {
		return lState.NewTable(), nil
	}
	var value interface{}
	if err := json.Unmarshal(parameters, &value); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return toLua(lState, value), nil
}

func toResult(ret lua.LValue) (*domain.CapabilityResult, error) {
	if tbl, ok := ret.(*lua.LTable); ok {
		if success, ok := tbl.RawGetString("success").(lua.LBool); ok {
			return structuredResult(tbl, bool(success))
		}
	}

	data, err := encodeData(ret)
	if err != nil {
		return nil, err
	}
	return domain.SuccessResult(data, nil), nil
}

func structuredResult(tbl *lua.LTable, success bool) (*domain.CapabilityResult, error) {
	if !success {
		code := ErrorCodeScriptFailed
		if v, ok := tbl.RawGetString("error_code").(lua.LString); ok && v != "" {
			code = string(v)
		}
		message := ""
		if v := tbl.RawGetString("error"); v != lua.LNil {
			message = v.String()
		}
		return domain.FailureResult(code, message), nil
	}

	data, err := encodeData(tbl.RawGetString("data"))
	if err != nil {
		return nil, err
	}

	var count *int
	if n, ok := tbl.RawGetString("record_count").(lua.LNumber); ok {
		v := int(n)
		count = &v
	}
	return domain.SuccessResult(data, count), nil
}

func encodeData(value lua.LValue) (json.RawMessage, error) {
	if value == lua.LNil {
		return nil, nil
	}
	converted, err := fromLua(value, make(map[*lua.LTable]bool), 0)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	data, err := json.Marshal(converted)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

func toLua(lState *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []interface{}:
		tbl := lState.CreateTable(len(v), 0)
		for _, item := range v {
			tbl.Append(toLua(lState, item))
		}
		return tbl
	case map[string]interface{}:
		tbl := lState.CreateTable(0, len(v))
		for key, item := range v {
			tbl.RawSetString(key, toLua(lState, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// fromLua converts a Lua value to a JSON-encodable value. Tables whose keys
// are exactly 1..n become arrays; an empty table becomes an empty array.
// Tables on the current path are tracked in visiting so self references
// are reported instead of recursed into.
func fromLua(value lua.LValue, visiting map[*lua.LTable]bool, depth int) (interface{}, error) {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		return tableToGo(v, visiting, depth)
	default:
		return v.String(), nil
	}
}

func tableToGo(tbl *lua.LTable, visiting map[*lua.LTable]bool, depth int) (interface{}, error) {
	if depth >= maxTableDepth {
		return nil, fmt.Errorf("table nesting exceeds %d levels", maxTableDepth)
	}
	if visiting[tbl] {
		return nil, fmt.Errorf("table contains a reference to itself")
	}
	visiting[tbl] = true
	defer delete(visiting, tbl)

	n := tbl.MaxN()
	keys := 0
	tbl.ForEach(func(_, _ lua.LValue) { keys++ })

	if keys == n {
		arr := make([]interface{}, 0, n)
		for i := 1; i <= n; i++ {
			item, err := fromLua(tbl.RawGetInt(i), visiting, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
		return arr, nil
	}

	obj := make(map[string]interface{}, keys)
	var err error
	tbl.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		var item interface{}
		if item, err = fromLua(v, visiting, depth+1); err == nil {
			obj[k.String()] = item
		}
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
