/*
Package script provides the Lua filter compiler of the gateway.

A filter script defines its metadata and its action as global Lua
functions:

	function kind() return "pre" end
	function order() return 5 end

	function should_run(ctx)
		return ctx.request.url_path ~= "/healthcheck"
	end

	function run(ctx)
		ctx.route_vip = "api"
		ctx.state_bag["user"] = ctx.request.header["X-User"]
		return true
	end

kind() and run() are required, order() defaults to 0, should_run()
defaults to true and disabled() to false when absent.

The ctx argument exposes the request context:

	ctx.state_bag["key"]           -- read/write arbitrary context state
	ctx.request.method             -- read only
	ctx.request.host
	ctx.request.url_path           -- read/write
	ctx.request.url_raw_query
	ctx.request.header["User-Agent"]
	ctx.request.header.add("Foo", "Bar")
	ctx.request.header.values("Foo")
	ctx.response.status_code       -- read/write
	ctx.response.body              -- read/write
	ctx.response.header.add("X-R", "1")
	ctx.route_vip, ctx.route_host, ctx.route, ctx.request_uri
	ctx.event_properties["origin"] = "api"
	ctx.send_gateway_response = false
	ctx.run_filters("static")      -- run a sub-kind through the processor
	ctx.gateway_error(501, "no-route", "target not defined")

gateway_error raises a gateway failure that aborts the current stage with
the given status code, cause token and message.

The modules json, url and http are preloaded next to the Lua standard
library and can be restricted through LuaOptions.
*/
package script

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cjoudrey/gluahttp"
	gluaurl "github.com/cjoudrey/gluaurl"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	luajson "layeh.com/gopher-json"

	"github.com/zuul-go/zuul/filters"
)

// statePoolSize is the number of idle lua states kept per filter.
const statePoolSize = 8

var availableModules = []string{"json", "url", "http"}

// LuaOptions configures the optional modules available to filter scripts.
type LuaOptions struct {
	// Modules is the list of preloaded modules to enable out of json,
	// url and http. Empty enables all of them.
	Modules []string
}

// Compiler compiles Lua sources into filter instances. It satisfies the
// loader's Compiler interface.
type Compiler struct {
	opts LuaOptions
}

// NewCompiler creates a compiler with all modules enabled.
func NewCompiler() *Compiler { return &Compiler{} }

// NewCompilerWithOptions creates a compiler with restricted modules.
func NewCompilerWithOptions(opts LuaOptions) (*Compiler, error) {
	for _, m := range opts.Modules {
		if !moduleAvailable(m) {
			return nil, fmt.Errorf("unknown lua module %q", m)
		}
	}
	return &Compiler{opts: opts}, nil
}

func moduleAvailable(name string) bool {
	for _, m := range availableModules {
		if m == name {
			return true
		}
	}
	return false
}

func (c *Compiler) moduleEnabled(name string) bool {
	if len(c.opts.Modules) == 0 {
		return true
	}
	for _, m := range c.opts.Modules {
		if m == name {
			return true
		}
	}
	return false
}

type luaFilter struct {
	name         string
	kind         string
	order        int
	proto        *lua.FunctionProto
	compiler     *Compiler
	hasShouldRun bool
	hasDisabled  bool
	pool         chan *lua.LState
}

// Compile parses and compiles a Lua source blob once, runs it to extract
// the filter metadata and returns the filter instance. Scripts missing
// kind() or run() fail to compile.
func (c *Compiler) Compile(name string, source []byte) (filters.Filter, error) {
	chunk, err := parse.Parse(bytes.NewReader(source), name)
	if err != nil {
		return nil, err
	}

	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, err
	}

	f := &luaFilter{
		name:     name,
		proto:    proto,
		compiler: c,
		pool:     make(chan *lua.LState, statePoolSize),
	}

	L, err := f.newState()
	if err != nil {
		return nil, err
	}
	defer f.putState(L)

	if _, ok := L.GetGlobal("run").(*lua.LFunction); !ok {
		return nil, errors.New("missing run() function")
	}

	kind, err := callString(L, "kind")
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return nil, errors.New("kind() returned an empty kind")
	}
	f.kind = kind

	if _, ok := L.GetGlobal("order").(*lua.LFunction); ok {
		order, err := callInt(L, "order")
		if err != nil {
			return nil, err
		}
		f.order = order
	}

	_, f.hasShouldRun = L.GetGlobal("should_run").(*lua.LFunction)
	_, f.hasDisabled = L.GetGlobal("disabled").(*lua.LFunction)

	return f, nil
}

func callString(L *lua.LState, name string) (string, error) {
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return "", fmt.Errorf("missing %s() function", name)
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return "", err
	}
	ret := L.Get(-1)
	L.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		return string(s), nil
	}
	return "", fmt.Errorf("%s() must return a string", name)
}

func callInt(L *lua.LState, name string) (int, error) {
	fn := L.GetGlobal(name).(*lua.LFunction)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return 0, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	if n, ok := ret.(lua.LNumber); ok {
		return int(n), nil
	}
	return 0, fmt.Errorf("%s() must return a number", name)
}

func (f *luaFilter) newState() (*lua.LState, error) {
	L := lua.NewState()

	if f.compiler.moduleEnabled("json") {
		luajson.Preload(L)
	}
	if f.compiler.moduleEnabled("url") {
		L.PreloadModule("url", gluaurl.Loader)
	}
	if f.compiler.moduleEnabled("http") {
		L.PreloadModule("http", gluahttp.NewHttpModule(&http.Client{Timeout: 10 * time.Second}).Loader)
	}
	registerContextType(L)

	L.Push(L.NewFunctionFromProto(f.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, err
	}

	return L, nil
}

func (f *luaFilter) getState() (*lua.LState, error) {
	select {
	case L := <-f.pool:
		return L, nil
	default:
		return f.newState()
	}
}

func (f *luaFilter) putState(L *lua.LState) {
	select {
	case f.pool <- L:
	default:
		L.Close()
	}
}

func (f *luaFilter) Name() string { return f.name }
func (f *luaFilter) Kind() string { return f.kind }
func (f *luaFilter) Order() int   { return f.order }

// Disabled evaluates the optional disabled() function of the script, so
// scripts can gate themselves on dynamic state.
func (f *luaFilter) Disabled() bool {
	if !f.hasDisabled {
		return false
	}

	L, err := f.getState()
	if err != nil {
		return false
	}
	defer f.putState(L)

	if err := L.CallByParam(lua.P{Fn: L.GetGlobal("disabled"), NRet: 1, Protect: true}); err != nil {
		return false
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

func (f *luaFilter) ShouldRun(ctx *filters.RequestContext) bool {
	if !f.hasShouldRun {
		return true
	}

	L, err := f.getState()
	if err != nil {
		return false
	}
	defer f.putState(L)

	err = L.CallByParam(
		lua.P{Fn: L.GetGlobal("should_run"), NRet: 1, Protect: true},
		newLuaContext(L, ctx),
	)
	if err != nil {
		return false
	}

	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

func (f *luaFilter) Run(ctx *filters.RequestContext) (interface{}, error) {
	L, err := f.getState()
	if err != nil {
		return nil, err
	}
	defer f.putState(L)

	err = L.CallByParam(
		lua.P{Fn: L.GetGlobal("run"), NRet: 1, Protect: true},
		newLuaContext(L, ctx),
	)
	if err != nil {
		return nil, asRunError(err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	switch v := ret.(type) {
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		return float64(v), nil
	default:
		return nil, nil
	}
}

// asRunError converts a lua runtime error into the gateway taxonomy:
// errors raised through ctx.gateway_error carry a table with the status
// code, cause and message and map to *filters.GatewayError, anything else
// stays an opaque error for the processor to wrap.
func asRunError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}

	tbl, ok := apiErr.Object.(*lua.LTable)
	if !ok {
		return err
	}

	status, ok := tbl.RawGetString("status_code").(lua.LNumber)
	if !ok {
		return err
	}

	ge := &filters.GatewayError{StatusCode: int(status)}
	if cause, ok := tbl.RawGetString("error_cause").(lua.LString); ok {
		ge.ErrorCause = string(cause)
	}
	if msg, ok := tbl.RawGetString("message").(lua.LString); ok {
		ge.Message = string(msg)
	}
	return ge
}
