package script

import (
	"net/url"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/zuul-go/zuul/filters"
)

const (
	luaContextType        = "gatewayContext"
	luaStateBagType       = "gatewayStateBag"
	luaEventPropsType     = "gatewayEventProperties"
	luaRequestType        = "gatewayRequest"
	luaRequestHeaderType  = "gatewayRequestHeader"
	luaResponseType       = "gatewayResponse"
	luaResponseHeaderType = "gatewayResponseHeader"
)

func registerContextType(L *lua.LState) {
	for name, fns := range map[string][2]lua.LGFunction{
		luaContextType:        {ctxIndex, ctxNewIndex},
		luaStateBagType:       {stateBagIndex, stateBagNewIndex},
		luaEventPropsType:     {eventPropsIndex, eventPropsNewIndex},
		luaRequestType:        {requestIndex, requestNewIndex},
		luaRequestHeaderType:  {requestHeaderIndex, requestHeaderNewIndex},
		luaResponseType:       {responseIndex, responseNewIndex},
		luaResponseHeaderType: {responseHeaderIndex, responseHeaderNewIndex},
	} {
		mt := L.NewTypeMetatable(name)
		L.SetField(mt, "__index", L.NewFunction(fns[0]))
		L.SetField(mt, "__newindex", L.NewFunction(fns[1]))
	}
}

func newLuaContext(L *lua.LState, ctx *filters.RequestContext) *lua.LUserData {
	return wrapContext(L, ctx, luaContextType)
}

func wrapContext(L *lua.LState, ctx *filters.RequestContext, typeName string) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = ctx
	L.SetMetatable(ud, L.GetTypeMetatable(typeName))
	return ud
}

func checkContext(L *lua.LState, idx int) *filters.RequestContext {
	ud := L.CheckUserData(idx)
	ctx, ok := ud.Value.(*filters.RequestContext)
	if !ok {
		L.ArgError(idx, "filter context expected")
	}
	return ctx
}

func ctxIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)

	switch key {
	case "state_bag":
		L.Push(wrapContext(L, ctx, luaStateBagType))
	case "event_properties":
		L.Push(wrapContext(L, ctx, luaEventPropsType))
	case "request":
		L.Push(wrapContext(L, ctx, luaRequestType))
	case "response":
		L.Push(wrapContext(L, ctx, luaResponseType))
	case "route_vip":
		L.Push(lua.LString(ctx.RouteVIP()))
	case "route_host":
		if u := ctx.RouteHost(); u != nil {
			L.Push(lua.LString(u.String()))
		} else {
			L.Push(lua.LNil)
		}
	case "route":
		L.Push(lua.LString(ctx.Route()))
	case "request_uri":
		L.Push(lua.LString(ctx.RequestURI()))
	case "send_gateway_response":
		L.Push(lua.LBool(ctx.SendGatewayResponse()))
	case "served":
		L.Push(lua.LBool(ctx.Served()))
	case "error_handled":
		L.Push(lua.LBool(ctx.ErrorHandled()))
	case "debug_routing":
		L.Push(lua.LBool(ctx.DebugRouting()))
	case "gateway_error":
		L.Push(L.NewFunction(luaGatewayError))
	case "run_filters":
		L.Push(L.NewFunction(runFiltersFn(ctx)))
	default:
		L.Push(lua.LNil)
	}

	return 1
}

func ctxNewIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	v := L.Get(3)

	switch key {
	case "route_vip":
		ctx.SetRouteVIP(lua.LVAsString(v))
	case "route_host":
		u, err := url.Parse(lua.LVAsString(v))
		if err != nil {
			L.ArgError(3, "invalid route host url")
		}
		ctx.SetRouteHost(u)
	case "route":
		ctx.SetRoute(lua.LVAsString(v))
	case "request_uri":
		ctx.SetRequestURI(lua.LVAsString(v))
	case "send_gateway_response":
		ctx.SetSendGatewayResponse(lua.LVAsBool(v))
	case "debug_routing":
		ctx.SetDebugRouting(lua.LVAsBool(v))
	case "error_handled":
		if lua.LVAsBool(v) {
			ctx.MarkErrorHandled()
		}
	default:
		L.RaiseError("unsupported context field %s", key)
	}

	return 0
}

// luaGatewayError raises a lua error carrying the gateway failure as a
// table, converted back into a *filters.GatewayError by the filter runner.
func luaGatewayError(L *lua.LState) int {
	status := L.CheckInt(1)
	cause := L.OptString(2, "")
	message := L.OptString(3, "")

	tbl := L.NewTable()
	tbl.RawSetString("status_code", lua.LNumber(status))
	tbl.RawSetString("error_cause", lua.LString(cause))
	tbl.RawSetString("message", lua.LString(message))
	L.Error(tbl, 1)
	return 0
}

func runFiltersFn(ctx *filters.RequestContext) lua.LGFunction {
	return func(L *lua.LState) int {
		kind := L.CheckString(1)
		runner := ctx.SubChainRunner()
		if runner == nil {
			L.RaiseError("no filter processor bound to the context")
			return 0
		}

		ran, err := runner(kind)
		if err != nil {
			if ge, ok := filters.AsGatewayError(err); ok {
				tbl := L.NewTable()
				tbl.RawSetString("status_code", lua.LNumber(ge.StatusCode))
				tbl.RawSetString("error_cause", lua.LString(ge.ErrorCause))
				tbl.RawSetString("message", lua.LString(ge.Message))
				L.Error(tbl, 1)
				return 0
			}
			L.RaiseError("%v", err)
			return 0
		}

		L.Push(lua.LBool(ran))
		return 1
	}
}

func stateBagIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	L.Push(goToLua(ctx.Get(key)))
	return 1
}

func stateBagNewIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	v := L.Get(3)

	if v == lua.LNil {
		ctx.Delete(key)
		return 0
	}
	ctx.Set(key, luaToGo(v))
	return 0
}

func eventPropsIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	L.Push(goToLua(ctx.EventProperties()[key]))
	return 1
}

func eventPropsNewIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	ctx.SetEventProperty(key, luaToGo(L.Get(3)))
	return 0
}

func requestIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	r := ctx.Request()
	if r == nil {
		L.Push(lua.LNil)
		return 1
	}

	switch key {
	case "method":
		L.Push(lua.LString(r.Method))
	case "host":
		L.Push(lua.LString(r.Host))
	case "url":
		L.Push(lua.LString(r.URL.String()))
	case "url_path":
		L.Push(lua.LString(r.URL.Path))
	case "url_raw_query":
		L.Push(lua.LString(r.URL.RawQuery))
	case "remote_addr":
		L.Push(lua.LString(r.RemoteAddr))
	case "proto":
		L.Push(lua.LString(r.Proto))
	case "header":
		L.Push(wrapContext(L, ctx, luaRequestHeaderType))
	default:
		L.Push(lua.LNil)
	}

	return 1
}

func requestNewIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	r := ctx.Request()
	if r == nil {
		return 0
	}

	switch key {
	case "url_path":
		r.URL.Path = lua.LVAsString(L.Get(3))
	case "url_raw_query":
		r.URL.RawQuery = lua.LVAsString(L.Get(3))
	default:
		L.RaiseError("unsupported request field %s", key)
	}

	return 0
}

func requestHeaderIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	r := ctx.Request()
	if r == nil {
		L.Push(lua.LNil)
		return 1
	}

	switch key {
	case "add":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			r.Header.Add(L.CheckString(1), L.CheckString(2))
			return 0
		}))
	case "values":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.NewTable()
			for _, v := range r.Header.Values(L.CheckString(1)) {
				tbl.Append(lua.LString(v))
			}
			L.Push(tbl)
			return 1
		}))
	default:
		L.Push(lua.LString(r.Header.Get(key)))
	}

	return 1
}

func requestHeaderNewIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	value := lua.LVAsString(L.Get(3))

	if r := ctx.Request(); r != nil {
		r.Header.Set(key, value)
		if key == "Host" {
			r.Host = value
		}
	}
	return 0
}

func responseIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)

	switch key {
	case "status_code":
		L.Push(lua.LNumber(ctx.ResponseStatusCode()))
	case "body":
		L.Push(lua.LString(ctx.ResponseBody()))
	case "header":
		L.Push(wrapContext(L, ctx, luaResponseHeaderType))
	default:
		L.Push(lua.LNil)
	}

	return 1
}

func responseNewIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)
	v := L.Get(3)

	switch key {
	case "status_code":
		n, ok := v.(lua.LNumber)
		if !ok {
			L.ArgError(3, "status_code must be a number")
		}
		ctx.SetResponseStatusCode(int(n))
	case "body":
		ctx.SetResponseBody([]byte(lua.LVAsString(v)))
	default:
		L.RaiseError("unsupported response field %s", key)
	}

	return 0
}

func responseHeaderIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	key := L.CheckString(2)

	switch key {
	case "add":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			ctx.AddGatewayResponseHeader(L.CheckString(1), L.CheckString(2))
			return 0
		}))
	case "values":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			name := L.CheckString(1)
			tbl := L.NewTable()
			for _, h := range ctx.GatewayResponseHeaders() {
				if strings.EqualFold(h.Name,name) {
					tbl.Append(lua.LString(h.Value))
				}
			}
			L.Push(tbl)
			return 1
		}))
	default:
		for _, h := range ctx.GatewayResponseHeaders() {
			if strings.EqualFold(h.Name,key) {
				L.Push(lua.LString(h.Value))
				return 1
			}
		}
		L.Push(lua.LString(""))
	}

	return 1
}

func responseHeaderNewIndex(L *lua.LState) int {
	ctx := checkContext(L, 1)
	ctx.SetGatewayResponseHeader(L.CheckString(2), lua.LVAsString(L.Get(3)))
	return 0
}

func goToLua(v interface{}) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case []byte:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	default:
		return lua.LNil
	}
}

func luaToGo(v lua.LValue) interface{} {
	switch v := v.(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case lua.LBool:
		return bool(v)
	default:
		return nil
	}
}
