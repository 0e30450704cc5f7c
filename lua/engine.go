package lua

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	pool "github.com/jolestar/go-commons-pool/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// Executor runs a single command and returns its reply
type Executor interface {
	Execute(ctx context.Context, cmd *protocol.Command) protocol.Value
}

// DefaultMaxStates is the default number of Lua states kept by an Engine
const DefaultMaxStates = 8

// Commands that scripts may not call
var disallowedInScript = map[string]bool{
	"BLPOP":   true,
	"EVAL":    true,
	"EVALSHA": true,
	"SCRIPT":  true,
	"QUIT":    true,
}

// Engine provides Redis-compatible Lua script execution
type Engine struct {
	executor Executor
	scripts  sync.Map // map[string]string - SHA1 -> script content
	states   *pool.ObjectPool
}

// NewEngine creates a new Lua execution engine. Commands issued through
// redis.call are run by executor. maxStates bounds the number of concurrently
// running scripts; values <= 0 select DefaultMaxStates.
func NewEngine(executor Executor, maxStates int) *Engine {
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}

	cfg := pool.NewDefaultPoolConfig()
	cfg.MaxTotal = maxStates
	cfg.MaxIdle = maxStates

	return &Engine{
		executor: executor,
		states:   pool.NewObjectPool(context.Background(), &stateFactory{}, cfg),
	}
}

// Close releases all pooled Lua states
func (e *Engine) Close() {
	e.states.Close(context.Background())
}

// Eval executes a Lua script with the given keys and arguments and caches it
// for EVALSHA
func (e *Engine) Eval(ctx context.Context, script string, keys []string, args []string) protocol.Value {
	e.LoadScript(script)
	return e.run(ctx, script, keys, args)
}

// EvalSHA executes a previously loaded script by its SHA1 hash
func (e *Engine) EvalSHA(ctx context.Context, sha string, keys []string, args []string) protocol.Value {
	script, exists := e.scripts.Load(strings.ToLower(sha))
	if !exists {
		return protocol.Error("NOSCRIPT No matching script. Please use EVAL.")
	}
	return e.run(ctx, script.(string), keys, args)
}

// LoadScript loads a script and returns its SHA1 hash
func (e *Engine) LoadScript(script string) string {
	sum := sha1.Sum([]byte(script))
	hash := hex.EncodeToString(sum[:])
	e.scripts.Store(hash, script)
	return hash
}

// ScriptExists checks if scripts with given SHA1 hashes exist
func (e *Engine) ScriptExists(hashes []string) []bool {
	results := make([]bool, len(hashes))
	for i, hash := range hashes {
		_, exists := e.scripts.Load(strings.ToLower(hash))
		results[i] = exists
	}
	return results
}

// ScriptFlush removes all cached scripts
func (e *Engine) ScriptFlush() {
	e.scripts.Range(func(key, value interface{}) bool {
		e.scripts.Delete(key)
		return true
	})
}

func (e *Engine) run(ctx context.Context, script string, keys []string, args []string) protocol.Value {
	obj, err := e.states.BorrowObject(ctx)
	if err != nil {
		return protocol.Errorf("ERR could not acquire script state: %v", err)
	}
	L := obj.(*lua.LState)

	L.SetContext(ctx)
	e.setupRedisAPI(L, ctx, keys, args)

	if err := L.DoString(script); err != nil {
		// a failed state may hold a half-unwound stack
		_ = e.states.InvalidateObject(context.Background(), L)
		return protocol.Error(scriptErrorMessage(err))
	}

	result := toReply(L.Get(-1))
	L.RemoveContext()
	_ = e.states.ReturnObject(context.Background(), L)
	return result
}

// scriptErrorMessage extracts the message raised by a script
func scriptErrorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		msg := apiErr.Object.String()
		if strings.HasPrefix(msg, "ERR ") || strings.HasPrefix(msg, "WRONGTYPE ") {
			return msg
		}
		return "ERR Error running script: " + msg
	}
	return "ERR Error running script: " + err.Error()
}

// setupRedisAPI configures the Lua state with Redis-compatible functions
func (e *Engine) setupRedisAPI(L *lua.LState, ctx context.Context, keys []string, args []string) {
	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key)) // Lua arrays are 1-indexed
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call": func(L *lua.LState) int {
			reply, err := e.executeRedisCommand(ctx, L)
			if err == nil && reply.IsError() {
				err = errors.New(reply.Error())
			}
			if err != nil {
				L.Error(lua.LString(err.Error()), 0)
				return 0
			}
			L.Push(toLua(L, reply))
			return 1
		},
		"pcall": func(L *lua.LState) int {
			reply, err := e.executeRedisCommand(ctx, L)
			if err != nil {
				reply = protocol.Error(err.Error())
			}
			L.Push(toLua(L, reply))
			return 1
		},
		"status_reply": func(L *lua.LState) int {
			t := L.NewTable()
			t.RawSetString("ok", lua.LString(L.CheckString(1)))
			L.Push(t)
			return 1
		},
		"error_reply": func(L *lua.LState) int {
			t := L.NewTable()
			t.RawSetString("err", lua.LString(L.CheckString(1)))
			L.Push(t)
			return 1
		},
	})
	L.SetGlobal("redis", redisTable)
}

// executeRedisCommand runs the command given as redis.call arguments
func (e *Engine) executeRedisCommand(ctx context.Context, L *lua.LState) (protocol.Value, error) {
	argc := L.GetTop()
	if argc == 0 {
		return protocol.Value{}, fmt.Errorf("ERR Please specify at least one argument for this redis lib call")
	}

	args := make([]string, argc)
	for i := 1; i <= argc; i++ {
		switch v := L.Get(i).(type) {
		case lua.LString, lua.LNumber:
			args[i-1] = v.String()
		default:
			return protocol.Value{}, fmt.Errorf("ERR Lua redis lib command arguments must be strings or integers")
		}
	}

	cmd := protocol.NewCommand(args[0], args[1:]...)
	if disallowedInScript[cmd.Name] {
		return protocol.Value{}, fmt.Errorf("ERR This Redis command is not allowed from script")
	}

	return e.executor.Execute(ctx, cmd), nil
}

// toLua converts a command reply to a Lua value
func toLua(L *lua.LState, reply protocol.Value) lua.LValue {
	switch reply.Type {
	case protocol.TypeInteger:
		return lua.LNumber(reply.Integer)
	case protocol.TypeBulkString:
		if reply.IsNull {
			return lua.LFalse
		}
		return lua.LString(reply.Data)
	case protocol.TypeSimpleString:
		t := L.NewTable()
		t.RawSetString("ok", lua.LString(reply.Data))
		return t
	case protocol.TypeError:
		t := L.NewTable()
		t.RawSetString("err", lua.LString(reply.Data))
		return t
	case protocol.TypeArray:
		if reply.IsNull {
			return lua.LFalse
		}
		t := L.NewTable()
		for i, item := range reply.Array {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	default:
		return lua.LNil
	}
}

// toReply converts a script's return value to a command reply
func toReply(lv lua.LValue) protocol.Value {
	switch v := lv.(type) {
	case lua.LBool:
		if v {
			return protocol.Integer(1)
		}
		return protocol.NullBulkString()
	case lua.LNumber:
		return protocol.Integer(int64(v))
	case lua.LString:
		return protocol.BulkString(string(v))
	case *lua.LTable:
		if errMsg, ok := v.RawGetString("err").(lua.LString); ok {
			return protocol.Error(string(errMsg))
		}
		if status, ok := v.RawGetString("ok").(lua.LString); ok {
			return protocol.SimpleString(string(status))
		}

		// array part up to the first nil, as Redis does
		items := make([]protocol.Value, 0, v.Len())
		for i := 1; ; i++ {
			item := v.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			items = append(items, toReply(item))
		}
		return protocol.Array(items...)
	default:
		return protocol.NullBulkString()
	}
}

// stateFactory creates and recycles Lua states for the pool
type stateFactory struct{}

func (f *stateFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	return pool.NewPooledObject(lua.NewState()), nil
}

func (f *stateFactory) DestroyObject(ctx context.Context, object *pool.PooledObject) error {
	object.Object.(*lua.LState).Close()
	return nil
}

func (f *stateFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	return !object.Object.(*lua.LState).IsClosed()
}

func (f *stateFactory) ActivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

func (f *stateFactory) PassivateObject(ctx context.Context, object *pool.PooledObject) error {
	L := object.Object.(*lua.LState)
	L.SetTop(0)
	L.SetGlobal("KEYS", lua.LNil)
	L.SetGlobal("ARGV", lua.LNil)
	return nil
}
