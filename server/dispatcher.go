package server

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// DefaultPollInterval is how often a blocked BLPOP re-checks its keys when
// no push notification arrives
const DefaultPollInterval = 100 * time.Millisecond

const (
	errNotInteger   = "ERR value is not an integer or out of range"
	errSyntax       = "ERR syntax error"
	errInvalidSetEx = "ERR invalid expire time in 'set' command"
)

// maxBlockSeconds is the longest BLPOP timeout a time.Duration can hold
const maxBlockSeconds = float64(math.MaxInt64 / int64(time.Second))

// Dispatcher executes commands against a storage backend. It is safe for
// concurrent use; each command's effect on the data is atomic.
type Dispatcher struct {
	storage      storage.Storage
	lua          *lua.Engine
	pollInterval time.Duration
}

// NewDispatcher creates a dispatcher over stor
func NewDispatcher(stor storage.Storage) *Dispatcher {
	d := &Dispatcher{
		storage:      stor,
		pollInterval: DefaultPollInterval,
	}
	d.lua = lua.NewEngine(d, lua.DefaultMaxStates)
	return d
}

// SetPollInterval sets the BLPOP fallback poll interval
func (d *Dispatcher) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		d.pollInterval = interval
	}
}

// SetLuaPoolSize replaces the script engine with one holding n Lua states.
// Loaded scripts are discarded.
func (d *Dispatcher) SetLuaPoolSize(n int) {
	old := d.lua
	d.lua = lua.NewEngine(d, n)
	old.Close()
}

// Close releases the script engine
func (d *Dispatcher) Close() {
	d.lua.Close()
}

// Execute runs one command and returns its reply. Unknown commands get a
// null bulk string.
func (d *Dispatcher) Execute(ctx context.Context, cmd *protocol.Command) protocol.Value {
	args := cmd.Args

	switch strings.ToUpper(cmd.Name) {
	case "PING":
		return d.handlePing(args)
	case "ECHO":
		return d.handleEcho(args)
	case "SET":
		return d.handleSet(args)
	case "GET":
		return d.handleGet(args)
	case "DEL":
		return d.handleDel(args)
	case "EXISTS":
		return d.handleExists(args)
	case "TYPE":
		return d.handleType(args)
	case "KEYS":
		return d.handleKeys(args)
	case "DBSIZE":
		return d.handleDBSize(args)
	case "FLUSHALL":
		return d.handleFlushAll(args)
	case "RPUSH":
		return d.handlePush("rpush", args, d.storage.RPush)
	case "LPUSH":
		return d.handlePush("lpush", args, d.storage.LPush)
	case "LRANGE":
		return d.handleLRange(args)
	case "LLEN":
		return d.handleLLen(args)
	case "LPOP":
		return d.handleLPop(args)
	case "BLPOP":
		return d.handleBLPop(ctx, args)
	case "XADD":
		return d.handleXAdd(args)
	case "XRANGE":
		return d.handleXRange(args)
	case "XREAD":
		return d.handleXRead(args)
	case "XLEN":
		return d.handleXLen(args)
	case "EVAL":
		return d.handleEval(ctx, args)
	case "EVALSHA":
		return d.handleEvalSHA(ctx, args)
	case "SCRIPT":
		return d.handleScript(args)
	default:
		return protocol.NullBulkString()
	}
}

func wrongArgs(name string) protocol.Value {
	return protocol.Errorf("ERR wrong number of arguments for '%s' command", name)
}

// errorReply turns a storage error into an error reply. Storage errors are
// already worded for clients.
func errorReply(err error) protocol.Value {
	msg := err.Error()
	if errors.Is(err, storage.ErrWrongType) || strings.HasPrefix(msg, "ERR ") {
		return protocol.Error(msg)
	}
	return protocol.Error("ERR " + msg)
}

func (d *Dispatcher) handlePing(args []string) protocol.Value {
	switch len(args) {
	case 0:
		return protocol.SimpleString("PONG")
	case 1:
		return protocol.BulkString(args[0])
	default:
		return wrongArgs("ping")
	}
}

func (d *Dispatcher) handleEcho(args []string) protocol.Value {
	if len(args) != 1 {
		return wrongArgs("echo")
	}
	return protocol.BulkString(args[0])
}

func (d *Dispatcher) handleSet(args []string) protocol.Value {
	if len(args) < 2 {
		return wrongArgs("set")
	}

	key, value := args[0], args[1]
	var ttl time.Duration

	for i := 2; i < len(args); i++ {
		opt := strings.ToUpper(args[i])
		if (opt != "PX" && opt != "EX") || ttl != 0 || i+1 >= len(args) {
			return protocol.Error(errSyntax)
		}
		i++
		n, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil {
			return protocol.Error(errNotInteger)
		}
		if n <= 0 {
			return protocol.Error(errInvalidSetEx)
		}
		if opt == "PX" {
			ttl = time.Duration(n) * time.Millisecond
		} else {
			ttl = time.Duration(n) * time.Second
		}
	}

	if err := d.storage.Set(key, value, ttl); err != nil {
		return errorReply(err)
	}
	return protocol.SimpleString("OK")
}

func (d *Dispatcher) handleGet(args []string) protocol.Value {
	if len(args) != 1 {
		return wrongArgs("get")
	}

	value, exists, err := d.storage.Get(args[0])
	if err != nil {
		return errorReply(err)
	}
	if !exists {
		return protocol.NullBulkString()
	}
	return protocol.BulkString(value)
}

func (d *Dispatcher) handleDel(args []string) protocol.Value {
	if len(args) == 0 {
		return wrongArgs("del")
	}
	return protocol.Integer(d.storage.Del(args...))
}

func (d *Dispatcher) handleExists(args []string) protocol.Value {
	if len(args) == 0 {
		return wrongArgs("exists")
	}
	return protocol.Integer(d.storage.Exists(args...))
}

func (d *Dispatcher) handleType(args []string) protocol.Value {
	if len(args) != 1 {
		return wrongArgs("type")
	}
	return protocol.SimpleString(d.storage.Type(args[0]).String())
}

func (d *Dispatcher) handleKeys(args []string) protocol.Value {
	if len(args) != 1 {
		return wrongArgs("keys")
	}
	return protocol.BulkStringArray(d.storage.Keys(args[0]))
}

func (d *Dispatcher) handleDBSize(args []string) protocol.Value {
	if len(args) != 0 {
		return wrongArgs("dbsize")
	}
	return protocol.Integer(d.storage.KeyCount())
}

func (d *Dispatcher) handleFlushAll(args []string) protocol.Value {
	if len(args) != 0 {
		return wrongArgs("flushall")
	}
	if err := d.storage.FlushAll(); err != nil {
		return errorReply(err)
	}
	return protocol.SimpleString("OK")
}

func (d *Dispatcher) handlePush(name string, args []string, push func(string, ...string) (int64, error)) protocol.Value {
	if len(args) < 2 {
		return wrongArgs(name)
	}

	n, err := push(args[0], args[1:]...)
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(n)
}

func (d *Dispatcher) handleLRange(args []string) protocol.Value {
	if len(args) != 3 {
		return wrongArgs("lrange")
	}

	start, err1 := strconv.ParseInt(args[1], 10, 64)
	stop, err2 := strconv.ParseInt(args[2], 10, 64)
	if err1 != nil || err2 != nil {
		return protocol.Error(errNotInteger)
	}

	items, err := d.storage.LRange(args[0], start, stop)
	if err != nil {
		return errorReply(err)
	}
	return protocol.BulkStringArray(items)
}

func (d *Dispatcher) handleLLen(args []string) protocol.Value {
	if len(args) != 1 {
		return wrongArgs("llen")
	}

	n, err := d.storage.LLen(args[0])
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(n)
}

// handleLPop replies with a single bulk string unless a positive count is
// given, in which case it replies with an array
func (d *Dispatcher) handleLPop(args []string) protocol.Value {
	if len(args) < 1 || len(args) > 2 {
		return wrongArgs("lpop")
	}

	count := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return protocol.Error(errNotInteger)
		}
		count = n
	}

	popped, err := d.storage.LPop(args[0], count)
	if err != nil {
		return errorReply(err)
	}
	if len(popped) == 0 {
		return protocol.NullBulkString()
	}
	if count > 0 {
		return protocol.BulkStringArray(popped)
	}
	return protocol.BulkString(popped[0])
}

// handleBLPop pops from the first non-empty key, waiting for a push when all
// keys are empty. A timeout <= 0 waits until the context is done.
func (d *Dispatcher) handleBLPop(ctx context.Context, args []string) protocol.Value {
	if len(args) < 2 {
		return wrongArgs("blpop")
	}

	keys := args[:len(args)-1]
	seconds, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return protocol.Error("ERR timeout is not a float or out of range")
	}
	if seconds > maxBlockSeconds {
		return protocol.Error("ERR timeout is out of range")
	}

	// subscribe before the first check so a push in between is not missed
	pushed, cancel := d.storage.WaitForPush(keys...)
	defer cancel()

	var deadline <-chan time.Time
	if seconds > 0 {
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		for _, key := range keys {
			popped, err := d.storage.LPop(key, 1)
			if err != nil {
				return errorReply(err)
			}
			if len(popped) > 0 {
				return protocol.BulkStringArray([]string{key, popped[0]})
			}
		}

		select {
		case <-pushed:
		case <-ticker.C:
		case <-deadline:
			return protocol.NullArray()
		case <-ctx.Done():
			return protocol.NullArray()
		}
	}
}

// Unpop puts the element a BLPOP reply carries back at the head of its list.
// It is called when the reply could not be delivered to the client.
func (d *Dispatcher) Unpop(cmd *protocol.Command, reply protocol.Value) {
	if cmd.Name != "BLPOP" || reply.Type != protocol.TypeArray || reply.IsNull || len(reply.Array) != 2 {
		return
	}
	key, value := string(reply.Array[0].Data), string(reply.Array[1].Data)
	d.storage.LPush(key, value)
}

func (d *Dispatcher) handleXAdd(args []string) protocol.Value {
	if len(args) < 4 || len(args)%2 != 0 {
		return wrongArgs("xadd")
	}

	fields := make([]storage.FieldValue, 0, (len(args)-2)/2)
	for i := 2; i < len(args); i += 2 {
		fields = append(fields, storage.FieldValue{Field: args[i], Value: args[i+1]})
	}

	id, err := d.storage.XAdd(args[0], args[1], fields)
	if err != nil {
		return errorReply(err)
	}
	return protocol.BulkString(id.String())
}

func (d *Dispatcher) handleXRange(args []string) protocol.Value {
	if len(args) != 3 && len(args) != 5 {
		return wrongArgs("xrange")
	}

	start, err := storage.ParseRangeBound(args[1], false)
	if err != nil {
		return errorReply(err)
	}
	end, err := storage.ParseRangeBound(args[2], true)
	if err != nil {
		return errorReply(err)
	}

	count := 0
	if len(args) == 5 {
		if !strings.EqualFold(args[3], "COUNT") {
			return protocol.Error(errSyntax)
		}
		if count, err = strconv.Atoi(args[4]); err != nil {
			return protocol.Error(errNotInteger)
		}
		if count <= 0 {
			return protocol.Array()
		}
	}

	entries, err := d.storage.XRange(args[0], start, end, count)
	if err != nil {
		return errorReply(err)
	}
	return entriesReply(entries)
}

// handleXRead replies with one [key, entries] pair per requested stream. The
// given id is an inclusive lower bound. BLOCK is accepted but never waits.
func (d *Dispatcher) handleXRead(args []string) protocol.Value {
	count := 0
	i := 0

options:
	for i < len(args) {
		switch strings.ToUpper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return protocol.Error(errSyntax)
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return protocol.Error(errNotInteger)
			}
			count = max(n, 0)
			i += 2
		case "BLOCK":
			if i+1 >= len(args) {
				return protocol.Error(errSyntax)
			}
			if _, err := strconv.ParseInt(args[i+1], 10, 64); err != nil {
				return protocol.Error("ERR timeout is not an integer or out of range")
			}
			i += 2
		case "STREAMS":
			i++
			break options
		default:
			return protocol.Error(errSyntax)
		}
	}

	rest := args[i:]
	if i == 0 || len(rest) == 0 {
		return wrongArgs("xread")
	}
	if len(rest)%2 != 0 {
		return protocol.Error("ERR Unbalanced 'xread' list of streams: for each stream key an ID or '$' must be specified.")
	}

	n := len(rest) / 2
	keys, ids := rest[:n], rest[n:]

	results := make([]protocol.Value, 0, n)
	for j, key := range keys {
		start, err := storage.ParseRangeBound(ids[j], false)
		if err != nil {
			return errorReply(err)
		}

		entries, err := d.storage.XRange(key, start, storage.MaxStreamID, count)
		if err != nil {
			return errorReply(err)
		}
		results = append(results, protocol.Array(protocol.BulkString(key), entriesReply(entries)))
	}
	return protocol.Array(results...)
}

func (d *Dispatcher) handleXLen(args []string) protocol.Value {
	if len(args) != 1 {
		return wrongArgs("xlen")
	}

	n, err := d.storage.XLen(args[0])
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(n)
}

// entriesReply encodes stream entries as [[id, [field, value, ...]], ...]
func entriesReply(entries []storage.StreamEntry) protocol.Value {
	items := make([]protocol.Value, len(entries))
	for i, entry := range entries {
		items[i] = protocol.Array(
			protocol.BulkString(entry.ID.String()),
			protocol.BulkStringArray(entry.FlatFields()),
		)
	}
	return protocol.Array(items...)
}

// scriptArgs splits "numkeys key... arg..." into keys and args
func scriptArgs(args []string) ([]string, []string, *protocol.Value) {
	numKeys, err := strconv.Atoi(args[0])
	if err != nil {
		reply := protocol.Error(errNotInteger)
		return nil, nil, &reply
	}
	if numKeys < 0 || numKeys > len(args)-1 {
		reply := protocol.Error("ERR Number of keys can't be negative or greater than args")
		return nil, nil, &reply
	}
	return args[1 : 1+numKeys], args[1+numKeys:], nil
}

func (d *Dispatcher) handleEval(ctx context.Context, args []string) protocol.Value {
	if len(args) < 2 {
		return wrongArgs("eval")
	}

	keys, scriptArgv, errReply := scriptArgs(args[1:])
	if errReply != nil {
		return *errReply
	}
	return d.lua.Eval(ctx, args[0], keys, scriptArgv)
}

func (d *Dispatcher) handleEvalSHA(ctx context.Context, args []string) protocol.Value {
	if len(args) < 2 {
		return wrongArgs("evalsha")
	}

	keys, scriptArgv, errReply := scriptArgs(args[1:])
	if errReply != nil {
		return *errReply
	}
	return d.lua.EvalSHA(ctx, args[0], keys, scriptArgv)
}

func (d *Dispatcher) handleScript(args []string) protocol.Value {
	if len(args) == 0 {
		return wrongArgs("script")
	}

	subCmd := strings.ToUpper(args[0])
	switch subCmd {
	case "LOAD":
		if len(args) != 2 {
			return wrongArgs("script|load")
		}
		return protocol.BulkString(d.lua.LoadScript(args[1]))

	case "EXISTS":
		if len(args) < 2 {
			return wrongArgs("script|exists")
		}
		results := d.lua.ScriptExists(args[1:])
		items := make([]protocol.Value, len(results))
		for i, exists := range results {
			if exists {
				items[i] = protocol.Integer(1)
			} else {
				items[i] = protocol.Integer(0)
			}
		}
		return protocol.Array(items...)

	case "FLUSH":
		d.lua.ScriptFlush()
		return protocol.SimpleString("OK")

	default:
		return protocol.Errorf("ERR unknown subcommand '%s'. Try SCRIPT HELP.", args[0])
	}
}
