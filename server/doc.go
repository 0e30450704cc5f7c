// Package server exposes a storage.Storage over the RESP protocol.
//
// A Dispatcher maps each decoded command onto storage operations and builds
// the reply. The Server owns the TCP side: one goroutine per connection,
// an idle read timeout, optional accept throttling and QUIT handling.
//
// Supported commands:
//   - PING, ECHO, SET (EX/PX), GET, DEL, EXISTS, TYPE, KEYS, DBSIZE, FLUSHALL
//   - RPUSH, LPUSH, LRANGE, LLEN, LPOP, BLPOP
//   - XADD, XRANGE, XREAD, XLEN
//   - EVAL, EVALSHA, SCRIPT LOAD|EXISTS|FLUSH
//
// Unknown commands are answered with a null bulk string rather than an error.
package server
