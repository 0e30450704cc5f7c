// Package lua runs EVAL-style scripts on top of a command executor.
//
// Scripts see the usual KEYS and ARGV tables and a redis table with call,
// pcall, status_reply and error_reply. Commands issued through redis.call go
// back through an Executor, so scripts observe exactly the same semantics as
// network clients. Blocking and scripting commands are refused from inside a
// script.
//
// Lua states are pooled; the pool size bounds how many scripts run at once.
package lua
