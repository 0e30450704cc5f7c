// Package redisserver provides an in-memory data server that speaks the
// Redis RESP protocol.
//
// It keeps strings, lists and streams in a single shared keyspace and serves
// them to any Redis client. Every connection runs its commands in arrival
// order; each command is atomic with respect to every other command.
//
// Basic usage:
//
//	srv, err := redisserver.New(
//		redisserver.WithAddr("127.0.0.1:6379"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Close()
//
//	if err := srv.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// Settings can also come from a YAML file, see LoadConfigFile.
//
// The server supports:
//
//   - Strings with optional millisecond or second expiry
//   - Lists, including blocking pops woken by pushes
//   - Append-only streams with range queries
//   - Lua scripting through EVAL and EVALSHA
package redisserver
