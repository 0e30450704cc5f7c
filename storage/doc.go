// Package storage provides the shared in-memory data store.
//
// A MemoryStorage maps keys to tagged values: strings, lists and streams.
// Every operation runs under one lock and is therefore atomic with respect
// to every other operation, including the per-key expiry timers started by
// Set with a TTL.
//
// Basic usage:
//
//	store := storage.NewMemory()
//	defer store.Close()
//
//	_ = store.Set("key", "value", 0)
//	n, _ := store.RPush("queue", "a", "b")
//	id, err := store.XAdd("events", "*", []storage.FieldValue{{Field: "temp", Value: "36"}})
//
// Streams are append-only. Entry ids are (ms, seq) pairs that must strictly
// increase; see Stream.Append for the id resolution rules.
package storage
