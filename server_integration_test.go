package redisserver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	redisserver "github.com/raniellyferreira/redis-inmemory-server"
)

// startServer runs a server on a random port and returns a connected client
func startServer(t *testing.T, opts ...redisserver.Option) (*redisserver.Server, *redis.Client) {
	t.Helper()

	opts = append([]redisserver.Option{redisserver.WithAddr("127.0.0.1:0")}, opts...)
	srv, err := redisserver.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	return srv, newClient(t, srv.Addr())
}

func newClient(t *testing.T, addr string) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Protocol:        2,
		DisableIdentity: true,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_Strings(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	pong, err := client.Ping(ctx).Result()
	if err != nil || pong != "PONG" {
		t.Fatalf("Ping = %q, %v", pong, err)
	}

	if got, err := client.Echo(ctx, "hello").Result(); err != nil || got != "hello" {
		t.Errorf("Echo = %q, %v", got, err)
	}

	if err := client.Set(ctx, "name", "value", 0).Err(); err != nil {
		t.Fatal(err)
	}
	if got, err := client.Get(ctx, "name").Result(); err != nil || got != "value" {
		t.Errorf("Get = %q, %v", got, err)
	}
	if got, err := client.Type(ctx, "name").Result(); err != nil || got != "string" {
		t.Errorf("Type = %q, %v", got, err)
	}
	if got, err := client.Type(ctx, "missing").Result(); err != nil || got != "none" {
		t.Errorf("Type missing = %q, %v", got, err)
	}
	if n, err := client.Exists(ctx, "name", "missing").Result(); err != nil || n != 1 {
		t.Errorf("Exists = %d, %v", n, err)
	}
	if n, err := client.Del(ctx, "name").Result(); err != nil || n != 1 {
		t.Errorf("Del = %d, %v", n, err)
	}
	if _, err := client.Get(ctx, "name").Result(); err != redis.Nil {
		t.Errorf("Get after Del err = %v, want redis.Nil", err)
	}
}

func TestIntegration_SetPXExpiry(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	if err := client.Set(ctx, "temp", "v", 100*time.Millisecond).Err(); err != nil {
		t.Fatal(err)
	}
	if got, err := client.Get(ctx, "temp").Result(); err != nil || got != "v" {
		t.Fatalf("Get before expiry = %q, %v", got, err)
	}

	time.Sleep(250 * time.Millisecond)
	if _, err := client.Get(ctx, "temp").Result(); err != redis.Nil {
		t.Errorf("Get after expiry err = %v, want redis.Nil", err)
	}
}

func TestIntegration_Lists(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	if n, err := client.RPush(ctx, "list", "a", "b", "c").Result(); err != nil || n != 3 {
		t.Fatalf("RPush = %d, %v", n, err)
	}
	if n, err := client.LPush(ctx, "list", "x", "y").Result(); err != nil || n != 5 {
		t.Fatalf("LPush = %d, %v", n, err)
	}

	items, err := client.LRange(ctx, "list", 0, -1).Result()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"y", "x", "a", "b", "c"}
	if len(items) != len(want) {
		t.Fatalf("LRange = %v, want %v", items, want)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("LRange = %v, want %v", items, want)
		}
	}

	if n, err := client.LLen(ctx, "list").Result(); err != nil || n != 5 {
		t.Errorf("LLen = %d, %v", n, err)
	}
	if got, err := client.LPop(ctx, "list").Result(); err != nil || got != "y" {
		t.Errorf("LPop = %q, %v", got, err)
	}
	popped, err := client.LPopCount(ctx, "list", 2).Result()
	if err != nil || len(popped) != 2 || popped[0] != "x" || popped[1] != "a" {
		t.Errorf("LPopCount = %v, %v", popped, err)
	}
}

func TestIntegration_BLPop(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	// nothing arrives: null reply after the timeout
	start := time.Now()
	if _, err := client.BLPop(ctx, time.Second, "empty").Result(); err != redis.Nil {
		t.Errorf("BLPop timeout err = %v, want redis.Nil", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("BLPop returned after %v, want about 1s", elapsed)
	}

	// a push from another connection wakes the waiter
	pusher := newClient(t, srv.Addr())

	var wg sync.WaitGroup
	var got []string
	var popErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, popErr = client.BLPop(ctx, 5*time.Second, "jobs").Result()
	}()

	time.Sleep(100 * time.Millisecond)
	if err := pusher.RPush(ctx, "jobs", "job-1").Err(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if popErr != nil || len(got) != 2 || got[0] != "jobs" || got[1] != "job-1" {
		t.Errorf("BLPop = %v, %v", got, popErr)
	}
}

func TestIntegration_Streams(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	ids := []string{"1-1", "1-*", "2-0"}
	wantIDs := []string{"1-1", "1-2", "2-0"}
	for i, id := range ids {
		got, err := client.XAdd(ctx, &redis.XAddArgs{
			Stream: "events",
			ID:     id,
			Values: []string{"n", wantIDs[i]},
		}).Result()
		if err != nil || got != wantIDs[i] {
			t.Fatalf("XAdd(%s) = %q, %v", id, got, err)
		}
	}

	if _, err := client.XAdd(ctx, &redis.XAddArgs{Stream: "events", ID: "1-5", Values: []string{"n", "x"}}).Result(); err == nil {
		t.Error("XAdd with a smaller id should fail")
	}

	msgs, err := client.XRange(ctx, "events", "-", "+").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("XRange returned %d entries, want 3", len(msgs))
	}
	for i, msg := range msgs {
		if msg.ID != wantIDs[i] || msg.Values["n"] != wantIDs[i] {
			t.Errorf("entry %d = %+v", i, msg)
		}
	}

	if n, err := client.XLen(ctx, "events").Result(); err != nil || n != 3 {
		t.Errorf("XLen = %d, %v", n, err)
	}

	streams, err := client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{"events", "1-2"},
		Count:   10,
		Block:   -1,
	}).Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 2 || streams[0].Messages[0].ID != "1-2" {
		t.Errorf("XRead = %+v, want entries from 1-2 inclusive", streams)
	}
}

func TestIntegration_Eval(t *testing.T) {
	_, client := startServer(t, redisserver.WithLuaPoolSize(2))
	ctx := context.Background()

	script := redis.NewScript(`
		redis.call('RPUSH', KEYS[1], ARGV[1])
		return redis.call('LLEN', KEYS[1])
	`)

	for i := int64(1); i <= 3; i++ {
		n, err := script.Run(ctx, client, []string{"scripted"}, "v").Int64()
		if err != nil || n != i {
			t.Fatalf("script run %d = %d, %v", i, n, err)
		}
	}
}

func TestIntegration_Metrics(t *testing.T) {
	metrics := &testMetrics{}
	_, client := startServer(t, redisserver.WithMetrics(metrics))
	ctx := context.Background()

	client.Set(ctx, "a", "1", 0)
	client.Get(ctx, "a")

	deadline := time.Now().Add(time.Second)
	for metrics.commandCount("GET") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if metrics.commandCount("SET") != 1 || metrics.commandCount("GET") != 1 {
		t.Errorf("commands = SET:%d GET:%d, want 1 each", metrics.commandCount("SET"), metrics.commandCount("GET"))
	}
}
