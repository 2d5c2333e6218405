// Command loadtest connects a batch of chat clients to a running server,
// logs each one in, sends messages and reports how many were delivered.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/johndosdos/roomchat/internal/model"
)

type stats struct {
	connected atomic.Int64
	loggedIn  atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
	failed    atomic.Int64
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	origin := flag.String("origin", "http://localhost:8080", "Origin header sent on dial")
	clients := flag.Int("clients", 10, "number of concurrent clients")
	messages := flag.Int("messages", 5, "messages sent per client")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between messages")
	settle := flag.Duration("settle", 2*time.Second, "time to wait for deliveries after the last send")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		st    stats
		wg    sync.WaitGroup
		ready sync.WaitGroup
	)
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready.Add(*clients)
	for i := range *clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runClient(ctx, i, *url, *origin, *messages, *interval, *settle, &st, &ready); err != nil {
				st.failed.Add(1)
				log.Printf("client %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	want := st.sent.Load() * st.loggedIn.Load()
	fmt.Printf("clients: %d connected, %d logged in, %d failed\n",
		st.connected.Load(), st.loggedIn.Load(), st.failed.Load())
	fmt.Printf("messages: %d sent, %d delivered of %d expected\n",
		st.sent.Load(), st.received.Load(), want)
	fmt.Printf("elapsed: %s\n", time.Since(start).Round(time.Millisecond))
}

func runClient(ctx context.Context, i int, url, origin string, messages int, interval, settle time.Duration, st *stats, ready *sync.WaitGroup) error {
	signalled := false
	signal := func() {
		if !signalled {
			signalled = true
			ready.Done()
		}
	}
	defer signal()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Origin": {origin}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	st.connected.Add(1)

	if err := expect(dialCtx, conn, model.EventConnectionEstablished); err != nil {
		return err
	}

	nickname := fmt.Sprintf("load-%03d", i)
	if err := emit(dialCtx, conn, model.EventLogin, model.LoginRequest{Nickname: nickname, ServerAddress: url}); err != nil {
		return err
	}
	if err := expect(dialCtx, conn, model.EventLoginSuccess); err != nil {
		return err
	}
	st.loggedIn.Add(1)

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	go func() {
		for {
			var env model.Envelope
			if err := wsjson.Read(readCtx, conn, &env); err != nil {
				return
			}
			if env.Event == model.EventNewMessage {
				st.received.Add(1)
			}
		}
	}()

	// Start sending only once every client is in the room.
	signal()
	ready.Wait()

	for n := range messages {
		text := fmt.Sprintf("message %d from %s", n, nickname)
		if err := emit(ctx, conn, model.EventSendMessage, model.SendMessageRequest{Message: text, Type: "text"}); err != nil {
			return err
		}
		st.sent.Add(1)
		time.Sleep(interval)
	}

	time.Sleep(settle)
	return conn.Close(websocket.StatusNormalClosure, "done")
}

func emit(ctx context.Context, conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, model.Envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// expect reads frames until one named event arrives.
func expect(ctx context.Context, conn *websocket.Conn, event string) error {
	for {
		var env model.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return fmt.Errorf("waiting for %s: %w", event, err)
		}
		if env.Event == event {
			return nil
		}
		if env.Event == model.EventLoginError {
			var le model.LoginError
			if err := json.Unmarshal(env.Data, &le); err != nil {
				return fmt.Errorf("login rejected; could not decode reason: %w", err)
			}
			return fmt.Errorf("login rejected: %s", le.Message)
		}
	}
}
