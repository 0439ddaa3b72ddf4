package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/preslavrachev/sitebase/core"
)

func TestRealtimeURL(t *testing.T) {
	got, err := RealtimeURL("https://abc.supabase.co/", "key")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "wss://abc.supabase.co/realtime/v1/websocket?") {
		t.Errorf("Unexpected url %s", got)
	}
	if !strings.Contains(got, "apikey=key") || !strings.Contains(got, "vsn=1.0.0") {
		t.Errorf("Expected apikey and vsn params, got %s", got)
	}

	if _, err := RealtimeURL("ftp://x", "key"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestSubscribeDeliversChangesAndLeaves(t *testing.T) {
	a, fake := newConnectedAdapter(t)

	joined := make(chan phoenixMessage, 1)
	left := make(chan phoenixMessage, 1)

	fake.setRealtime(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "anon-key" {
			http.Error(w, "missing apikey", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var join phoenixMessage
		if err := wsjson.Read(ctx, conn, &join); err != nil {
			return
		}
		joined <- join

		ref := "1"
		wsjson.Write(ctx, conn, phoenixMessage{
			Topic:   join.Topic,
			Event:   eventReply,
			Payload: json.RawMessage(`{"status":"ok","response":{}}`),
			Ref:     &ref,
		})
		wsjson.Write(ctx, conn, phoenixMessage{
			Topic: join.Topic,
			Event: eventPostgresChanges,
			Payload: json.RawMessage(`{"ids":[1],"data":{"schema":"public","table":"projects",
				"type":"INSERT","commit_timestamp":"2024-05-01T10:00:00Z",
				"record":{"id":"p1","name":"Tower"},"old_record":null}}`),
		})

		for {
			var msg phoenixMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			if msg.Event == eventLeave {
				left <- msg
				return
			}
		}
	})

	events := make(chan core.ChangeEvent, 1)
	r := a.Subscribe(context.Background(), core.TableProjects, func(e core.ChangeEvent) {
		events <- e
	})
	if r.Error != nil {
		t.Fatalf("Subscribe failed: %v", r.Error)
	}

	select {
	case join := <-joined:
		if join.Topic != "realtime:public:projects" || join.Event != eventJoin {
			t.Errorf("Unexpected join frame: %+v", join)
		}
		var payload joinPayload
		if err := json.Unmarshal(join.Payload, &payload); err != nil {
			t.Fatalf("Bad join payload: %v", err)
		}
		changes := payload.Config.PostgresChanges
		if len(changes) != 1 || changes[0].Event != "*" || changes[0].Table != "projects" {
			t.Errorf("Unexpected postgres_changes config: %+v", changes)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for join")
	}

	select {
	case e := <-events:
		if e.Type != core.ChangeInsert || e.Table != "projects" {
			t.Errorf("Unexpected event: %+v", e)
		}
		if e.Record["name"] != "Tower" {
			t.Errorf("Expected record payload, got %v", e.Record)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for change event")
	}

	r.Data()
	// Second call must be safe
	r.Data()

	select {
	case msg := <-left:
		if msg.Topic != "realtime:public:projects" {
			t.Errorf("Leave sent to wrong topic: %s", msg.Topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for phx_leave")
	}
}

func TestSubscribeFailsWithoutRealtime(t *testing.T) {
	a, _ := newConnectedAdapter(t)

	r := a.Subscribe(context.Background(), core.TableProjects, func(core.ChangeEvent) {})

	if r.Error == nil || r.Error.Kind != core.ConnectionError {
		t.Errorf("Expected connection error when the socket cannot open, got %v", r.Error)
	}
}

func TestDecodeLegacyChange(t *testing.T) {
	payload := json.RawMessage(`{"type":"DELETE","schema":"public","old_record":{"id":"p9"}}`)

	e, ok := decodeChange(payload, "projects")

	if !ok {
		t.Fatal("Expected legacy payload to decode")
	}
	if e.Type != core.ChangeDelete || e.Table != "projects" || e.OldRecord["id"] != "p9" {
		t.Errorf("Unexpected event: %+v", e)
	}

	if _, ok := decodeChange(json.RawMessage(`{"ids":[1]}`), "projects"); ok {
		t.Error("Expected payload without a change type to be rejected")
	}
}

func TestUnsubscribeFromInsideHandler(t *testing.T) {
	a, fake := newConnectedAdapter(t)

	left := make(chan struct{}, 1)
	fake.setRealtime(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var join phoenixMessage
		if err := wsjson.Read(ctx, conn, &join); err != nil {
			return
		}
		wsjson.Write(ctx, conn, phoenixMessage{
			Topic:   join.Topic,
			Event:   eventPostgresChanges,
			Payload: json.RawMessage(`{"data":{"table":"projects","type":"INSERT","record":{"id":"p1"}}}`),
		})

		for {
			var msg phoenixMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			if msg.Event == eventLeave {
				left <- struct{}{}
				return
			}
		}
	})

	unsubscribe := make(chan core.Unsubscribe, 1)
	returned := make(chan struct{})
	r := a.Subscribe(context.Background(), core.TableProjects, func(core.ChangeEvent) {
		unsub := <-unsubscribe
		unsub()
		close(returned)
	})
	if r.Error != nil {
		t.Fatalf("Subscribe failed: %v", r.Error)
	}
	unsubscribe <- r.Data

	select {
	case <-returned:
	case <-time.After(3 * time.Second):
		t.Fatal("Expected unsubscribe inside the handler to return")
	}

	select {
	case <-left:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for phx_leave")
	}
}
