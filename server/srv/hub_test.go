package srv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"layeredge/server/account"
	"layeredge/server/currency"
	"layeredge/server/market"
	"layeredge/server/surge"
	"layeredge/shared/protocol"
)

type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

type testEnv struct {
	hub      *Hub
	loop     *Loop
	accounts *account.Registry
	server   *httptest.Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	l := startLoop(t)
	accounts := account.NewRegistry()
	h := NewHub(l, accounts, market.New(accounts), nil, opts)
	ts := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(ts.Close)
	return &testEnv{hub: h, loop: l, accounts: accounts, server: ts}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// join dials and consumes the connection_ack, returning the player id.
func (e *testEnv) join(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	conn := e.dial(t)
	ack := readType(t, conn, protocol.TypeConnectionAck)
	return conn, ack["playerId"].(string)
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readType reads until a message of kind typ arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestConnectionAck(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t)

	ack := readType(t, conn, protocol.TypeConnectionAck)
	if ack["message"] != protocol.WelcomeMessage {
		t.Errorf("message = %v", ack["message"])
	}
	if id, _ := ack["playerId"].(string); id == "" {
		t.Error("missing playerId")
	}
	if ack["currentResources"] != float64(1000) || ack["currentHype"] != float64(100) {
		t.Errorf("balances = %v / %v, want 1000 / 100", ack["currentResources"], ack["currentHype"])
	}
	memes, _ := ack["serverMemes"].([]any)
	if len(memes) != 2 {
		t.Fatalf("serverMemes = %v", ack["serverMemes"])
	}
	first := memes[0].(map[string]any)
	if first["id"] != "meme1" || first["name"] != "Classic Doge" || first["iconKey"] != "icon_doge" {
		t.Errorf("first meme = %v", first)
	}
	if _, leaked := first["investorsThisCycle"]; leaked {
		t.Error("investor ledger leaked to client")
	}
}

func TestJoinRepeatsAck(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, id := env.join(t)

	send(t, conn, `{"type":"join"}`)
	ack := readType(t, conn, protocol.TypeConnectionAck)
	if ack["playerId"] != id {
		t.Fatalf("second ack id = %v, want %s", ack["playerId"], id)
	}
}

func TestInvestHype(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, _ := env.join(t)

	send(t, conn, `{"type":"invest_hype","memeId":"meme1","amount":10}`)
	hype := readType(t, conn, protocol.TypeUpdatePlayerHype)
	if hype["newHypeAmount"] != float64(90) {
		t.Fatalf("newHypeAmount = %v, want 90", hype["newHypeAmount"])
	}
	status := readType(t, conn, protocol.TypeAllMemesStatusUpdate)
	memes := status["memes"].([]any)
	if got := memes[0].(map[string]any)["currentHypeInvestment"]; got != float64(10) {
		t.Fatalf("meme1 investment = %v, want 10", got)
	}
}

func TestInvestHypeErrors(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, _ := env.join(t)

	tests := []struct {
		raw  string
		want string
	}{
		{`{"type":"invest_hype","memeId":"meme1","amount":500}`, currency.ErrInsufficientFunds.Message},
		{`{"type":"invest_hype","memeId":"meme9","amount":5}`, currency.ErrUnknownMeme.Message},
		{`{"type":"invest_hype","memeId":"meme1","amount":-5}`, currency.ErrInvalidAmount.Message},
		{`{"type":"invest_hype","memeId":"meme1","amount":"ten"}`, currency.ErrMalformedMessage.Message},
	}
	for _, tt := range tests {
		send(t, conn, tt.raw)
		msg := readType(t, conn, protocol.TypeError)
		if msg["message"] != tt.want {
			t.Errorf("%s: error = %v, want %q", tt.raw, msg["message"], tt.want)
		}
	}
}

func TestTransactionScore(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, _ := env.join(t)

	send(t, conn, `{"type":"transaction_score","score":10,"target":5}`)
	msg := readType(t, conn, protocol.TypeUpdateResources)
	if msg["newTotal"] != float64(1150) || msg["changeAmount"] != float64(150) {
		t.Fatalf("update = %v", msg)
	}
	if msg["reason"] != "Transaction Rush Reward + Bonus!" {
		t.Fatalf("reason = %v", msg["reason"])
	}
}

func TestTransactionScoreRejectsOverflow(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, id := env.join(t)

	send(t, conn, `{"type":"transaction_score","score":700000000000000000,"target":0}`)
	first := readType(t, conn, protocol.TypeUpdateResources)
	if first["changeAmount"] != float64(7e18) {
		t.Fatalf("first update = %v", first)
	}

	send(t, conn, `{"type":"transaction_score","score":700000000000000000,"target":0}`)
	msg := readType(t, conn, protocol.TypeError)
	if msg["message"] != currency.ErrInvalidAmount.Message {
		t.Fatalf("error = %v", msg["message"])
	}

	var acc account.Account
	if err := env.loop.Do(context.Background(), func() { acc, _ = env.accounts.Get(id) }); err != nil {
		t.Fatal(err)
	}
	if acc.Resources != 7000000000000001000 {
		t.Fatalf("resources = %d after refused reward", acc.Resources)
	}
}

func TestMalformedMessage(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, _ := env.join(t)

	for _, raw := range []string{"not json", `{"amount":3}`, `[1,2]`} {
		send(t, conn, raw)
		msg := readType(t, conn, protocol.TypeError)
		if msg["message"] != "Invalid message format." {
			t.Errorf("%q: error = %v", raw, msg["message"])
		}
	}
}

func TestChatAndRelay(t *testing.T) {
	env := newTestEnv(t, Options{})
	a, aID := env.join(t)
	b, _ := env.join(t)

	send(t, a, `{"type":"chat_message","payload":{"text":"gm"}}`)
	for _, conn := range []*websocket.Conn{a, b} {
		chat := readType(t, conn, protocol.TypeChatMessage)
		if chat["payload"].(map[string]any)["text"] != "gm" {
			t.Errorf("payload = %v", chat["payload"])
		}
		if ts, _ := chat["timestamp"].(string); ts == "" {
			t.Error("chat missing timestamp")
		}
	}

	send(t, a, `{"type":"emote","name":"wave"}`)
	relay := readType(t, b, protocol.TypeBroadcast)
	if relay["sender"] != aID {
		t.Errorf("sender = %v, want %s", relay["sender"], aID)
	}
	if data := relay["data"].(map[string]any); data["type"] != "emote" || data["name"] != "wave" {
		t.Errorf("data = %v", relay["data"])
	}
}

func TestRateLimited(t *testing.T) {
	env := newTestEnv(t, Options{MessagesPerSecond: 0.001, Burst: 1})
	conn, _ := env.join(t)

	send(t, conn, `{"type":"rush_verification_attempt","count":1}`)
	send(t, conn, `{"type":"rush_verification_attempt","count":2}`)
	msg := readType(t, conn, protocol.TypeError)
	if msg["message"] != currency.ErrRateLimited.Message {
		t.Fatalf("error = %v", msg["message"])
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, id := env.join(t)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var present bool
		if err := env.loop.Do(context.Background(), func() { _, present = env.accounts.Get(id) }); err != nil {
			t.Fatalf("Do: %v", err)
		}
		if !present {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s still registered after disconnect", id)
}

func TestHandlersRequireSession(t *testing.T) {
	accounts := account.NewRegistry()
	h := NewHub(NewLoop(1), accounts, market.New(accounts), nil, Options{})
	c := &client{send: make(chan []byte, 4), id: "gone"}

	h.handleInvest(c, []byte(`{"type":"invest_hype","memeId":"meme1","amount":10}`))
	h.handleScore(c, []byte(`{"type":"transaction_score","score":10,"target":5}`))
	h.handleVerification(c, []byte(`{"type":"rush_verification_attempt","count":3}`))
	for i := 0; i < 3; i++ {
		var msg protocol.ErrorMsg
		if err := json.Unmarshal(<-c.send, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != protocol.TypeError || msg.Message != currency.ErrSessionNotFound.Message {
			t.Fatalf("reply %d = %+v", i, msg)
		}
	}
	for _, meme := range h.market.SnapshotAll() {
		if meme.CurrentHypeInvestment != 0 {
			t.Fatalf("%s pool = %d after invest without a session", meme.ID, meme.CurrentHypeInvestment)
		}
	}
}

func TestFirstConnectionKicksSurge(t *testing.T) {
	env := newTestEnv(t, Options{InitialSurgeDelay: 10 * time.Millisecond})
	cfg := surge.DefaultConfig()
	cfg.Duration = time.Hour
	env.hub.SetSurge(surge.New(cfg, env.hub, NewClock(env.loop), fixedRandom(0.5), nil))

	conn, _ := env.join(t)
	start := readType(t, conn, protocol.TypeSurgeStart)
	if start["target"] != float64(50) || start["duration"] != float64(time.Hour.Milliseconds()) {
		t.Fatalf("surge start = %v", start)
	}
}
