package srv

import (
	"encoding/json"
	"errors"
	"log"

	"layeredge/server/currency"
	"layeredge/server/metrics"
	"layeredge/server/recorder"
	"layeredge/shared/protocol"
)

// dispatch routes one inbound frame. Runs on the loop.
func (h *Hub) dispatch(c *client, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		metrics.MessagesIn.WithLabelValue("malformed").Inc()
		h.fail(c, currency.ErrMalformedMessage)
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		metrics.MessagesIn.WithLabelValue(env.Type).Inc()
		h.join(c)
	case protocol.TypeChatMessage:
		metrics.MessagesIn.WithLabelValue(env.Type).Inc()
		h.handleChat(c, data)
	case protocol.TypeInvestHype:
		metrics.MessagesIn.WithLabelValue(env.Type).Inc()
		h.handleInvest(c, data)
	case protocol.TypeTransactionScore:
		metrics.MessagesIn.WithLabelValue(env.Type).Inc()
		h.handleScore(c, data)
	case protocol.TypeRushVerificationAttempt:
		metrics.MessagesIn.WithLabelValue(env.Type).Inc()
		h.handleVerification(c, data)
	default:
		metrics.MessagesIn.WithLabelValue("relay").Inc()
		h.relay(c, data)
	}
}

func (h *Hub) fail(c *client, err error) {
	code := "INTERNAL"
	var ce *currency.Error
	if errors.As(err, &ce) {
		code = ce.Code
	}
	metrics.Errors.WithLabelValue(code).Inc()
	sendJSON(c, protocol.NewError(currency.Message(err)))
}

func (h *Hub) reject(c *client) {
	h.fail(c, currency.ErrRateLimited)
}

// join registers c on first use and answers with its ack. A second join
// from the same connection only repeats the ack.
func (h *Hub) join(c *client) {
	if c.id == "" {
		id := protocol.NewPlayerID()
		if _, err := h.accounts.Register(id); err != nil {
			h.fail(c, err)
			return
		}
		c.id = id
		h.mu.Lock()
		h.byID[id] = c
		h.mu.Unlock()
		log.Printf("HUB: player %s connected, %d online", id, h.accounts.Len())
	}

	acc, ok := h.accounts.Get(c.id)
	if !ok {
		h.fail(c, currency.ErrSessionNotFound)
		return
	}
	sendJSON(c, protocol.ConnectionAck{
		Type:             protocol.TypeConnectionAck,
		Message:          protocol.WelcomeMessage,
		PlayerID:         acc.ID,
		CurrentResources: acc.Resources,
		CurrentHype:      acc.Hype,
		ServerMemes:      h.market.SnapshotAll(),
	})

	if h.surge != nil && h.surge.Kick(h.opts.InitialSurgeDelay) {
		log.Printf("HUB: first surge armed for %s from now", h.opts.InitialSurgeDelay)
	}
}

func (h *Hub) session(c *client) (string, bool) {
	if c.id == "" {
		return "", false
	}
	if _, ok := h.accounts.Get(c.id); !ok {
		return "", false
	}
	return c.id, true
}

func (h *Hub) handleChat(c *client, data []byte) {
	var msg protocol.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.fail(c, currency.ErrMalformedMessage)
		return
	}
	payload := msg.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	h.Broadcast(protocol.ChatBroadcast{
		Type:      protocol.TypeChatMessage,
		Payload:   payload,
		Timestamp: protocol.Timestamp(h.now()),
	})
}

func (h *Hub) handleInvest(c *client, data []byte) {
	var msg protocol.InvestHype
	if err := json.Unmarshal(data, &msg); err != nil {
		h.fail(c, currency.ErrMalformedMessage)
		return
	}
	id, ok := h.session(c)
	if !ok {
		h.fail(c, currency.ErrSessionNotFound)
		return
	}

	res, err := h.market.Invest(id, msg.MemeID, msg.Amount)
	if err != nil {
		log.Printf("MARKET: %s invest %v in %q rejected: %v", id, msg.Amount, msg.MemeID, err)
		h.fail(c, err)
		return
	}
	amount := int64(msg.Amount)
	metrics.HypeInvested.Add(amount)

	sendJSON(c, protocol.NewUpdatePlayerHype(res.NewHype))
	h.Broadcast(protocol.NewAllMemesStatus(h.market.SnapshotAll()))

	_ = h.rec.RecordInvestment(&recorder.InvestmentEvent{
		PlayerID:  id,
		MemeID:    msg.MemeID,
		Amount:    amount,
		MemeTotal: res.MemeTotal,
		At:        h.now(),
	})
}

func (h *Hub) handleScore(c *client, data []byte) {
	var msg protocol.TransactionScore
	if err := json.Unmarshal(data, &msg); err != nil {
		h.fail(c, currency.ErrMalformedMessage)
		return
	}
	id, ok := h.session(c)
	if !ok {
		h.fail(c, currency.ErrSessionNotFound)
		return
	}

	reward, err := currency.ComputeReward(msg.Score, msg.Target)
	if err != nil {
		h.fail(c, err)
		return
	}
	newTotal, credited, err := h.accounts.Credit(id, float64(reward.Earned), reward.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	metrics.RushResources.Add(credited)
	log.Printf("HUB: %s scored %d/%d, +%d resources", id, msg.Score, msg.Target, credited)

	sendJSON(c, protocol.NewUpdateResources(newTotal, credited, reward.Reason))

	_ = h.rec.RecordReward(&recorder.RewardEvent{
		PlayerID: id,
		Score:    msg.Score,
		Target:   msg.Target,
		Earned:   credited,
		Bonus:    reward.Bonus,
		At:       h.now(),
	})
}

func (h *Hub) handleVerification(c *client, data []byte) {
	var msg protocol.RushVerificationAttempt
	if err := json.Unmarshal(data, &msg); err != nil {
		h.fail(c, currency.ErrMalformedMessage)
		return
	}
	id, ok := h.session(c)
	if !ok {
		h.fail(c, currency.ErrSessionNotFound)
		return
	}
	log.Printf("HUB: %s reported %d verifications", id, msg.Count)
}

// relay forwards a message kind the server does not interpret to every
// other registered session.
func (h *Hub) relay(c *client, data []byte) {
	h.broadcastOthers(c, encode(protocol.Relay{
		Type:   protocol.TypeBroadcast,
		Data:   json.RawMessage(data),
		Sender: c.id,
	}))
}
