package protocol

import "encoding/json"

// ================= C -> S =================

type ChatMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// InvestHype carries the amount as a float so that fractional or negative
// values reach validation instead of failing to decode.
type InvestHype struct {
	Type   string  `json:"type"`
	MemeID string  `json:"memeId"`
	Amount float64 `json:"amount"`
}

type TransactionScore struct {
	Type   string `json:"type"`
	Score  int64  `json:"score"`
	Target int64  `json:"target"`
}

type RushVerificationAttempt struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// ================= S -> C =================

type ConnectionAck struct {
	Type             string       `json:"type"`
	Message          string       `json:"message"`
	PlayerID         string       `json:"playerId"`
	CurrentResources int64        `json:"currentResources"`
	CurrentHype      int64        `json:"currentHype"`
	ServerMemes      []MemeStatus `json:"serverMemes"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type UpdateResources struct {
	Type         string `json:"type"`
	NewTotal     int64  `json:"newTotal"`
	ChangeAmount int64  `json:"changeAmount"`
	Reason       string `json:"reason"`
}

type UpdatePlayerHype struct {
	Type          string `json:"type"`
	NewHypeAmount int64  `json:"newHypeAmount"`
}

type AllMemesStatus struct {
	Type  string       `json:"type"`
	Memes []MemeStatus `json:"memes"`
}

type SurgeStart struct {
	Type      string `json:"type"`
	Duration  int64  `json:"duration"` // ms
	Target    int64  `json:"target"`
	Timestamp string `json:"timestamp"`
}

type SurgeEnd struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type MemeViralEvent struct {
	Type              string   `json:"type"`
	MemeID            string   `json:"memeId"`
	MemeName          string   `json:"memeName"`
	InvestorPlayerIDs []string `json:"investorPlayerIds"`
	RewardAmount      int64    `json:"rewardAmount"`
	Message           string   `json:"message"`
}

type NoViralEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ChatBroadcast struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Relay wraps any message kind the server does not interpret.
type Relay struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Sender string          `json:"sender"`
}

func NewError(message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: message}
}

func NewUpdateResources(newTotal, change int64, reason string) UpdateResources {
	return UpdateResources{Type: TypeUpdateResources, NewTotal: newTotal, ChangeAmount: change, Reason: reason}
}

func NewUpdatePlayerHype(hype int64) UpdatePlayerHype {
	return UpdatePlayerHype{Type: TypeUpdatePlayerHype, NewHypeAmount: hype}
}

func NewAllMemesStatus(memes []MemeStatus) AllMemesStatus {
	if memes == nil {
		memes = []MemeStatus{}
	}
	return AllMemesStatus{Type: TypeAllMemesStatusUpdate, Memes: memes}
}
