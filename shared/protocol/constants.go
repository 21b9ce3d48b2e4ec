package protocol

// Client -> server message kinds.
const (
	TypeJoin                    = "join"
	TypeChatMessage             = "chat_message"
	TypeInvestHype              = "invest_hype"
	TypeTransactionScore        = "transaction_score"
	TypeRushVerificationAttempt = "rush_verification_attempt"
)

// Server -> client message kinds.
const (
	TypeConnectionAck        = "connection_ack"
	TypeError                = "error"
	TypeUpdateResources      = "update_resources"
	TypeUpdatePlayerHype     = "update_player_hype"
	TypeAllMemesStatusUpdate = "all_memes_status_update"
	TypeSurgeStart           = "transaction_surge_start"
	TypeSurgeEnd             = "transaction_surge_end"
	TypeMemeViralEvent       = "meme_viral_event"
	TypeNoViralEvent         = "no_viral_event"
	TypeBroadcast            = "broadcast"
)

// WelcomeMessage is sent with every connection_ack.
const WelcomeMessage = "Welcome to LayerEdge Network Defender!"
