package application

import "github.com/agl/ed25519"

// EngineConfig carries every tunable the maker/taker loops and the hygiene
// controller need. internal/config builds this from the environment; tests
// build it by hand.
type EngineConfig struct {
	Role string // "maker" | "taker"

	SelfPubHex string
	SelfSK     *[ed25519.PrivateKeySize]byte

	RFQChannel string
	AppHash    string // hash(protocol_version || solana_program_id)
	ProgramID  string
	Mint       string

	// This peer's own Solana wallet: SolWalletAddress funds and is
	// refunded by escrows it creates; SolPayerTokenAccount is its SPL
	// token account for Mint.
	SolWalletAddress     string
	SolPayerTokenAccount string

	// Maker fee policy, applied to every quote this peer issues.
	PlatformFeeBps       int
	PlatformFeeCollector string
	TradeFeeBps          int
	TradeFeeCollector    string
	QuoteValidSec        int64
	SolRefundWindowSec   int64
	EnableSettlement     bool

	// Taker acceptance caps; a TERMS exceeding any of these is rejected.
	MaxPlatformFeeBps     int
	MaxTradeFeeBps        int
	MaxTotalFeeBps        int
	MinSolRefundWindowSec int64
	MaxSolRefundWindowSec int64

	// Resend/timeout/prune cadences for the maker and taker loops.
	ResendBaselineSec          int64
	ResendWidenedSec           int64
	ResendWidenAfterSilenceSec int64
	RetryResendMinMs           int64
	SwapTimeoutSec             int64
	RFQLockPruneIntervalSec    int
	HygieneIntervalMs          int64
	SwapAutoLeaveCooldownMs    int64

	WaitingTermsPingCooldownMs int64
	WaitingTermsMaxPings       int
	WaitingTermsMaxWaitMs      int64
	WaitingTermsLeaveOnTimeout bool
}

func (c EngineConfig) isMaker() bool { return c.Role == "maker" }
func (c EngineConfig) isTaker() bool { return c.Role == "taker" }
