// Package config builds an application.EngineConfig, and the concrete
// infrastructure clients it is wired against, from the process
// environment.
package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"unicode"

	"github.com/agl/ed25519"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/satsbridge/swapd/internal/core/application"
	"github.com/satsbridge/swapd/internal/core/domain"
	"github.com/satsbridge/swapd/internal/core/ports"
	badgerdb "github.com/satsbridge/swapd/internal/infrastructure/db/badger"
	"github.com/satsbridge/swapd/internal/infrastructure/lnd"
	solanainfra "github.com/satsbridge/swapd/internal/infrastructure/solana"
	gocron "github.com/satsbridge/swapd/internal/infrastructure/scheduler/gocron"
	"github.com/satsbridge/swapd/internal/infrastructure/sidechannel/nostr"
)

const badgerDb = "badger"

// Config is the raw, env-sourced shape that LoadConfig fills in. Its Build*
// methods turn it into the typed ports/application wiring the daemon
// actually runs with.
type Config struct {
	Datadir      string `mapstructure:"DATADIR" envDefault:"swapd" envInfo:"Data directory for swapd state"`
	DbType       string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend (badger only)"`
	LogLevel     uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`
	PyroscopeURL string `mapstructure:"PYROSCOPE_URL" envDefault:"" envInfo:"Pyroscope server address for continuous profiling; profiling disabled if unset"`

	Role       string `mapstructure:"ROLE" envDefault:"" envInfo:"Engine role: maker | taker"`
	SigningKey string `mapstructure:"SIGNING_KEY" envDefault:"" envInfo:"Hex-encoded ed25519 seed used to sign envelopes; generated and persisted under DATADIR if unset"`

	RelayURLs    string `mapstructure:"RELAY_URLS" envDefault:"" envInfo:"Comma-separated nostr relay URLs"`
	NostrPrivKey string `mapstructure:"NOSTR_PRIV_KEY" envDefault:"" envInfo:"Hex-encoded secp256k1 key this peer publishes nostr events with; generated and persisted under DATADIR if unset"`
	RFQChannel   string `mapstructure:"RFQ_CHANNEL" envDefault:"rfq" envInfo:"Shared channel makers advertise quotes on"`
	AppHash    string `mapstructure:"APP_HASH" envDefault:"" envInfo:"hash(protocol_version || solana_program_id); rejects cross-deployment envelopes"`

	SolanaRPCURL  string `mapstructure:"SOLANA_RPC_URL" envDefault:"" envInfo:"Solana RPC endpoint"`
	ProgramID     string `mapstructure:"PROGRAM_ID" envDefault:"" envInfo:"Escrow program base58 address"`
	Mint          string `mapstructure:"MINT" envDefault:"" envInfo:"SPL token mint base58 address"`
	SolSigningKey string `mapstructure:"SOL_SIGNING_KEY" envDefault:"" envInfo:"Base58 Solana private key this peer signs transactions with"`
	SolPayerATA   string `mapstructure:"SOL_PAYER_TOKEN_ACCOUNT" envDefault:"" envInfo:"This peer's SPL token account for MINT"`

	LndUrl string `mapstructure:"LND_URL" envDefault:"" envInfo:"LND connection URL (lndconnect://...)"`

	PlatformFeeBps       int    `mapstructure:"PLATFORM_FEE_BPS" envDefault:"0" envInfo:"Maker platform fee, applied to every quote issued"`
	PlatformFeeCollector string `mapstructure:"PLATFORM_FEE_COLLECTOR" envDefault:"" envInfo:"Base58 address the platform fee is paid to"`
	TradeFeeBps          int    `mapstructure:"TRADE_FEE_BPS" envDefault:"0" envInfo:"Maker trade fee, applied to every quote issued"`
	TradeFeeCollector    string `mapstructure:"TRADE_FEE_COLLECTOR" envDefault:"" envInfo:"Base58 address the trade fee is paid to"`
	QuoteValidSec        int64  `mapstructure:"QUOTE_VALID_SEC" envDefault:"30" envInfo:"How long a maker's quote remains acceptable"`
	SolRefundWindowSec   int64  `mapstructure:"SOL_REFUND_WINDOW_SEC" envDefault:"3600" envInfo:"Escrow refund timelock offered by the maker"`
	EnableSettlement     bool   `mapstructure:"ENABLE_SETTLEMENT" envDefault:"true" envInfo:"Maker: reject RFQs without sol_recipient; escrow creation on ACCEPT does not depend on it"`

	MaxPlatformFeeBps     int   `mapstructure:"MAX_PLATFORM_FEE_BPS" envDefault:"50" envInfo:"Taker cap: reject TERMS above this platform fee"`
	MaxTradeFeeBps        int   `mapstructure:"MAX_TRADE_FEE_BPS" envDefault:"50" envInfo:"Taker cap: reject TERMS above this trade fee"`
	MaxTotalFeeBps        int   `mapstructure:"MAX_TOTAL_FEE_BPS" envDefault:"80" envInfo:"Taker cap: reject TERMS above this combined fee"`
	MinSolRefundWindowSec int64 `mapstructure:"MIN_SOL_REFUND_WINDOW_SEC" envDefault:"600" envInfo:"Taker cap: reject TERMS below this refund window"`
	MaxSolRefundWindowSec int64 `mapstructure:"MAX_SOL_REFUND_WINDOW_SEC" envDefault:"86400" envInfo:"Taker cap: reject TERMS above this refund window"`

	ResendBaselineSec          int64 `mapstructure:"RESEND_BASELINE_SEC" envDefault:"5" envInfo:"Resend cadence while the peer is still seen as live"`
	ResendWidenedSec           int64 `mapstructure:"RESEND_WIDENED_SEC" envDefault:"30" envInfo:"Resend cadence after ResendWidenAfterSilenceSec of silence"`
	ResendWidenAfterSilenceSec int64 `mapstructure:"RESEND_WIDEN_AFTER_SILENCE_SEC" envDefault:"60" envInfo:"Silence threshold before widening the resend cadence"`
	RetryResendMinMs           int64 `mapstructure:"RETRY_RESEND_MIN_MS" envDefault:"2000" envInfo:"Minimum gap between resends of the same envelope on retry"`
	SwapTimeoutSec             int64 `mapstructure:"SWAP_TIMEOUT_SEC" envDefault:"1800" envInfo:"Overall swap deadline (maker: from sending TERMS; taker: from sending ACCEPT); cancels the trade past it"`
	RFQLockPruneIntervalSec    int   `mapstructure:"RFQ_LOCK_PRUNE_INTERVAL_SEC" envDefault:"10" envInfo:"How often the maker sweeps expired RFQ locks"`
	HygieneIntervalMs          int64 `mapstructure:"HYGIENE_INTERVAL_MS" envDefault:"15000" envInfo:"How often the engine leaves stale swap channels"`
	SwapAutoLeaveCooldownMs    int64 `mapstructure:"SWAP_AUTO_LEAVE_COOLDOWN_MS" envDefault:"60000" envInfo:"Minimum gap between leave attempts on the same channel"`

	WaitingTermsPingCooldownMs int64 `mapstructure:"WAITING_TERMS_PING_COOLDOWN_MS" envDefault:"5000" envInfo:"Taker: minimum gap between QUOTE_ACCEPT re-pings while waiting on TERMS"`
	WaitingTermsMaxPings       int   `mapstructure:"WAITING_TERMS_MAX_PINGS" envDefault:"6" envInfo:"Taker: maximum QUOTE_ACCEPT re-pings sent while waiting on TERMS"`
	WaitingTermsMaxWaitMs      int64 `mapstructure:"WAITING_TERMS_MAX_WAIT_MS" envDefault:"60000" envInfo:"Taker: total time allowed waiting on TERMS before giving up"`
	WaitingTermsLeaveOnTimeout bool  `mapstructure:"WAITING_TERMS_LEAVE_ON_TIMEOUT" envDefault:"true" envInfo:"Taker: leave the swap channel when TERMS never arrives"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAPD")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.initDb(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	if config.Role != "maker" && config.Role != "taker" {
		return nil, fmt.Errorf("ROLE must be \"maker\" or \"taker\", got %q", config.Role)
	}

	return &config, nil
}

func (c *Config) initDb() error {
	if c.DbType != badgerDb {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}

	if c.Datadir == "swapd" {
		c.Datadir = appDatadir("swapd", false)
	}
	return makeDirectoryIfNotExists(c.Datadir)
}

// RelayList splits the comma-separated RELAY_URLS env var.
func (c *Config) RelayList() []string {
	var out []string
	for _, u := range strings.Split(c.RelayURLs, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// signingSeedPath returns where a generated ed25519 seed is persisted, so a
// restarted process keeps the same envelope-signing identity.
func (c *Config) signingSeedPath() string {
	return filepath.Join(c.Datadir, "signing_key.hex")
}

// loadOrCreateSigningKey resolves the ed25519 keypair this process signs
// envelopes with: an explicit SIGNING_KEY wins, otherwise a seed persisted
// under DATADIR is reused, otherwise a fresh one is generated and persisted.
func (c *Config) loadOrCreateSigningKey() (pubHex string, sk *[ed25519.PrivateKeySize]byte, err error) {
	seedHex := c.SigningKey
	if seedHex == "" {
		if b, readErr := os.ReadFile(c.signingSeedPath()); readErr == nil {
			seedHex = strings.TrimSpace(string(b))
		}
	}

	var seed [32]byte
	if seedHex == "" {
		if _, err := rand.Read(seed[:]); err != nil {
			return "", nil, fmt.Errorf("generate signing seed: %w", err)
		}
		seedHex = hex.EncodeToString(seed[:])
		if err := os.WriteFile(c.signingSeedPath(), []byte(seedHex), 0600); err != nil {
			return "", nil, fmt.Errorf("persist signing seed: %w", err)
		}
	} else {
		decoded, err := hex.DecodeString(seedHex)
		if err != nil || len(decoded) != 32 {
			return "", nil, fmt.Errorf("signing key must be 32 hex-encoded bytes")
		}
		copy(seed[:], decoded)
	}

	pub, priv, err := ed25519.GenerateKey(seedReader{seed[:]})
	if err != nil {
		return "", nil, fmt.Errorf("derive ed25519 keypair: %w", err)
	}
	return hex.EncodeToString(pub[:]), priv, nil
}

// seedReader feeds a fixed 32-byte seed to ed25519.GenerateKey in place of
// crypto/rand, so the same seed always derives the same keypair.
type seedReader struct{ seed []byte }

func (r seedReader) Read(p []byte) (int, error) {
	n := copy(p, r.seed)
	return n, nil
}

func (c *Config) nostrKeyPath() string {
	return filepath.Join(c.Datadir, "nostr_key.hex")
}

// loadOrCreateNostrKey resolves the secp256k1 key this peer's transport
// signs relay events with, independent of the ed25519 envelope-signing
// identity: an explicit NOSTR_PRIV_KEY wins, otherwise a key persisted under
// DATADIR is reused, otherwise a fresh one is generated and persisted.
func (c *Config) loadOrCreateNostrKey() (string, error) {
	keyHex := c.NostrPrivKey
	if keyHex == "" {
		if b, err := os.ReadFile(c.nostrKeyPath()); err == nil {
			keyHex = strings.TrimSpace(string(b))
		}
	}
	if keyHex != "" {
		return keyHex, nil
	}

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("generate nostr key: %w", err)
	}
	keyHex = hex.EncodeToString(key[:])
	if err := os.WriteFile(c.nostrKeyPath(), []byte(keyHex), 0600); err != nil {
		return "", fmt.Errorf("persist nostr key: %w", err)
	}
	return keyHex, nil
}

// EngineConfig builds the application.EngineConfig this process's engine
// runs with.
func (c *Config) EngineConfig() (application.EngineConfig, error) {
	pubHex, sk, err := c.loadOrCreateSigningKey()
	if err != nil {
		return application.EngineConfig{}, err
	}

	return application.EngineConfig{
		Role:       c.Role,
		SelfPubHex: pubHex,
		SelfSK:     sk,

		RFQChannel: c.RFQChannel,
		AppHash:    c.AppHash,
		ProgramID:  c.ProgramID,
		Mint:       c.Mint,

		SolWalletAddress:     c.solWalletAddress(),
		SolPayerTokenAccount: c.SolPayerATA,

		PlatformFeeBps:       c.PlatformFeeBps,
		PlatformFeeCollector: c.PlatformFeeCollector,
		TradeFeeBps:          c.TradeFeeBps,
		TradeFeeCollector:    c.TradeFeeCollector,
		QuoteValidSec:        c.QuoteValidSec,
		SolRefundWindowSec:   c.SolRefundWindowSec,
		EnableSettlement:     c.EnableSettlement,

		MaxPlatformFeeBps:     c.MaxPlatformFeeBps,
		MaxTradeFeeBps:        c.MaxTradeFeeBps,
		MaxTotalFeeBps:        c.MaxTotalFeeBps,
		MinSolRefundWindowSec: c.MinSolRefundWindowSec,
		MaxSolRefundWindowSec: c.MaxSolRefundWindowSec,

		ResendBaselineSec:          c.ResendBaselineSec,
		ResendWidenedSec:           c.ResendWidenedSec,
		ResendWidenAfterSilenceSec: c.ResendWidenAfterSilenceSec,
		RetryResendMinMs:           c.RetryResendMinMs,
		SwapTimeoutSec:             c.SwapTimeoutSec,
		RFQLockPruneIntervalSec:    c.RFQLockPruneIntervalSec,
		HygieneIntervalMs:          c.HygieneIntervalMs,
		SwapAutoLeaveCooldownMs:    c.SwapAutoLeaveCooldownMs,

		WaitingTermsPingCooldownMs: c.WaitingTermsPingCooldownMs,
		WaitingTermsMaxPings:       c.WaitingTermsMaxPings,
		WaitingTermsMaxWaitMs:      c.WaitingTermsMaxWaitMs,
		WaitingTermsLeaveOnTimeout: c.WaitingTermsLeaveOnTimeout,
	}, nil
}

func (c *Config) solWalletAddress() string {
	if c.SolSigningKey == "" {
		return ""
	}
	return solana.MustPrivateKeyFromBase58(c.SolSigningKey).PublicKey().String()
}

// SolanaSigner returns the private key this process signs escrow
// transactions with.
func (c *Config) SolanaSigner() (solana.PrivateKey, error) {
	if c.SolSigningKey == "" {
		return nil, fmt.Errorf("SOL_SIGNING_KEY not set")
	}
	return solana.PrivateKeyFromBase58(c.SolSigningKey)
}

// BuildTransport constructs the nostr-backed ports.Transport.
func (c *Config) BuildTransport() (ports.Transport, error) {
	keyHex, err := c.loadOrCreateNostrKey()
	if err != nil {
		return nil, err
	}
	return nostr.NewTransport(keyHex, c.RelayList())
}

// BuildEscrowClient constructs the solana-go-backed ports.EscrowClient.
func (c *Config) BuildEscrowClient() (ports.EscrowClient, error) {
	signer, err := c.SolanaSigner()
	if err != nil {
		return nil, err
	}
	programID := solana.MustPublicKeyFromBase58(c.ProgramID)
	return solanainfra.NewClient(c.SolanaRPCURL, programID, signer), nil
}

// BuildLnService constructs an lnd-backed ports.LnService and connects it
// using LndUrl.
func (c *Config) BuildLnService(ctx context.Context) (ports.LnService, error) {
	svc := lnd.NewService()
	if err := svc.Connect(ctx, c.LndUrl); err != nil {
		return nil, fmt.Errorf("connect lnd: %w", err)
	}
	return svc, nil
}

// BuildReceiptsRepository opens the badger-backed receipts store rooted at
// Datadir.
func (c *Config) BuildReceiptsRepository() (domain.ReceiptsRepository, error) {
	return badgerdb.NewReceiptsRepository(c.Datadir, nil)
}

// BuildScheduler constructs the gocron-backed ports.SchedulerService.
func (c *Config) BuildScheduler() ports.SchedulerService {
	return gocron.NewScheduler()
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}
	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library", "Application Support", appNameUpper)
		}
	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}
	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}
	return "."
}

//go:generate go run ../../tools/gen-env-doc/main.go
