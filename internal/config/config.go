package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

// SniperConfig drives the webhook-driven execution engine service.
type SniperConfig struct {
	RPCURL     string
	Commitment rpc.CommitmentType
	Signer     solana.PrivateKey

	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	AmmProgramID solana.PublicKey

	// Pool accounts are identified in webhook payloads by the exact
	// rent deposit their creation produced.
	RaydiumPoolRentLamports int64
	PumpPoolRentLamports    int64

	BuySpendLamports          uint64
	BuySlippageBps            uint64
	SellSlippageBps           uint64
	PriorityFeeMicroLamports  uint64
	ComputeUnitLimit          uint32
	SkipPreflight             bool
	UseBundle                 bool
	BundleEndpoint            string
	TipLamports               uint64
	MinQuoteLiquidityUSD      float64
	TxTimeout                 time.Duration
	ConfirmPollInterval       time.Duration
	SellDelay                 time.Duration
	SellRetryInterval         time.Duration
	MaxSellAttempts           int
	TokenMetadataURL          string
	NativePriceURL            string
	OracleRequestTimeout      time.Duration
	HeliusAPIKey              string
	DBDSN                     string

	Log LogConfig
}

var defaultAmmProgramID = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")

const (
	// Lamports deposited into a freshly created Raydium V4 pool account
	// (rent exemption for the 752-byte state).
	defaultRaydiumPoolRentLamports = 6_124_800
	defaultPumpPoolRentLamports    = 2_039_280

	defaultTokenMetadataURL = "https://api.helius.xyz/v0/tokens/metadata"
	defaultNativePriceURL   = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
)

func LoadSniperConfig() (SniperConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return SniperConfig{}, err
	}

	signer, err := loadSigner()
	if err != nil {
		return SniperConfig{}, err
	}

	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed)
	if err != nil {
		return SniperConfig{}, err
	}

	readTimeout, err := envDuration("SNIPER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return SniperConfig{}, err
	}
	writeTimeout, err := envDuration("SNIPER_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return SniperConfig{}, err
	}
	idleTimeout, err := envDuration("SNIPER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return SniperConfig{}, err
	}

	ammProgramID, err := envPubkey("RAYDIUM_AMM_PROGRAM_ID", defaultAmmProgramID)
	if err != nil {
		return SniperConfig{}, err
	}

	raydiumRent, err := envInt64("SNIPER_RAYDIUM_POOL_RENT_LAMPORTS", defaultRaydiumPoolRentLamports)
	if err != nil {
		return SniperConfig{}, err
	}
	pumpRent, err := envInt64("SNIPER_PUMP_POOL_RENT_LAMPORTS", defaultPumpPoolRentLamports)
	if err != nil {
		return SniperConfig{}, err
	}

	buySOL, err := envFloat("SNIPER_BUY_AMOUNT_SOL", 0.01)
	if err != nil {
		return SniperConfig{}, err
	}
	if buySOL <= 0 {
		return SniperConfig{}, fmt.Errorf("invalid SNIPER_BUY_AMOUNT_SOL: must be > 0")
	}

	buySlippageBps, err := envUint64("SNIPER_BUY_SLIPPAGE_BPS", 1000)
	if err != nil {
		return SniperConfig{}, err
	}
	sellSlippageBps, err := envUint64("SNIPER_SELL_SLIPPAGE_BPS", 500)
	if err != nil {
		return SniperConfig{}, err
	}
	if buySlippageBps >= 10_000 || sellSlippageBps >= 10_000 {
		return SniperConfig{}, fmt.Errorf("slippage bps must be < 10000")
	}

	priorityFee, err := envUint64("SNIPER_PRIORITY_FEE_MICRO_LAMPORTS", 10_000_000)
	if err != nil {
		return SniperConfig{}, err
	}
	cuLimit, err := envUint32("SNIPER_COMPUTE_UNIT_LIMIT", 0)
	if err != nil {
		return SniperConfig{}, err
	}
	skipPreflight, err := envBool("SNIPER_SKIP_PREFLIGHT", false)
	if err != nil {
		return SniperConfig{}, err
	}
	useBundle, err := envBool("SNIPER_USE_BUNDLE", false)
	if err != nil {
		return SniperConfig{}, err
	}
	tipLamports, err := envUint64("SNIPER_TIP_LAMPORTS", 1000)
	if err != nil {
		return SniperConfig{}, err
	}
	minLiquidityUSD, err := envFloat("SNIPER_MIN_QUOTE_LIQUIDITY_USD", 1000)
	if err != nil {
		return SniperConfig{}, err
	}

	txTimeout, err := envDuration("SNIPER_TX_TIMEOUT", 30*time.Second)
	if err != nil {
		return SniperConfig{}, err
	}
	confirmPoll, err := envDuration("SNIPER_CONFIRM_POLL_INTERVAL", 700*time.Millisecond)
	if err != nil {
		return SniperConfig{}, err
	}
	sellDelay, err := envDuration("SNIPER_SELL_DELAY", 30*time.Second)
	if err != nil {
		return SniperConfig{}, err
	}
	sellRetryInterval, err := envDuration("SNIPER_SELL_RETRY_INTERVAL", 10*time.Second)
	if err != nil {
		return SniperConfig{}, err
	}
	maxSellAttempts, err := envInt("SNIPER_MAX_SELL_ATTEMPTS", 20)
	if err != nil {
		return SniperConfig{}, err
	}
	oracleTimeout, err := envDuration("SNIPER_ORACLE_TIMEOUT", 5*time.Second)
	if err != nil {
		return SniperConfig{}, err
	}

	return SniperConfig{
		RPCURL:                   envOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		Commitment:               commitment,
		Signer:                   signer,
		ListenAddr:               envOrDefault("SNIPER_LISTEN_ADDR", ":3000"),
		ReadTimeout:              readTimeout,
		WriteTimeout:             writeTimeout,
		IdleTimeout:              idleTimeout,
		AmmProgramID:             ammProgramID,
		RaydiumPoolRentLamports:  raydiumRent,
		PumpPoolRentLamports:     pumpRent,
		BuySpendLamports:         uint64(buySOL * float64(solana.LAMPORTS_PER_SOL)),
		BuySlippageBps:           buySlippageBps,
		SellSlippageBps:          sellSlippageBps,
		PriorityFeeMicroLamports: priorityFee,
		ComputeUnitLimit:         cuLimit,
		SkipPreflight:            skipPreflight,
		UseBundle:                useBundle,
		BundleEndpoint:           envOrDefault("JITO_ENDPOINT", "https://mainnet.block-engine.jito.wtf/api/v1/bundles"),
		TipLamports:              tipLamports,
		MinQuoteLiquidityUSD:     minLiquidityUSD,
		TxTimeout:                txTimeout,
		ConfirmPollInterval:      confirmPoll,
		SellDelay:                sellDelay,
		SellRetryInterval:        sellRetryInterval,
		MaxSellAttempts:          maxSellAttempts,
		TokenMetadataURL:         envOrDefault("TOKEN_METADATA_URL", defaultTokenMetadataURL),
		NativePriceURL:           envOrDefault("NATIVE_PRICE_URL", defaultNativePriceURL),
		OracleRequestTimeout:     oracleTimeout,
		HeliusAPIKey:             envOrDefault("HELIUS_API_KEY", ""),
		DBDSN:                    envOrDefault("SNIPER_DB_DSN", ""),
		Log:                      buildLogConfig("SNIPER", "sniper"),
	}, nil
}

// loadSigner accepts either a base58 PRIVATE_KEY or a solana-keygen
// JSON file path; the inline key wins when both are present.
func loadSigner() (solana.PrivateKey, error) {
	if raw := strings.TrimSpace(valueForKey("PRIVATE_KEY")); raw != "" {
		key, err := solana.PrivateKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("parse PRIVATE_KEY: %w", err)
		}
		return key, nil
	}

	keypairPath, err := expandHomePath(envOrDefault("SOLANA_KEYPAIR_PATH", "~/.config/solana/id.json"))
	if err != nil {
		return nil, fmt.Errorf("expand keypair path: %w", err)
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", keypairPath, err)
	}
	return key, nil
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) LogConfig {
	return LogConfig{
		Level:    envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info")),
		Format:   envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text")),
		Output:   envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console")),
		FilePath: envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join("logs", serviceName+".log"))),
	}
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	switch strings.ToLower(raw) {
	case string(rpc.CommitmentProcessed):
		return rpc.CommitmentProcessed, nil
	case string(rpc.CommitmentConfirmed):
		return rpc.CommitmentConfirmed, nil
	case string(rpc.CommitmentFinalized):
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("invalid %s: %q (expected processed|confirmed|finalized)", key, raw)
	}
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return v, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(v), nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(valueForKey(key)); value != "" {
		return value
	}
	return fallback
}

func expandHomePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

// ensureRuntimeConfigLoaded overlays a per-phase yaml file under the
// environment: os.Getenv wins, flattened yaml keys fill the gaps.
func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigValues = make(map[string]string)

		phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if phase == "" {
			phase = "local"
		}
		runtimeConfigPhase = phase

		configPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicitPath := configPath != ""
		if configPath == "" {
			configPath = filepath.Join("config", "config-"+phase+".yaml")
		}

		body, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicitPath {
				return
			}
			runtimeConfigErr = fmt.Errorf("read config file %q: %w", configPath, err)
			return
		}

		raw := make(map[string]any)
		if err := yaml.Unmarshal(body, &raw); err != nil {
			runtimeConfigErr = fmt.Errorf("parse config file %q: %w", configPath, err)
			return
		}

		flattened, err := flattenConfig(raw)
		if err != nil {
			runtimeConfigErr = fmt.Errorf("flatten config file %q: %w", configPath, err)
			return
		}

		runtimeConfigValues = flattened
		runtimeConfigLoaded = true
		if absPath, err := filepath.Abs(configPath); err == nil {
			runtimeConfigPath = absPath
		} else {
			runtimeConfigPath = configPath
		}
	})
	return runtimeConfigErr
}

func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int64, uint64, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}

	return strings.TrimSpace(runtimeConfigValues[key])
}
