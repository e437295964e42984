package config

import (
	"log/slog"
	"net"
	"strconv"
	"strings"

	"nyxchain/observability"
)

// Network constants carried over from the chain parameters.
const (
	MainNetPort    = 24055
	TestNetPort    = 18065
	MainNetRPCPort = 35075
	TestNetRPCPort = 15075

	// Coin is the number of base units per coin.
	Coin int64 = 100_000_000

	DefaultTimeoutMS      = 5000
	DefaultMaxConnections = 200
	DefaultBanScore       = 100
	DefaultBanTimeSeconds = 86400
	DefaultMixRounds      = 2
	DefaultConfirmDepth   = 5
	DefaultAddrLifespan   = 7
	DefaultMinerSleepMS   = 500
	DefaultDBCacheMB      = 100
	DefaultKeyPoolSize    = 100

	MinMixRounds       = 1
	MaxMixRounds       = 16
	LiquidityRounds    = 99999
	MinAnonymizeAmount = 2
	MaxAnonymizeAmount = 999999
	MaxConfirmDepth    = 60
)

// EffectiveConfig is the resolved node configuration. It is produced once by
// Resolve and shared read-only afterwards; components never patch it in place.
type EffectiveConfig struct {
	DataDir string
	TestNet bool

	// Network.
	Listen         bool
	Port           int
	Binds          []string
	ExternalIPs    []string
	OnlyNets       []string
	Proxy          string
	TorProxy       string // empty when Tor routing is disabled
	Discover       bool
	UPnP           bool
	DNSSeed        bool
	NameLookup     bool
	ConnectPeers   []string
	AddNodes       []string
	SeedNodes      []string
	MaxConnections int
	BanScore       int
	BanTimeSeconds int
	TimeoutMS      int
	AddrLifespan   int

	// Wallet.
	DisableWallet  bool
	WalletFile     string
	Rescan         bool
	SalvageWallet  bool
	Staking        bool
	PayTxFee       int64
	MinInput       int64
	ReserveBalance int64
	KeyPoolSize    int

	// Chain.
	FastIndex    bool
	DBCacheMB    int
	MinerSleepMS int
	ImportFiles  []string

	// Masternode and mixing.
	MasterNode        bool
	MasterNodeAddr    string
	MasterNodePrivKey string
	SporkKey          string
	PaymentsKey       string
	LiteMode          bool
	EnableMixing      bool
	MixRounds         int
	AnonymizeAmount   int64
	LiquidityProvider int
	MinBlockSpacing   int

	// Instant confirmations.
	EnableInstantConfirm bool
	InstantConfirmDepth  int

	// RPC.
	RPCAddress   string
	RPCAuthToken string

	// Logging.
	Debug          bool
	PrintToConsole bool
}

// rule is one declared parameter interaction: when the trigger option is set,
// the implied option is soft-set to the implied value.
type rule struct {
	trigger string
	implied string
	value   string
}

// Interaction rules in fixed priority order. Each only fills in options the
// operator left unset.
var interactionRules = []rule{
	{"bind", "listen", "1"},
	{"connect", "dnsseed", "0"},
	{"connect", "listen", "0"},
	{"proxy", "listen", "0"},
	{"proxy", "discover", "0"},
	{"externalip", "discover", "0"},
	{"salvagewallet", "rescan", "1"},
}

// Rules that fire when listening ends up disabled, after the table above.
var noListenRules = []rule{
	{"listen", "upnp", "0"},
	{"listen", "discover", "0"},
}

// Resolve derives the effective configuration from raw options. Interaction
// rules are applied in a fixed order and never override an option the
// operator set explicitly; out-of-range values fail with a *Error naming the
// offending option. Resolve never mutates opts and performs no I/O beyond
// reading it.
func Resolve(opts *RawOptions, logger *slog.Logger) (*EffectiveConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Interaction rules write soft values into a private copy; the caller's
	// option set comes back exactly as it went in.
	opts = opts.Clone()

	// Setting the SOCKS protocol version is not supported; only SOCKS5
	// proxies work, so catch the stale option instead of silently running
	// with degraded privacy.
	if opts.Has("socks") {
		return nil, &Error{Option: "socks", Value: opts.Get("socks", ""), Reason: "unsupported; only SOCKS5 proxies are supported"}
	}

	if opts.Bool("testnet", false) {
		softSet(opts, logger, "testnet", "irc", "1")
	}
	for _, r := range interactionRules {
		if r.trigger == "salvagewallet" || r.trigger == "testnet" {
			if !opts.Bool(r.trigger, false) {
				continue
			}
		} else if !opts.Has(r.trigger) {
			continue
		}
		softSet(opts, logger, r.trigger, r.implied, r.value)
	}
	if !opts.Bool("listen", true) {
		for _, r := range noListenRules {
			softSet(opts, logger, "listen=0", r.implied, r.value)
		}
	}

	cfg := &EffectiveConfig{
		DataDir: opts.Get("datadir", ""),
		TestNet: opts.Bool("testnet", false),
	}

	port := MainNetPort
	rpcPort := MainNetRPCPort
	if cfg.TestNet {
		port = TestNetPort
		rpcPort = TestNetRPCPort
	}
	var err error
	if cfg.Port, err = intOption(opts, "port", int64(port), 1, 65535); err != nil {
		return nil, err
	}
	if rpcPort, err = intOption(opts, "rpcport", int64(rpcPort), 1, 65535); err != nil {
		return nil, err
	}

	cfg.Listen = opts.Bool("listen", true)
	cfg.Discover = opts.Bool("discover", true)
	cfg.UPnP = opts.Bool("upnp", cfg.Listen)
	cfg.DNSSeed = opts.Bool("dnsseed", true)
	cfg.NameLookup = opts.Bool("dns", true)
	cfg.Binds = opts.Multi("bind")
	cfg.ExternalIPs = opts.Multi("externalip")
	cfg.OnlyNets = opts.Multi("onlynet")
	cfg.ConnectPeers = opts.Multi("connect")
	cfg.AddNodes = opts.Multi("addnode")
	cfg.SeedNodes = opts.Multi("seednode")
	cfg.Proxy = opts.Get("proxy", "")

	// -tor can override the general proxy; -tor=0 disables Tor routing even
	// when a general proxy is set.
	tor := opts.Get("tor", "")
	switch {
	case opts.Has("tor") && tor == "0":
		cfg.TorProxy = ""
	case opts.Has("tor"):
		cfg.TorProxy = tor
	default:
		cfg.TorProxy = cfg.Proxy
	}

	if cfg.MaxConnections, err = intOption(opts, "maxconnections", DefaultMaxConnections, 1, 10000); err != nil {
		return nil, err
	}
	if cfg.BanScore, err = intOption(opts, "banscore", DefaultBanScore, 1, 1<<30); err != nil {
		return nil, err
	}
	if cfg.BanTimeSeconds, err = intOption(opts, "bantime", DefaultBanTimeSeconds, 1, 1<<30); err != nil {
		return nil, err
	}
	if cfg.TimeoutMS, err = intOption(opts, "timeout", DefaultTimeoutMS, 1, 599999); err != nil {
		return nil, err
	}
	if cfg.AddrLifespan, err = intOption(opts, "addrlifespan", DefaultAddrLifespan, 1, 1<<20); err != nil {
		return nil, err
	}

	cfg.DisableWallet = opts.Bool("disablewallet", false)
	cfg.WalletFile = opts.Get("wallet", "wallet.dat")
	if strings.ContainsAny(cfg.WalletFile, `/\`) {
		return nil, &Error{Option: "wallet", Value: cfg.WalletFile, Reason: "wallet file must reside inside the data directory"}
	}
	cfg.Rescan = opts.Bool("rescan", false)
	cfg.SalvageWallet = opts.Bool("salvagewallet", false)
	cfg.Staking = opts.Bool("staking", true)
	if cfg.PayTxFee, err = moneyOption(opts, "paytxfee", 0); err != nil {
		return nil, err
	}
	if cfg.PayTxFee > Coin/4 {
		logger.Warn("paytxfee is set very high; this is the fee paid on every transaction you send",
			slog.Int64("paytxfee", cfg.PayTxFee))
	}
	if cfg.MinInput, err = moneyOption(opts, "mininput", Coin/100); err != nil {
		return nil, err
	}
	if cfg.ReserveBalance, err = moneyOption(opts, "reservebalance", 0); err != nil {
		return nil, err
	}
	if cfg.KeyPoolSize, err = intOption(opts, "keypool", DefaultKeyPoolSize, 1, 1<<20); err != nil {
		return nil, err
	}

	cfg.FastIndex = opts.Bool("fastindex", true)
	if cfg.DBCacheMB, err = intOption(opts, "dbcache", DefaultDBCacheMB, 4, 16384); err != nil {
		return nil, err
	}
	if cfg.MinerSleepMS, err = intOption(opts, "minersleep", DefaultMinerSleepMS, 1, 60000); err != nil {
		return nil, err
	}
	cfg.ImportFiles = opts.Multi("loadblock")

	cfg.MasterNode = opts.Bool("masternode", false)
	cfg.MasterNodeAddr = opts.Get("masternodeaddr", "")
	cfg.MasterNodePrivKey = opts.Get("masternodeprivkey", "")
	cfg.SporkKey = opts.Get("sporkkey", "")
	cfg.PaymentsKey = opts.Get("masternodepaymentskey", "")
	cfg.LiteMode = opts.Bool("litemode", false)

	cfg.EnableMixing = opts.Bool("enabledarksend", false)
	rounds, err := opts.Int("darksendrounds", DefaultMixRounds)
	if err != nil {
		return nil, err
	}
	cfg.MixRounds = clampInt(int(rounds), MinMixRounds, MaxMixRounds)
	amount, err := opts.Int("anonymizeamount", 0)
	if err != nil {
		return nil, err
	}
	cfg.AnonymizeAmount = int64(clampInt(int(amount), MinAnonymizeAmount, MaxAnonymizeAmount))
	if cfg.LiquidityProvider, err = intOption(opts, "liquidityprovider", 0, 0, 100); err != nil {
		return nil, err
	}
	if cfg.LiquidityProvider != 0 {
		// Liquidity providers mix continually on behalf of the pool.
		cfg.MinBlockSpacing = cfg.LiquidityProvider * 15
		cfg.EnableMixing = true
		cfg.MixRounds = LiquidityRounds
	}

	cfg.EnableInstantConfirm = opts.Bool("enableinstantx", true)
	if cfg.EnableInstantConfirm {
		depth, err := opts.Int("instantxdepth", DefaultConfirmDepth)
		if err != nil {
			return nil, err
		}
		if depth < 0 {
			return nil, &Error{Option: "instantxdepth", Value: opts.Get("instantxdepth", ""), Reason: "depth cannot be negative"}
		}
		if depth > MaxConfirmDepth {
			depth = MaxConfirmDepth
		}
		cfg.InstantConfirmDepth = int(depth)
	}

	host := opts.Get("rpcbind", "127.0.0.1")
	cfg.RPCAddress = joinHostPort(host, rpcPort)
	cfg.RPCAuthToken = opts.Get("rpcauthtoken", "")

	cfg.Debug = opts.Bool("debug", false)
	if opts.Bool("nodebug", false) {
		cfg.Debug = false
	}
	cfg.PrintToConsole = opts.Bool("printtoconsole", false)

	return cfg, nil
}

func softSet(opts *RawOptions, logger *slog.Logger, trigger, implied, value string) {
	if opts.SoftSet(implied, value) {
		observability.Metrics().SoftSetsApplied.Inc()
		logger.Info("parameter interaction",
			slog.String("trigger", "-"+trigger),
			slog.String("applied", "-"+implied+"="+value))
		return
	}
	if opts.Explicit(implied) {
		// Conflicting explicit settings are accepted as given.
		logger.Debug("parameter interaction skipped; option set explicitly",
			slog.String("trigger", "-"+trigger),
			slog.String("option", "-"+implied))
	}
}

func intOption(opts *RawOptions, name string, def int64, min, max int) (int, error) {
	v, err := opts.Int(name, def)
	if err != nil {
		return 0, err
	}
	if v < int64(min) || v > int64(max) {
		return 0, &Error{Option: name, Value: opts.Get(name, ""), Reason: "value out of range"}
	}
	return int(v), nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}
