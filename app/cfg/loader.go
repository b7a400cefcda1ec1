package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// HTTP / webhook configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port for the webhook endpoint"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL the hub can reach (e.g. a tunnel URL)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the management endpoints (optional)"`

	// Subscription hub configuration
	HubUrl        string `long:"hub-url" env:"HUB_URL" default:"https://pubsubhubbub.appspot.com/subscribe" description:"Push notification hub endpoint"`
	TopicTemplate string `long:"topic-template" env:"TOPIC_TEMPLATE" default:"https://www.youtube.com/xml/feeds/videos.xml?channel_id=%s" description:"Feed topic URL template, %s is the channel ID"`
	LeaseSeconds  int    `long:"lease-seconds" env:"LEASE_SECONDS" default:"86400" description:"Requested subscription lease duration in seconds"`

	// Polling fallback configuration
	PollInterval int  `long:"poll-interval" env:"POLL_INTERVAL" default:"30" description:"Polling fallback interval in seconds"`
	PollLimit    int  `long:"poll-limit" env:"POLL_LIMIT" default:"0" description:"Number of latest items to inspect per poll (default 5, or 3 in fast-poll mode)"`
	FastPoll     bool `long:"fast-poll" env:"FAST_POLL" description:"Aggressive polling mode with short cache TTL"`
	WorkerCount  int  `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for polling tasks"`

	// Pipeline configuration
	NoAutoUpload bool   `long:"no-auto-upload" env:"NO_AUTO_UPLOAD" description:"Disable automatic uploads, keep segments on disk"`
	DownloadDir  string `long:"download-dir" env:"DOWNLOAD_DIR" default:"./videos" description:"Directory for downloaded and derived media files"`
	DataDir      string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for the durable state database"`
	ChannelsFile string `long:"channels-file" env:"CHANNELS_FILE" default:"./channels.yml" description:"Channel routing table document"`

	// External tools
	DownloaderBin string `long:"downloader-bin" env:"DOWNLOADER_BIN" default:"yt-dlp" description:"Primary download provider binary"`
	FallbackBin   string `long:"fallback-bin" env:"FALLBACK_BIN" description:"Fallback download provider binary (optional)"`
	FFmpegBin     string `long:"ffmpeg-bin" env:"FFMPEG_BIN" default:"ffmpeg" description:"ffmpeg binary used for extension and segment extraction"`
	FFprobeBin    string `long:"ffprobe-bin" env:"FFPROBE_BIN" default:"ffprobe" description:"ffprobe binary used for duration probing"`
	UploaderBin   string `long:"uploader-bin" env:"UPLOADER_BIN" default:"tiktok-uploader" description:"Destination platform upload binary"`

	// Duration policy constants
	MinDuration     float64 `long:"min-duration" env:"MIN_DURATION" default:"3" description:"Hard floor for accepted video duration in seconds"`
	MaxDuration     float64 `long:"max-duration" env:"MAX_DURATION" default:"120" description:"Hard ceiling for accepted video duration in seconds"`
	ExtendThreshold float64 `long:"extend-threshold" env:"EXTEND_THRESHOLD" default:"60" description:"Videos shorter than this are extended before upload"`
	ExtendTarget    float64 `long:"extend-target" env:"EXTEND_TARGET" default:"63" description:"Target duration for extended videos in seconds"`
	PartDuration    float64 `long:"part-duration" env:"VIDEO_DURATION_LIMIT" default:"113" description:"Maximum duration of one uploaded segment in seconds"`
	PartCount       int     `long:"part-count" env:"VIDEO_PARTS" default:"3" description:"Maximum number of segments per video"`

	// Cache configuration
	CacheTTL        int `long:"cache-ttl" env:"CACHE_TTL" default:"300" description:"Channel list cache TTL in seconds"`
	FastCacheTTL    int `long:"fast-cache-ttl" env:"FAST_CACHE_TTL" default:"15" description:"Channel list cache TTL in aggressive mode"`
	CacheCapacity   int `long:"cache-capacity" env:"CACHE_CAPACITY" default:"50" description:"Maximum number of cached channel lists"`
	CacheFlushEvery int `long:"cache-flush-every" env:"CACHE_FLUSH_EVERY" default:"10" description:"Persist the list cache every N insertions"`
	DedupFlushEvery int `long:"dedup-flush-every" env:"DEDUP_FLUSH_EVERY" default:"50" description:"Persist the dedup set every N new hashes"`

	// Shutdown
	ShutdownGrace int `long:"shutdown-grace" env:"SHUTDOWN_GRACE" default:"30" description:"Seconds to wait for an in-flight job on shutdown"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"tube-relay/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	// One-shot operations
	AddChannel    string `long:"add-channel" description:"Register a channel as 'name,channel_id[,account]' and exit"`
	RemoveChannel string `long:"remove-channel" description:"Remove a channel by id or name and exit"`
	ListChannels  bool   `long:"list-channels" description:"Print the channel routing table and exit"`
	CheckOnce     bool   `long:"check-once" description:"Poll all channels once and exit"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:            raw.Port,
		BaseUrl:         raw.BaseUrl,
		APIAccessKey:    raw.APIAccessKey,
		HubUrl:          raw.HubUrl,
		TopicTemplate:   raw.TopicTemplate,
		LeaseSeconds:    raw.LeaseSeconds,
		PollInterval:    raw.PollInterval,
		PollLimit:       resolvePollLimit(raw.PollLimit, raw.FastPoll),
		FastPoll:        raw.FastPoll,
		WorkerCount:     raw.WorkerCount,
		AutoUpload:      !raw.NoAutoUpload,
		DownloadDir:     raw.DownloadDir,
		DataDir:         raw.DataDir,
		ChannelsFile:    raw.ChannelsFile,
		DownloaderBin:   raw.DownloaderBin,
		FallbackBin:     raw.FallbackBin,
		FFmpegBin:       raw.FFmpegBin,
		FFprobeBin:      raw.FFprobeBin,
		UploaderBin:     raw.UploaderBin,
		MinDuration:     raw.MinDuration,
		MaxDuration:     raw.MaxDuration,
		ExtendThreshold: raw.ExtendThreshold,
		ExtendTarget:    raw.ExtendTarget,
		PartDuration:    raw.PartDuration,
		PartCount:       raw.PartCount,
		CacheTTL:        raw.CacheTTL,
		FastCacheTTL:    raw.FastCacheTTL,
		CacheCapacity:   raw.CacheCapacity,
		CacheFlushEvery: raw.CacheFlushEvery,
		DedupFlushEvery: raw.DedupFlushEvery,
		ShutdownGrace:   raw.ShutdownGrace,
		UserAgent:       raw.UserAgent,
		Debug:           raw.Debug,
		Version:         GetVersion(),
		AddChannel:      raw.AddChannel,
		RemoveChannel:   raw.RemoveChannel,
		ListChannels:    raw.ListChannels,
		CheckOnce:       raw.CheckOnce,
	}

	globalCfg = cfg

	return cfg, nil
}

// resolvePollLimit applies the mode-dependent default when --poll-limit was
// not given. An explicit value wins in either mode, aggressive mode inspects
// fewer items per cycle otherwise.
func resolvePollLimit(limit int, fastPoll bool) int {
	if limit > 0 {
		return limit
	}
	if fastPoll {
		return 3
	}
	return 5
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}
