package cfg

type Cfg struct {
	// HTTP / webhook configuration
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Subscription hub configuration
	HubUrl        string
	TopicTemplate string
	LeaseSeconds  int

	// Polling fallback configuration
	PollInterval int
	PollLimit    int
	FastPoll     bool
	WorkerCount  int

	// Pipeline configuration
	AutoUpload   bool
	DownloadDir  string
	DataDir      string
	ChannelsFile string

	// External tools
	DownloaderBin string
	FallbackBin   string
	FFmpegBin     string
	FFprobeBin    string
	UploaderBin   string

	// Duration policy constants (seconds)
	MinDuration     float64
	MaxDuration     float64
	ExtendThreshold float64
	ExtendTarget    float64
	PartDuration    float64
	PartCount       int

	// Cache configuration
	CacheTTL        int
	FastCacheTTL    int
	CacheCapacity   int
	CacheFlushEvery int
	DedupFlushEvery int

	// Shutdown
	ShutdownGrace int

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string

	// One-shot operations
	AddChannel    string
	RemoveChannel string
	ListChannels  bool
	CheckOnce     bool
}

// ListCacheTTL returns the channel list cache TTL in effect, honoring
// aggressive fast-poll mode.
func (c *Cfg) ListCacheTTL() int {
	if c.FastPoll {
		return c.FastCacheTTL
	}
	return c.CacheTTL
}
