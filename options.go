package bufcodec

// DefaultSafetyLimit is the largest element count a Reader accepts from a
// length prefix unless overridden with WithSafetyLimit.
const DefaultSafetyLimit = 1_000_000

// Option configures a Reader or a Writer. Options that only make sense for
// one side are ignored by the other.
type Option func(*config)

type config struct {
	safetyLimit int
	preview     bool
	compact     bool
	capacity    int

	key  *Key
	salt uint64
}

func defaultConfig() *config {
	return &config{
		safetyLimit: DefaultSafetyLimit,
		compact:     true,
	}
}

func newConfig(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithSafetyLimit sets the maximum element count accepted by ReadCount and
// every container decoder built on it. Reader only.
func WithSafetyLimit(n int) Option {
	return func(c *config) {
		c.safetyLimit = n
	}
}

// WithPreview starts the Reader in preview mode. Reader only.
func WithPreview(on bool) Option {
	return func(c *config) {
		c.preview = on
	}
}

// WithCompactIntegers selects the varint form (true, the default) or the raw
// fixed-width form (false) for 32- and 64-bit integer fields. Reader and
// Writer must agree. Counts, lengths and blob framing are always varints.
func WithCompactIntegers(on bool) Option {
	return func(c *config) {
		c.compact = on
	}
}

// WithCapacity preallocates the Writer's buffer. Writer only.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithKey configures the key and salt a Writer uses when it persists itself
// through WriteFile. Writer only.
func WithKey(key Key, salt uint64) Option {
	return func(c *config) {
		k := key
		c.key = &k
		c.salt = salt
	}
}
