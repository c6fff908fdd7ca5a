package detour

import "github.com/charmbracelet/log"

// Option changes how a Provider creates a Handle.
type Option func(*options)

type options struct {
	logger    *log.Logger
	scanLimit int
	stub      any
}

func newOptions(opts []Option) options {
	o := options{
		logger:    Logger(),
		scanLimit: DefaultScanLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sends the handle's log output to lg instead of the package
// logger.
func WithLogger(lg *log.Logger) Option {
	return func(o *options) {
		if lg != nil {
			o.logger = lg
		}
	}
}

// WithScanLimit caps how many bytes at the start of the target are decoded.
// Values below the minimum are raised to it.
func WithScanLimit(n int) Option {
	return func(o *options) {
		o.scanLimit = max(n, minScanLimit)
	}
}

// WithTrampolineStub gives the Gohook provider a function to overwrite with
// its trampoline. The stub must have the original's signature and must not
// be inlined. The native provider ignores it.
func WithTrampolineStub(stub any) Option {
	return func(o *options) {
		o.stub = stub
	}
}

// WithConfig applies the per-handle settings in cfg.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.scanLimit = max(cfg.ScanLimit, minScanLimit)
	}
}
