package processors

import (
	"context"
	"time"

	"github.com/birdayz/kflow/kprocessor"
)

// DefaultSampleInterval is the sequence distance between two samples.
const DefaultSampleInterval = 1000

// SampleSink samples data messages whose sequence id is a multiple of the
// interval and reports the time elapsed since the sink was initialized.
type SampleSink struct {
	interval uint64
	onSample func(seq uint64, elapsed time.Duration)
	in       kprocessor.Ports

	start time.Time
}

type SampleOption func(*SampleSink)

func WithSampleInterval(n uint64) SampleOption {
	return func(s *SampleSink) {
		if n > 0 {
			s.interval = n
		}
	}
}

// WithOnSample replaces the default action, which logs the sample.
func WithOnSample(fn func(seq uint64, elapsed time.Duration)) SampleOption {
	return func(s *SampleSink) {
		s.onSample = fn
	}
}

// WithSampleInputs declares explicit input ports.
func WithSampleInputs(ports ...kprocessor.PortHandle) SampleOption {
	return func(s *SampleSink) {
		s.in = kprocessor.DeclarePorts(ports...)
	}
}

func NewSampleSink(opts ...SampleOption) *SampleSink {
	s := &SampleSink{
		interval: DefaultSampleInterval,
		in:       kprocessor.DefaultPorts(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SampleSink) InputPorts() kprocessor.Ports { return s.in }

func (s *SampleSink) Init(sc kprocessor.StageContext) error {
	s.start = time.Now()
	if s.onSample == nil {
		log := sc.Logger()
		s.onSample = func(seq uint64, elapsed time.Duration) {
			log.Info("Sampled event", "seq", seq, "elapsed", elapsed)
		}
	}
	return nil
}

func (s *SampleSink) Process(_ context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext) (kprocessor.Control, error) {
	if msg.Kind == kprocessor.KindData && msg.Seq%s.interval == 0 {
		s.onSample(msg.Seq, time.Since(s.start))
	}
	return kprocessor.Continue, nil
}

func (s *SampleSink) Close() error {
	return nil
}
