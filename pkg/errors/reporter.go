package errors

import (
	"os"
	"time"

	"github.com/certifi/gocertifi"
	"github.com/getsentry/sentry-go"

	"faktoro.io/faktoro-relay/pkg/log"
)

var (
	reporters []Reporter
)

func init() {
	reporters = make([]Reporter, 0)
	if os.Getenv(debugMode) == "" {
		log.Info("Env DEBUG not set, report errors enabled.")
	} else {
		log.Info("Env DEBUG set, report errors disabled.")
	}
}

func report(err error) {
	if reporters == nil || err == nil {
		return
	}
	if os.Getenv(debugMode) != "" {
		return
	}
	for _, r := range reporters {
		r.Report(err)
	}
}

// Reporter delivers an error to an external sink.
type Reporter interface {
	Report(error)
}

// Setting this env var disables all reporting.
const debugMode = "DEBUG"

type sentryReporter struct {
	limiter *rateLimiter
}

func (s *sentryReporter) Report(err error) {
	if err == nil {
		return
	}
	stacks := StackOf(err)
	if len(stacks) > 0 {
		if limited, _ := s.limiter.StackBasedRateLimited(stacks[0]); limited {
			return
		}
	}
	sentry.CaptureException(err)
}

// NewSentryReporter registers a sentry sink for reported errors.
// Reports from the same stack top are silenced for reportDelay between sends.
func NewSentryReporter(sentryDSN string, reportDelay time.Duration) error {
	if sentryDSN == "" {
		log.Warn("empty DSN found, skipping sentry reporter initialization.")
		return nil
	}
	sentryClientOptions := sentry.ClientOptions{
		Dsn: sentryDSN,
	}

	rootCAs, err := gocertifi.CACerts()
	if err != nil {
		return Wrap(err, "init sentry CA")
	}

	sentryClientOptions.CaCerts = rootCAs
	if err := sentry.Init(sentryClientOptions); err != nil {
		return Wrap(err, "init sentry")
	}
	log.Info("sentry error reporter initialized.")
	reporters = append(reporters, &sentryReporter{limiter: newRateLimiter(reportDelay)})
	return nil
}
