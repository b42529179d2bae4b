package processor

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/connectionloops/cloops.nats/errors"
)

// resolveStream finds the single stream that captures every bound
// subject (spec §4.3.2/§9): each bound subject must be captured by
// exactly one stream, and all bindings in this processor must resolve to
// the same stream, since they share one durable consumer.
func (p *Processor) resolveStream(ctx context.Context) (string, error) {
	names, err := p.listStreamNames(ctx)
	if err != nil {
		return "", err
	}

	resolved := make(map[string]struct{}, 1)
	for _, b := range p.bindings {
		matches, err := p.streamsCapturing(ctx, names, b.Subject())
		if err != nil {
			return "", err
		}
		if len(matches) != 1 {
			return "", errors.Wrapf(ErrAmbiguousStream, "subject %q, found %d", b.Subject(), len(matches))
		}
		resolved[matches[0]] = struct{}{}
	}
	if len(resolved) != 1 {
		return "", errors.Wrapf(ErrAmbiguousStream, "consumer %q bindings must share one stream, found %d", p.consumerID, len(resolved))
	}

	for name := range resolved {
		return name, nil
	}
	return "", errors.New("processor: no stream resolved")
}

func (p *Processor) listStreamNames(ctx context.Context) ([]string, error) {
	var names []string
	for name := range p.js.StreamNames(nats.Context(ctx)) {
		names = append(names, name)
	}
	return names, nil
}

func (p *Processor) streamsCapturing(ctx context.Context, streamNames []string, subject string) ([]string, error) {
	var matches []string
	for _, name := range streamNames {
		info, err := p.js.StreamInfo(name, nats.Context(ctx))
		if err != nil {
			return nil, errors.Wrapf(err, "processor: stream info for %q", name)
		}
		for _, s := range info.Config.Subjects {
			if subjectCaptured(s, subject) {
				matches = append(matches, name)
				break
			}
		}
	}
	return matches, nil
}

// subjectCaptured reports whether streamSubject (a possibly wildcarded
// stream filter subject) captures subject (a bound subject, itself
// possibly wildcarded, e.g. "evt.>"). It's a token-wise containment
// check: streamSubject must be equal to or broader than subject at every
// position.
func subjectCaptured(streamSubject, subject string) bool {
	st := splitSubject(streamSubject)
	bt := splitSubject(subject)

	i, j := 0, 0
	for {
		if i == len(st) {
			return j == len(bt)
		}
		if j == len(bt) {
			return false
		}
		if st[i] == ">" {
			return true
		}
		if bt[j] == ">" {
			return false
		}
		if st[i] != "*" && st[i] != bt[j] {
			return false
		}
		i++
		j++
	}
}

func splitSubject(subject string) []string {
	var tokens []string
	start := 0
	for i := 0; i < len(subject); i++ {
		if subject[i] == '.' {
			tokens = append(tokens, subject[start:i])
			start = i + 1
		}
	}
	tokens = append(tokens, subject[start:])
	return tokens
}
