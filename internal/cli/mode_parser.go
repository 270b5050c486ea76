package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeOrder     = "order-service"
	ModeRelay     = "outbox-relay"
	ModeAnalytics = "analytics-worker"
	ModeNotify    = "notification-worker"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeOrder, "order":
		return ModeOrder, true
	case ModeRelay, "relay":
		return ModeRelay, true
	case ModeAnalytics, "analytics":
		return ModeAnalytics, true
	case ModeNotify, "notify":
		return ModeNotify, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `order-service --port=3001`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, nil
	}

	if m, ok := isKnownMode(mode); ok {
		mode = m
	}

	return mode, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // switch the color to cyan

	fmt.Fprintln(w, `Usage:
  ./delivery-platform --mode=<service> [flags]

Services (modes):
  order-service         HTTP API for creating and transitioning orders
  outbox-relay          Publishes committed order events to the brokers
  analytics-worker      Consumes the event stream into daily metrics
  notification-worker   Consumes order events and dispatches notifications

Examples:
  ./delivery-platform --mode=order-service --port=3000
  ./delivery-platform --mode=outbox-relay
  ./delivery-platform --mode=analytics-worker
  ./delivery-platform --mode=notification-worker --workers=4 --prefetch=16`)

	fmt.Fprint(w, "\033[0m") // switch back to normal
}

func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./delivery-platform --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
