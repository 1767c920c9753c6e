package notify

import "fmt"

// ConsoleSink prints alerts to stdout. The default sink when no Discord
// channel is configured.
type ConsoleSink struct{}

func (ConsoleSink) Send(a Alert) {
	prefix := "·"
	switch a.Severity {
	case SeverityWarning:
		prefix = "!"
	case SeverityCritical:
		prefix = "!!"
	}
	fmt.Printf("%s %s\n", prefix, a.Message)
}
