package ws

import (
	"strings"
	"time"
)

// Message is the envelope for all event stream messages. Type is the bus
// topic and Data its payload.
type Message struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// topicFilter matches topics against dot-separated prefixes. An empty
// filter matches everything.
type topicFilter []string

func parseFilter(raw string) topicFilter {
	var f topicFilter
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			f = append(f, strings.TrimSuffix(p, ".*"))
		}
	}
	return f
}

func (f topicFilter) match(topic string) bool {
	if len(f) == 0 {
		return true
	}
	for _, p := range f {
		if topic == p || strings.HasPrefix(topic, p+".") {
			return true
		}
	}
	return false
}
