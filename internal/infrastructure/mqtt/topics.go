package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "rrconverter"

// Topics builds rrconverter MQTT topics under a common prefix.
type Topics struct {
	prefix string
}

// NewTopics returns topic builders for prefix. Surrounding slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Passing returns the topic for a transponder's passings.
// MQTT wildcard and separator characters in the transponder are replaced with "_".
//
// Example: rrconverter/passing/1234567
func (t Topics) Passing(transponder string) string {
	return t.prefix + "/passing/" + sanitizeLevel(transponder)
}

// Status returns the decoder connectivity topic.
//
// Example: rrconverter/status
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Bridge returns the bridge online/offline topic used for the LWT.
//
// Example: rrconverter/bridge
func (t Topics) Bridge() string {
	return t.prefix + "/bridge"
}

func sanitizeLevel(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
