package mqtt

import "fmt"

// Topic prefixes for the fireplaced MQTT surface.
//
// The hierarchy is deliberately small:
//
//	davinci/state/{property}        retained, one per fireplace property
//	davinci/command/{property}/set  inbound commands
//	davinci/system/status           daemon availability (retained, LWT)
const (
	// TopicPrefix is the base for all fireplaced topics.
	TopicPrefix = "davinci"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "davinci/system"
)

// Topics provides builders for fireplaced MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("lamp")
//	// Returns: "davinci/state/lamp"
type Topics struct{}

// State returns the retained state topic for a fireplace property.
//
// Example: davinci/state/lamplevel
func (Topics) State(property string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, property)
}

// Command returns the inbound command topic for a fireplace property.
//
// Example: davinci/command/flame/set
func (Topics) Command(property string) string {
	return fmt.Sprintf("%s/command/%s/set", TopicPrefix, property)
}

// SystemStatus returns the daemon availability topic.
// Retained; also used as the LWT topic for crash detection.
//
// Example: davinci/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching every property command topic.
//
// Pattern: davinci/command/+/set
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/set", TopicPrefix)
}

// AllStates returns a pattern matching every property state topic.
//
// Pattern: davinci/state/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}
