package schema

// Notification describes one channel a rule match is announced on.
// Delivery itself is out of scope — the adapter only emits the match event;
// an external notification dispatcher consumes it.
type Notification struct {
	Channel  string `yaml:"channel"`
	Target   string `yaml:"target"`
	Template string `yaml:"template,omitempty"`
}
