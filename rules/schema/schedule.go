package schema

// Schedule is a rule's cron-plus-cooldown trigger configuration. Cron is
// stored as written; rules/cron.Parse normalizes it to 6 fields (seconds
// prepended) when the Rule Scheduler builds the rule's entry.
type Schedule struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
	Cooldown string `yaml:"cooldown,omitempty"` // e.g. "10m"; parsed by rules/cron
}
