package schema

// SignalKind names one of the recognized detection signals evaluated
// against KnowledgeState. Signal names are not checked at load; an
// unrecognized name makes evaluation of the rule fail.
type SignalKind string

const (
	SignalZScore              SignalKind = "zscore"
	SignalDbscanNoise         SignalKind = "dbscan_noise"
	SignalBehavioralDeviation SignalKind = "behavioral_deviation"
	SignalGraphAnomaly        SignalKind = "graph_anomaly"
)

// Operator is the boolean combinator for a Composition's children.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
	OperatorNot Operator = "not"
)

// Signal is a leaf of the detection composition tree: one named signal
// evaluated against an optional feature, compared to threshold.
type Signal struct {
	Signal    SignalKind `yaml:"signal"`
	Feature   string     `yaml:"feature,omitempty"`
	Threshold float64    `yaml:"threshold"`
}

// Composition is either a leaf Signal or a boolean combination of child
// Compositions; exactly one of Leaf or (Operator + Children) is set.
type Composition struct {
	Leaf     *Signal       `yaml:"signal,omitempty"`
	Operator Operator      `yaml:"operator,omitempty"`
	Children []Composition `yaml:"children,omitempty"`
}

// IsLeaf reports whether this node is a leaf Signal rather than a boolean
// combinator.
func (c Composition) IsLeaf() bool {
	return c.Leaf != nil
}

// UnmarshalYAML lets a leaf be written inline as `{signal, feature,
// threshold}` (the common case) instead of nested under a `signal:` key.
func (c *Composition) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var leafProbe struct {
		Signal    SignalKind `yaml:"signal"`
		Feature   string     `yaml:"feature"`
		Threshold float64    `yaml:"threshold"`
	}
	if err := unmarshal(&leafProbe); err == nil && leafProbe.Signal != "" {
		c.Leaf = &Signal{Signal: leafProbe.Signal, Feature: leafProbe.Feature, Threshold: leafProbe.Threshold}
		return nil
	}

	var combinator struct {
		Operator Operator      `yaml:"operator"`
		Children []Composition `yaml:"children"`
	}
	if err := unmarshal(&combinator); err != nil {
		return err
	}
	c.Operator = combinator.Operator
	c.Children = combinator.Children
	return nil
}
