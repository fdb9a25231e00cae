package risk

// Advisory is an optional secondary assessment. The zero value is absent.
type Advisory struct {
	Class   Class
	Present bool
}

// NoAdvisory is the absent advisory.
var NoAdvisory = Advisory{}

// AdvisoryOf wraps a present advisory class.
func AdvisoryOf(c Class) Advisory {
	return Advisory{Class: c, Present: true}
}

// State records how the reconciled class was reached.
type State string

const (
	// StatePrimaryOnly: no advisory was available.
	StatePrimaryOnly State = "primary_only"
	// StateAgreed: both assessments gave the same class.
	StateAgreed State = "agreed"
	// StateEscalated: the advisory was more severe and won.
	StateEscalated State = "escalated"
	// StatePrimaryHeld: the classifier was more severe and won.
	StatePrimaryHeld State = "primary_held"
)

// Decision is the reconciled class and the transition that produced it.
type Decision struct {
	Class    Class `json:"class"`
	State    State `json:"state"`
	Primary  Class `json:"primary"`
	Advisory *int  `json:"advisory"`
}

// classify picks the state for a primary/advisory pair.
func classify(primary Class, advisory Advisory) State {
	switch {
	case !advisory.Present:
		return StatePrimaryOnly
	case advisory.Class == primary:
		return StateAgreed
	case advisory.Class > primary:
		return StateEscalated
	default:
		return StatePrimaryHeld
	}
}

// Decide reconciles the classifier class with the advisory. The more severe
// assessment always wins; an absent advisory leaves the primary unchanged.
func Decide(primary Class, advisory Advisory) Decision {
	d := Decision{Primary: primary, State: classify(primary, advisory)}
	if advisory.Present {
		a := int(advisory.Class)
		d.Advisory = &a
	}

	switch d.State {
	case StatePrimaryOnly, StateAgreed, StatePrimaryHeld:
		d.Class = primary
	case StateEscalated:
		d.Class = advisory.Class
	}
	return d
}

// Reconcile returns only the reconciled class.
func Reconcile(primary Class, advisory Advisory) Class {
	return Decide(primary, advisory).Class
}
