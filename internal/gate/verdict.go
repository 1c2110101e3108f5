package gate

// Decision is the outcome kind of a gate evaluation.
type Decision string

const (
	DecisionAllow    Decision = "allow"
	DecisionRedirect Decision = "redirect"
)

// Verdict is what the gate tells the request pipeline to do.
type Verdict struct {
	Decision Decision `json:"decision"`
	Target   string   `json:"target,omitempty"`
}

func Allow() Verdict {
	return Verdict{Decision: DecisionAllow}
}

func Redirect(target string) Verdict {
	return Verdict{Decision: DecisionRedirect, Target: target}
}

func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}
