// Package filter selects dataset samples by the functions their binaries
// import and reduces them to the handful of members a consumer asked for.
//
// Selection is capability-based: a Group names functions that are
// interchangeable evidence of one capability, and a Spec is the conjunction
// of its Groups. The stock Spec selects samples that can both open and
// terminate an arbitrary process, the classic privilege-escalation pairing.
package filter

// A Group is a set of function names treated as interchangeable evidence of
// one capability. A sample satisfies a Group when it imports any member.
type Group []string

// A Spec is an ordered conjunction of Groups. A sample satisfies a Spec when
// it satisfies every Group.
type Spec []Group

// DefaultSpec returns the stock selection criteria: one process-termination
// import and one process-open import, in either their Zw or Nt spellings.
//
// The returned value is freshly allocated and safe to modify.
func DefaultSpec() Spec {
	return Spec{
		{`ZwTerminateProcess`, `NtTerminateProcess`},
		{`ZwOpenProcess`, `NtOpenProcess`},
	}
}

// DefaultFields returns the stock set of reported sample members.
//
// The returned value is freshly allocated and safe to modify.
func DefaultFields() []string {
	return []string{`filename`, `md5`}
}

// Match reports whether a sample importing the named functions satisfies the
// Spec: every Group must have at least one member imported.
//
// A Spec with no Groups is satisfied vacuously, by anything. A Spec holding
// an empty Group is satisfied by nothing.
func (s Spec) Match(imports []string) bool {
	have := make(map[string]struct{}, len(imports))
	for _, fn := range imports {
		have[fn] = struct{}{}
	}
Group:
	for _, g := range s {
		for _, fn := range g {
			if _, ok := have[fn]; ok {
				continue Group
			}
		}
		return false
	}
	return true
}
