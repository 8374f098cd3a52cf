package accounting

// Filter narrows a record set by categorical values.
//
// Empty slices mean "no constraint on this field". Values are matched
// exactly, never case-normalized: distinct casings coming from the
// scheduler are distinct values by design.
type Filter struct {
	Partitions []string   `json:"partitions,omitempty"`
	Accounts   []string   `json:"accounts,omitempty"`
	Users      []string   `json:"users,omitempty"`
	QOS        []string   `json:"qos,omitempty"`
	States     []JobState `json:"states,omitempty"`
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return len(f.Partitions) == 0 && len(f.Accounts) == 0 &&
		len(f.Users) == 0 && len(f.QOS) == 0 && len(f.States) == 0
}

// Match reports whether the record passes every constraint.
func (f Filter) Match(r *JobRecord) bool {
	if !matchOne(f.Partitions, r.Partition) {
		return false
	}
	if !matchOne(f.Accounts, r.Account) {
		return false
	}
	if !matchOne(f.Users, r.User) {
		return false
	}
	if !matchOne(f.QOS, r.QOS) {
		return false
	}
	if len(f.States) > 0 {
		found := false
		for _, s := range f.States {
			if r.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply returns the records passing the filter, preserving input order.
// Input order is significant downstream: top-N tie-breaking is stable in
// first-seen order.
func (f Filter) Apply(records []JobRecord) []JobRecord {
	if f.IsZero() {
		return records
	}
	out := make([]JobRecord, 0, len(records))
	for i := range records {
		if f.Match(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

func matchOne(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
