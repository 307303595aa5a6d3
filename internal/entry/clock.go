package entry

import "fmt"

// Clock is a Lamport-style logical clock identifying the causal position of
// a mutation: a monotonically increasing counter paired with the stable id
// of the workstation that produced it.
type Clock struct {
	Workstation string `json:"workstation"`
	Counter     uint64 `json:"counter"`
}

// Zero reports whether the clock is unset.
func (c Clock) Zero() bool {
	return c.Workstation == "" && c.Counter == 0
}

// Equal reports whether two clocks are identical.
func (c Clock) Equal(other Clock) bool {
	return c.Workstation == other.Workstation && c.Counter == other.Counter
}

// Less orders clocks by counter, breaking ties by workstation id. This is a
// total order consistent with causality: an op that has seen another always
// carries a strictly larger counter.
func (c Clock) Less(other Clock) bool {
	if c.Counter != other.Counter {
		return c.Counter < other.Counter
	}
	return c.Workstation < other.Workstation
}

func (c Clock) String() string {
	return fmt.Sprintf("%s:%d", c.Workstation, c.Counter)
}
