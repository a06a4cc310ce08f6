// Package optimization provides shared data structures for optimization results.
package optimization

// Summary captures the result of a single income search.
type Summary struct {
	Scope        string   `json:"scope"`
	TargetName   string   `json:"targetName"`
	Field        string   `json:"field"`
	Target       float64  `json:"target"`
	Value        float64  `json:"value"`
	Achieved     float64  `json:"achieved"`
	Lower        float64  `json:"lower"`
	Upper        float64  `json:"upper"`
	Iterations   int      `json:"iterations"`
	Converged    bool     `json:"converged"`
	Notes        []string `json:"notes,omitempty"`
	ValueDisplay string   `json:"valueDisplay,omitempty"`
}
