package harness

import "harness/snowflake"

// TestMeta is the explicit metadata record attached to a test-case
// descriptor. Reporting collaborators receive it as a value instead of
// reading annotations off shared state, so declaring a test never mutates
// anything process-wide.
type TestMeta struct {
	ID     snowflake.ID
	RunID  string
	Name   string
	Suite  string
	Labels map[string]string
}

// DescribeTest builds the metadata record for one test case, tagging it with
// a fresh correlation identifier and this run's identifier.
func (r *Runtime) DescribeTest(suite, name string, labels map[string]string) (TestMeta, error) {
	id, err := r.gen.Next()
	if err != nil {
		return TestMeta{}, err
	}

	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}

	return TestMeta{
		ID:     id,
		RunID:  r.runID.String(),
		Name:   name,
		Suite:  suite,
		Labels: copied,
	}, nil
}
