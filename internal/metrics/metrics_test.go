package metrics

import (
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
)

func TestObserveAllocation(t *testing.T) {
    assigned := Allocations.WithLabelValues("single", "assigned")
    unassigned := Allocations.WithLabelValues("single", "unassigned")
    beforeA, beforeU := testutil.ToFloat64(assigned), testutil.ToFloat64(unassigned)

    ObserveAllocation("single", true, 93.5)
    ObserveAllocation("single", false, 0)

    assert.Equal(t, beforeA+1, testutil.ToFloat64(assigned))
    assert.Equal(t, beforeU+1, testutil.ToFloat64(unassigned))
}

func TestRegisterDefaultIsIdempotent(t *testing.T) {
    RegisterDefault()
    RegisterDefault()
    n, err := testutil.GatherAndCount(Registry, "allocations_total")
    assert.NoError(t, err)
    assert.GreaterOrEqual(t, n, 0)
}
