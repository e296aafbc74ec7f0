package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeCounter struct {
	n   int
	err error
}

func (f fakeCounter) CountTenants(context.Context) (int, error) { return f.n, f.err }

func TestObserveSync(t *testing.T) {
	okBefore := testutil.ToFloat64(TenantSyncs.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(TenantSyncs.WithLabelValues("error"))

	ObserveSync(time.Now(), nil)
	ObserveSync(time.Now(), errors.New("disk full"))

	if got := testutil.ToFloat64(TenantSyncs.WithLabelValues("ok")); got != okBefore+1 {
		t.Fatalf("ok syncs = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(TenantSyncs.WithLabelValues("error")); got != errBefore+1 {
		t.Fatalf("error syncs = %v, want %v", got, errBefore+1)
	}
}

func TestCollector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		counter   TenantCounter
		wantCount int
	}{
		{name: "with tenants", counter: fakeCounter{n: 4}, wantCount: 2},
		{name: "store error", counter: fakeCounter{err: errors.New("db down")}, wantCount: 1},
		{name: "no store", counter: nil, wantCount: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := NewCollector(tc.counter, time.Now().Add(-time.Minute))
			if got := testutil.CollectAndCount(c); got != tc.wantCount {
				t.Fatalf("collected %d metrics, want %d", got, tc.wantCount)
			}
		})
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewCollector(fakeCounter{n: 4}, time.Now()))
	expected := `
# HELP pbxadmin_tenants Number of tenants in the record store
# TYPE pbxadmin_tenants gauge
pbxadmin_tenants 4
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "pbxadmin_tenants"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}
