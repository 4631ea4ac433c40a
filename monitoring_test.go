package mapi

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/andreyvit/mapi/propval"
)

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	srv, _, tbl := setup(t, Options{Metrics: m, TransportRetries: 1})

	ensure(tbl.SelectColumns(ctx, stdColumns...))
	must(tbl.FetchRows(ctx, 3, true))
	must(tbl.FetchRows(ctx, 3, true))
	srv.fail[RopGetStatus] = propval.CodeCallFailed
	tbl.Status(ctx)
	srv.failures = 1
	must(tbl.RowCount(ctx))

	if got := testutil.ToFloat64(m.RowsFetched); got != 5 {
		t.Fatalf("rows fetched = %v, wanted 5", got)
	}
	if got := testutil.ToFloat64(m.RopRequests.WithLabelValues("RopQueryRows", outcomeOK)); got != 2 {
		t.Fatalf("RopQueryRows ok = %v, wanted 2", got)
	}
	if got := testutil.ToFloat64(m.RopRequests.WithLabelValues("RopGetStatus", outcomeFailed)); got != 1 {
		t.Fatalf("RopGetStatus failed = %v, wanted 1", got)
	}
	if got := testutil.ToFloat64(m.RopRequests.WithLabelValues("RopQueryPosition", outcomeTransport)); got != 1 {
		t.Fatalf("RopQueryPosition transport errors = %v, wanted 1", got)
	}
	if got := testutil.ToFloat64(m.RopRequests.WithLabelValues("RopQueryPosition", outcomeOK)); got != 1 {
		t.Fatalf("RopQueryPosition ok = %v, wanted 1", got)
	}
	if n := testutil.CollectAndCount(m.RopDuration); n != 4 {
		t.Fatalf("duration series = %d, wanted 4", n)
	}
	if n, err := testutil.GatherAndCount(reg, "mapi_rows_fetched_total"); err != nil || n != 1 {
		t.Fatalf("GatherAndCount = %d, %v", n, err)
	}
}

func TestMetrics_nil(t *testing.T) {
	var m *Metrics
	m.observe([]*Call{{Rop: RopQueryRows}}, outcomeOK, 0)
	m.rowsFetched(3)
}
