package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openjobspec/ojs-cron/internal/runlog"
)

func BenchmarkJobList(b *testing.B) {
	store := runlog.NewMemoryStore()
	e := runlog.NewEntry("job.a", testSlot, testSlot)
	if _, err := store.InsertIfAbsent(context.Background(), e); err != nil {
		b.Fatalf("InsertIfAbsent() error = %v", err)
	}
	router := newTestRouter(NewJobHandler(newTestRegistry(b), store, &mockRunner{}))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
	}
}

func BenchmarkJobRuns(b *testing.B) {
	router := newTestRouter(NewJobHandler(newTestRegistry(b), runlog.NewMemoryStore(), &mockRunner{}))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job.b/runs?limit=50", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
	}
}
