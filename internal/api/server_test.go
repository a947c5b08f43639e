package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agroledger/internal/blob"
	"agroledger/internal/ledger"
	"agroledger/pkg/domain"
)

type testClock struct{ now uint64 }

func (c *testClock) fn() uint64 { return c.now }

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *testClock) {
	t.Helper()
	clock := &testClock{now: 100}
	svc := ledger.NewInMemoryService("root", ledger.WithClock(clock.fn))
	ctx := context.Background()
	for _, grant := range []struct {
		role domain.Role
		id   domain.Identity
	}{
		{domain.RoleDevice, "sensor-1"},
		{domain.RoleFarmer, "alice"},
		{domain.RoleSupplyChainActor, "shipper-1"},
	} {
		if err := svc.GrantRole(ctx, "root", grant.role, grant.id); err != nil {
			t.Fatalf("grant %s: %v", grant.role, err)
		}
	}
	return NewServer(svc, opts...), clock
}

func do(t *testing.T, srv *Server, method, path, identity, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" {
		req.Header.Set(identityHeader, identity)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestSubmitReadingStatusCodes(t *testing.T) {
	srv, clock := newTestServer(t)
	const body = `{"farm_id":7,"temperature":215,"moisture":420,"humidity":550}`

	if rec := do(t, srv, http.MethodPost, "/v1/readings", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing identity status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/v1/readings", "alice", body); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong role status = %d", rec.Code)
	}

	rec := do(t, srv, http.MethodPost, "/v1/readings", "sensor-1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body %s", rec.Code, rec.Body)
	}
	var created map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created["reading_id"] != 0 {
		t.Fatalf("reading id = %d, want 0", created["reading_id"])
	}

	// Inside the cooldown window.
	clock.now = 130
	if rec := do(t, srv, http.MethodPost, "/v1/readings", "sensor-1", `{"farm_id":7,"temperature":216,"moisture":421,"humidity":551}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("cooldown status = %d", rec.Code)
	}

	// Replay of the stored tuple after the window.
	clock.now = 200
	if rec := do(t, srv, http.MethodPost, "/v1/readings", "sensor-1", body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}

	// Out-of-range moisture.
	if rec := do(t, srv, http.MethodPost, "/v1/readings", "sensor-1", `{"farm_id":7,"temperature":215,"moisture":1001,"humidity":550}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("validation status = %d", rec.Code)
	}
}

func TestSubmitBatchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/readings/batch", "sensor-1",
		`{"farm_ids":[7,8],"temperatures":[215,220],"moistures":[420,430],"humidities":[550,560]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch status = %d body %s", rec.Code, rec.Body)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["appended"] != 2 {
		t.Fatalf("appended = %d, want 2", resp["appended"])
	}

	rec = do(t, srv, http.MethodPost, "/v1/readings/batch", "sensor-1",
		`{"farm_ids":[7],"temperatures":[215,220],"moistures":[420],"humidities":[550]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched arrays status = %d", rec.Code)
	}
}

func TestCropEventAndStageEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/crop-events", "alice",
		`{"farm_id":4,"event_type":"seeding","notes":"north field"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("crop event status = %d body %s", rec.Code, rec.Body)
	}

	rec = do(t, srv, http.MethodPost, "/v1/stages", "shipper-1",
		`{"product_id":12,"stage":"harvested","location":"farm-4"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("stage status = %d body %s", rec.Code, rec.Body)
	}

	rec = do(t, srv, http.MethodGet, "/v1/farms/4/crop-events", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events query status = %d", rec.Code)
	}
	var events map[string][]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if ids := events["event_ids"]; len(ids) != 1 || ids[0] != 0 {
		t.Fatalf("event ids = %v, want [0]", ids)
	}

	rec = do(t, srv, http.MethodGet, "/v1/products/12/stages", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stages query status = %d", rec.Code)
	}
}

func TestPauseEndpointGatesWrites(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := do(t, srv, http.MethodPost, "/v1/pause", "alice", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin pause status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/v1/pause", "root", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("pause status = %d", rec.Code)
	}
	rec := do(t, srv, http.MethodPost, "/v1/readings", "sensor-1",
		`{"farm_id":7,"temperature":215,"moisture":420,"humidity":550}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("paused submit status = %d", rec.Code)
	}
	// Role administration stays available while paused.
	if rec := do(t, srv, http.MethodPost, "/v1/roles/grant", "root", `{"role":"researcher","identity":"lab-1"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("grant while paused status = %d body %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodPost, "/v1/unpause", "root", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("unpause status = %d", rec.Code)
	}
	rec = do(t, srv, http.MethodPost, "/v1/readings", "sensor-1",
		`{"farm_id":7,"temperature":215,"moisture":420,"humidity":550}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit after unpause status = %d", rec.Code)
	}
}

func TestRoleEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := do(t, srv, http.MethodPost, "/v1/roles/grant", "root", `{"role":"superuser","identity":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown role status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/v1/roles/revoke", "root", `{"role":"device","identity":"sensor-1"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d", rec.Code)
	}
	rec := do(t, srv, http.MethodPost, "/v1/readings", "sensor-1",
		`{"farm_id":7,"temperature":215,"moisture":420,"humidity":550}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("submit after revoke status = %d", rec.Code)
	}
}

func TestReadingLookupAndTotals(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodPost, "/v1/readings", "sensor-1",
		`{"farm_id":7,"temperature":215,"moisture":420,"humidity":550}`)

	rec := do(t, srv, http.MethodGet, "/v1/readings/0", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reading lookup status = %d", rec.Code)
	}
	var r domain.Reading
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode reading: %v", err)
	}
	if r.Device != "sensor-1" || r.FarmID != 7 {
		t.Fatalf("reading = %+v", r)
	}

	if rec := do(t, srv, http.MethodGet, "/v1/readings/99", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing reading status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/v1/readings/abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/v1/totals", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("totals status = %d", rec.Code)
	}
	var totals ledger.Totals
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if totals.Readings != 1 || totals.CropEvents != 0 || totals.Stages != 0 {
		t.Fatalf("totals = %+v", totals)
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	archive := blob.NewMemory()
	srv, _ := newTestServer(t, WithArchive(archive))
	do(t, srv, http.MethodPost, "/v1/readings", "sensor-1",
		`{"farm_id":7,"temperature":215,"moisture":420,"humidity":550}`)

	rec := do(t, srv, http.MethodPost, "/v1/snapshots", "root", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("snapshot export status = %d body %s", rec.Code, rec.Body)
	}
	var info blob.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Metadata["readings"] != "1" {
		t.Fatalf("snapshot metadata = %v", info.Metadata)
	}

	rec = do(t, srv, http.MethodGet, "/v1/snapshots", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot list status = %d", rec.Code)
	}
	var infos []blob.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != info.Key {
		t.Fatalf("list = %+v", infos)
	}
}

func TestSnapshotEndpointsAbsentWithoutArchive(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := do(t, srv, http.MethodPost, "/v1/snapshots", "root", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("snapshot route without archive status = %d", rec.Code)
	}
}
