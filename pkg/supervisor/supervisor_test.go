package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/WillPlatnick/pgsentinel/pkg/cluster"
	"github.com/WillPlatnick/pgsentinel/pkg/elector"
	"github.com/WillPlatnick/pgsentinel/pkg/kv"
)

// fakeStore is a minimal in-memory kv.Store used to exercise startCluster's
// validation without dialing a real KV backend or Redis bus.
type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (f *fakeStore) Get(ctx context.Context, key string) (*kv.Pair, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return &kv.Pair{Key: key, Value: v}, nil
}

func (f *fakeStore) Put(ctx context.Context, key string, value []byte) error {
	f.data[key] = value
	return nil
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]*kv.Pair, error) {
	var out []*kv.Pair
	for k, v := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, &kv.Pair{Key: k, Value: v})
		}
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func seedCoincidentCluster(f *fakeStore, prefix, name, ip string) {
	f.data[prefix+"/"+name+"/config"] = []byte(`{
		"dbname": "postgres", "quorum": 2, "retries": 3,
		"interval_good": 5, "interval_fail": 1, "location_lag": 500000000,
		"trigger": "/tmp/trigger", "sentinel_name": "127.0.0.1:6379"
	}`)
	f.data[prefix+"/"+name+"/master/fqdn"] = []byte("db1")
	f.data[prefix+"/"+name+"/master/ip"] = []byte(ip)
	f.data[prefix+"/"+name+"/master/port"] = []byte("5432")
	f.data[prefix+"/"+name+"/slave/fqdn"] = []byte("db2")
	f.data[prefix+"/"+name+"/slave/ip"] = []byte(ip)
	f.data[prefix+"/"+name+"/slave/port"] = []byte("5432")
}

func newTestSupervisor(store kv.Store) *Supervisor {
	return New(Config{
		Prefix:     "key/prod/postgres",
		LocalHost:  "h1",
		StatusAddr: ":0",
	}, store, zap.NewNop().Sugar())
}

func TestStartClusterRejectsCoincidentIPs(t *testing.T) {
	store := newFakeStore()
	seedCoincidentCluster(store, "key/prod/postgres", "mycluster", "10.0.0.5")
	s := newTestSupervisor(store)

	exitCh := make(chan TaskExit, 2)
	err := s.startCluster(context.Background(), "mycluster", exitCh)
	if err == nil {
		t.Fatal("expected error for coincident primary/standby IPs")
	}
	if !strings.Contains(err.Error(), "coincide") {
		t.Errorf("error = %q, want mention of coincident IPs", err.Error())
	}
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := newTestSupervisor(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestHandleStatusReportsClusterState(t *testing.T) {
	s := newTestSupervisor(newFakeStore())

	c := &cluster.Cluster{
		Name:    "mycluster",
		Primary: cluster.Endpoint{Fqdn: "db1"},
		Standby: cluster.Endpoint{Fqdn: "db2"},
	}
	el := elector.New(c, nil, nil, "key/prod/postgres", "h1", zap.NewNop().Sugar())

	s.mu.Lock()
	s.clusters["mycluster"] = c
	s.electors["mycluster"] = el
	s.mu.Unlock()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	var statuses []clusterStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("failed to decode status response: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if statuses[0].Cluster != "mycluster" || statuses[0].Primary != "db1" || statuses[0].State != "Watching" {
		t.Errorf("status = %+v", statuses[0])
	}
}

func TestStatusEndpointRequiresAuth(t *testing.T) {
	s := New(Config{
		Prefix:       "key/prod/postgres",
		LocalHost:    "h1",
		StatusAddr:   ":0",
		SharedSecret: "topsecret",
	}, newFakeStore(), zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.authn.Middleware(s.handleStatus)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without HMAC headers", rec.Code)
	}
}
