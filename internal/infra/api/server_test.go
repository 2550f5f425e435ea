package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"amm_go/internal/custody"
	"amm_go/internal/domain"
	"amm_go/internal/engine"
	"amm_go/internal/infra/storage"
	"amm_go/internal/registry"
)

var (
	assetX = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetY = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	vault  = common.HexToAddress("0x000000000000000000000000000000000000beef")
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	bank := custody.NewBank(vault)
	eng, err := engine.New(registry.New(), bank)
	require.NoError(t, err)

	seq := engine.NewSequencer(16, eng, nil, nil, engine.WithFunder(bank))
	ctx, cancel := context.WithCancel(context.Background())
	go seq.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "amm_test_total", Help: "test"}))

	srv := httptest.NewServer(NewServer(Config{}, eng, seq, WithGatherer(reg)).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func post(t *testing.T, srv *httptest.Server, typ string, body any) (int, resultView) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/commands/"+typ, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var view resultView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return resp.StatusCode, view
}

func get(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func seedPool(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	for _, d := range []map[string]string{
		{"account": alice.Hex(), "asset": assetX.Hex(), "amount": "1000"},
		{"account": alice.Hex(), "asset": assetY.Hex(), "amount": "4000"},
	} {
		status, view := post(t, srv, "deposit", d)
		require.Equal(t, http.StatusOK, status, view.Error)
	}

	status, created := post(t, srv, "create_pool", map[string]string{"asset_a": assetY.Hex(), "asset_b": assetX.Hex()})
	require.Equal(t, http.StatusOK, status, created.Error)
	require.NotEmpty(t, created.Pool)

	status, added := post(t, srv, "add_liquidity", map[string]string{
		"asset_a": assetX.Hex(), "asset_b": assetY.Hex(),
		"amount_a": "1000", "amount_b": "4000",
		"provider": alice.Hex(),
	})
	require.Equal(t, http.StatusOK, status, added.Error)
	require.Equal(t, []string{"2000"}, added.Amounts)
	return created.Pool
}

func TestServer_CommandsAndQueries(t *testing.T) {
	srv := newTestServer(t)
	id := seedPool(t, srv)

	var pools []domain.PoolView
	require.Equal(t, http.StatusOK, get(t, srv, "/pools", &pools))
	require.Len(t, pools, 1)
	require.Equal(t, "1000", pools[0].ReserveA)
	require.Equal(t, "4000", pools[0].ReserveB)

	var detail poolDetail
	require.Equal(t, http.StatusOK, get(t, srv, "/pools/"+id, &detail))
	require.Equal(t, "2000", detail.TotalShares)
	require.Len(t, detail.Holders, 1)
	require.Equal(t, alice.Hex(), detail.Holders[0].Account)

	var quote quoteView
	require.Equal(t, http.StatusOK, get(t, srv, "/quote?in="+assetX.Hex()+"&out="+assetY.Hex()+"&amount=100", &quote))
	require.Equal(t, "362", quote.AmountOut)
	require.Equal(t, "4", quote.SpotPrice)

	status, _ := post(t, srv, "deposit", map[string]string{"account": alice.Hex(), "asset": assetX.Hex(), "amount": "100"})
	require.Equal(t, http.StatusOK, status)
	status, swapped := post(t, srv, "swap", map[string]string{
		"asset_in": assetX.Hex(), "asset_out": assetY.Hex(),
		"amount_in": "100", "min_out": "362",
		"trader": alice.Hex(),
	})
	require.Equal(t, http.StatusOK, status, swapped.Error)
	require.Equal(t, []string{"362"}, swapped.Amounts)
}

type fakeJournal struct {
	pool  domain.PoolID
	limit int
}

func (j *fakeJournal) Notifications(_ context.Context, pool domain.PoolID, limit int) ([]storage.NotificationRecord, error) {
	j.pool, j.limit = pool, limit
	return []storage.NotificationRecord{{ID: "n1", Kind: domain.KindTokensSwapped, Payload: []byte(`{"amount_in":"100"}`)}}, nil
}

func TestServer_Events(t *testing.T) {
	eng, err := engine.New(registry.New(), custody.NewBank(vault))
	require.NoError(t, err)
	journal := &fakeJournal{}
	srv := httptest.NewServer(NewServer(Config{}, eng, nil, WithJournal(journal)).Handler())
	defer srv.Close()

	id := common.HexToHash("0x77")
	var events []eventView
	require.Equal(t, http.StatusOK, get(t, srv, "/pools/"+id.Hex()+"/events?limit=5", &events))
	require.Equal(t, id, journal.pool)
	require.Equal(t, 5, journal.limit)
	require.Len(t, events, 1)
	require.Equal(t, domain.KindTokensSwapped, events[0].Kind)
	require.JSONEq(t, `{"amount_in":"100"}`, string(events[0].Event))

	var body errorBody
	require.Equal(t, http.StatusBadRequest, get(t, srv, "/pools/"+id.Hex()+"/events?limit=x", &body))
}

func TestServer_CommandErrors(t *testing.T) {
	srv := newTestServer(t)
	seedPool(t, srv)

	status, view := post(t, srv, "swap", map[string]string{
		"asset_in": assetX.Hex(), "asset_out": assetY.Hex(),
		"amount_in": "100", "min_out": "363",
		"trader": alice.Hex(),
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "SlippageExceeded", view.Kind)

	status, view = post(t, srv, "create_pool", map[string]string{"asset_a": assetX.Hex(), "asset_b": assetY.Hex()})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "PoolAlreadyExists", view.Kind)
}

func TestServer_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	var body errorBody
	require.Equal(t, http.StatusBadRequest, get(t, srv, "/pools/0x1234", &body))
	require.Equal(t, "BadRequest", body.Kind)

	missing := common.HexToHash("0x42").Hex()
	require.Equal(t, http.StatusNotFound, get(t, srv, "/pools/"+missing, &body))
	require.Equal(t, "PoolNotFound", body.Kind)

	require.Equal(t, http.StatusBadRequest, get(t, srv, "/quote?in=nope&out="+assetY.Hex()+"&amount=1", &body))

	resp, err := http.Post(srv.URL+"/commands/mint", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "amm_test_total")
}

func TestServer_ReadOnly(t *testing.T) {
	eng, err := engine.New(registry.New(), custody.NewBank(vault))
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(Config{}, eng, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/commands/create_pool", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_CORS(t *testing.T) {
	eng, err := engine.New(registry.New(), custody.NewBank(vault))
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(Config{EnableCORS: true}, eng, nil).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/pools", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
