package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/pluser/pkg/eventlog"
)

var (
	factoryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	managerAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

func seed(t *testing.T) eventlog.Repository {
	t.Helper()
	repo := eventlog.NewInMemRepository()
	_, err := repo.Append(context.Background(),
		eventlog.Event{Emitter: factoryAddr, Name: "FactoryDeployed"},
		eventlog.Event{Emitter: factoryAddr, Name: "AccountCreated"},
		eventlog.Event{Emitter: managerAddr, Name: "RequestCreated", Args: map[string]string{"nonce": "0"}},
	)
	require.NoError(t, err)
	return repo
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListEvents(t *testing.T) {
	h := Handler(NewHandle(seed(t)))

	tests := []struct {
		name  string
		path  string
		names []string
		next  uint64
	}{
		{"All", "/", []string{"FactoryDeployed", "AccountCreated", "RequestCreated"}, 3},
		{"ByEmitter", "/?emitter=" + managerAddr.Hex(), []string{"RequestCreated"}, 3},
		{"ByName", "/?name=AccountCreated", []string{"AccountCreated"}, 2},
		{"After", "/?after=1", []string{"AccountCreated", "RequestCreated"}, 3},
		{"Limit", "/?limit=1", []string{"FactoryDeployed"}, 1},
		{"Empty", "/?name=Nothing", []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp ListEventsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			names := []string{}
			for _, e := range resp.Events {
				names = append(names, e.Name)
			}
			assert.Equal(t, tt.names, names)
			assert.Equal(t, tt.next, resp.Next)
		})
	}
}

func TestListEventsRejectsBadQuery(t *testing.T) {
	h := Handler(NewHandle(seed(t)))

	for _, path := range []string{"/?emitter=nope", "/?after=-1", "/?after=9223372036854775808", "/?after=18446744073709551615", "/?limit=0", "/?limit=x"} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
	}
}

func TestLastSequence(t *testing.T) {
	rec := get(t, Handler(NewHandle(seed(t))), "/last-sequence")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LastSequenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(3), resp.Sequence)
}
