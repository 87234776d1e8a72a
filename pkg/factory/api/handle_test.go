package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/pluser/pkg/chain"
	"github.com/tendant/pluser/pkg/client"
	"github.com/tendant/pluser/pkg/factory"
	"github.com/tendant/pluser/pkg/typeddata"
)

type party struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newParty(t *testing.T) party {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return party{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

type fixture struct {
	t        *testing.T
	ja       *jwtauth.JWTAuth
	ch       *chain.Chain
	f        *factory.Factory
	router   http.Handler
	owner    party
	deployer party
	verifier party
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		t:        t,
		ja:       jwtauth.New("HS256", []byte("test-jwt-secret-key"), nil),
		ch:       chain.New(chain.Config{Clock: chain.NewManualClock(1_700_000_000)}),
		owner:    newParty(t),
		deployer: newParty(t),
		verifier: newParty(t),
	}
	f, err := factory.Install(context.Background(), fx.ch, factory.Config{
		Owner:             fx.owner.addr,
		TwoFactorVerifier: fx.verifier.addr,
		Deployers:         []common.Address{fx.deployer.addr},
	})
	require.NoError(t, err)
	fx.f = f

	r := chi.NewRouter()
	r.Use(client.Verifier(fx.ja))
	r.Use(client.SenderMiddleware)
	r.Mount("/api/factory", Handler(NewHandle(fx.ch, f)))
	fx.router = r
	return fx
}

func (fx *fixture) do(method, path string, sender *party, body interface{}) *httptest.ResponseRecorder {
	fx.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(fx.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sender != nil {
		token, err := client.IssueToken(fx.ja, sender.addr, time.Hour)
		require.NoError(fx.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *fixture) createRequest(auth, device party) CreateAccountRequest {
	fx.t.Helper()
	sig, err := typeddata.SignTyped(auth.key, fx.f.Domain(), typeddata.CreateAccount{AuthKey: auth.addr, DeviceKey: device.addr})
	require.NoError(fx.t, err)
	return CreateAccountRequest{AuthKey: auth.addr, DeviceKey: device.addr, Signature: hexutil.Bytes(sig)}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateAccount(t *testing.T) {
	fx := newFixture(t)
	auth, device := newParty(t), newParty(t)

	predicted := decode[factory.Deployment](t, fx.do(http.MethodGet,
		"/api/factory/accounts/predict?auth_key="+auth.addr.Hex()+"&device_key="+device.addr.Hex(), nil, nil))

	rec := fx.do(http.MethodPost, "/api/factory/accounts", &fx.deployer, fx.createRequest(auth, device))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[CreateAccountResponse](t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, auth.addr, resp.Created.AuthKey)
	assert.Equal(t, device.addr, resp.Created.DeviceKey)
	assert.Equal(t, predicted.Account, resp.Created.Account)
	assert.Equal(t, predicted.RecoveryManager, resp.Created.RecoveryManager)
	assert.Equal(t, predicted.Guard, resp.Deployment.Guard)
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, "AccountCreated", resp.Events[len(resp.Events)-1].Name)

	got := decode[factory.Deployment](t, fx.do(http.MethodGet, "/api/factory/accounts/"+resp.Created.Account.Hex(), nil, nil))
	assert.Equal(t, resp.Deployment, got)

	list := decode[[]factory.Deployment](t, fx.do(http.MethodGet, "/api/factory/accounts?auth_key="+auth.addr.Hex(), nil, nil))
	assert.Len(t, list, 1)

	// same pair again collides on the deterministic addresses
	rec = fx.do(http.MethodPost, "/api/factory/accounts", &fx.deployer, fx.createRequest(auth, device))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateAccountRejections(t *testing.T) {
	fx := newFixture(t)
	auth, device, stranger := newParty(t), newParty(t), newParty(t)

	tests := []struct {
		name   string
		sender *party
		req    func() interface{}
		status int
		code   string
	}{
		{"Anonymous", nil, func() interface{} { return fx.createRequest(auth, device) }, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"NotDeployer", &stranger, func() interface{} { return fx.createRequest(auth, device) }, http.StatusForbidden, "NOT_DEPLOYER"},
		{"WrongSigner", &fx.deployer, func() interface{} {
			req := fx.createRequest(stranger, device)
			req.AuthKey = auth.addr
			return req
		}, http.StatusBadRequest, "SIGNATURE_INVALID"},
		{"ZeroDevice", &fx.deployer, func() interface{} {
			req := fx.createRequest(auth, device)
			req.DeviceKey = common.Address{}
			return req
		}, http.StatusBadRequest, "INVALID_INPUT"},
		{"MalformedBody", &fx.deployer, func() interface{} { return map[string]string{"auth_key": "nope"} }, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(http.MethodPost, "/api/factory/accounts", tt.sender, tt.req())
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, "error", resp.Status)
			if tt.code != "" {
				assert.Equal(t, tt.code, resp.Error)
			}
		})
	}

	list := decode[[]factory.Deployment](t, fx.do(http.MethodGet, "/api/factory/accounts", nil, nil))
	assert.Empty(t, list)
}

func TestDeployers(t *testing.T) {
	fx := newFixture(t)
	newDeployer := newParty(t)

	status := decode[DeployerResponse](t, fx.do(http.MethodGet, "/api/factory/deployers/"+newDeployer.addr.Hex(), nil, nil))
	assert.False(t, status.IsDeployer)

	rec := fx.do(http.MethodPost, "/api/factory/deployers", &fx.deployer, AddDeployerRequest{Address: newDeployer.addr})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do(http.MethodPost, "/api/factory/deployers", &fx.owner, AddDeployerRequest{Address: newDeployer.addr})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SuccessResponse](t, rec)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "DeployerAdded", resp.Events[0].Name)

	status = decode[DeployerResponse](t, fx.do(http.MethodGet, "/api/factory/deployers/"+newDeployer.addr.Hex(), nil, nil))
	assert.True(t, status.IsDeployer)

	deployers := decode[[]common.Address](t, fx.do(http.MethodGet, "/api/factory/deployers", nil, nil))
	assert.ElementsMatch(t, []common.Address{fx.deployer.addr, newDeployer.addr}, deployers)

	rec = fx.do(http.MethodGet, "/api/factory/deployers/not-an-address", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFactoryInfo(t *testing.T) {
	fx := newFixture(t)

	info := decode[FactoryResponse](t, fx.do(http.MethodGet, "/api/factory", nil, nil))
	assert.Equal(t, fx.f.Address(), info.Address)
	assert.Equal(t, fx.owner.addr, info.Owner)
	assert.Equal(t, factory.DomainName, info.DomainName)
	assert.Equal(t, chain.DefaultChainID.Int64(), info.ChainID.ToInt().Int64())

	v := decode[TwoFactorVerifierResponse](t, fx.do(http.MethodGet, "/api/factory/two-factor-verifier", nil, nil))
	assert.Equal(t, fx.verifier.addr, v.TwoFactorVerifier)

	rec := fx.do(http.MethodGet, "/api/factory/accounts/"+fx.owner.addr.Hex(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
