package metadata

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"moff.io/crowdfund/pkg/errors"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func artifactABI(t *testing.T) string {
	t.Helper()
	b, err := ioutil.ReadFile("../../contract/Crowdfunding.json")
	require.NoError(t, err)
	return gjson.GetBytes(b, "abi").Raw
}

func TestDecode(t *testing.T) {
	abiJSON := artifactABI(t)
	quotedBytes, err := json.Marshal(abiJSON)
	require.NoError(t, err)
	quoted := string(quotedBytes)

	tests := []struct {
		name     string
		body     string
		wantKind errors.Kind
	}{
		{"abi array", `{"contractAddress":"` + testAddress + `","contractABI":` + abiJSON + `}`, ""},
		{"abi string", `{"contractAddress":"` + testAddress + `","contractABI":` + quoted + `}`, ""},
		{"artifact", `{"contractAddress":"` + testAddress + `","contractABI":{"abi":` + abiJSON + `}}`, ""},
		{"missing address", `{"contractABI":` + abiJSON + `}`, errors.KindMetadataUnavailable},
		{"empty address", `{"contractAddress":"","contractABI":` + abiJSON + `}`, errors.KindMetadataUnavailable},
		{"malformed address", `{"contractAddress":"0x1234","contractABI":` + abiJSON + `}`, errors.KindMetadataUnavailable},
		{"zero address", `{"contractAddress":"0x0000000000000000000000000000000000000000","contractABI":` + abiJSON + `}`, errors.KindMetadataUnavailable},
		{"missing abi", `{"contractAddress":"` + testAddress + `"}`, errors.KindMetadataUnavailable},
		{"empty abi", `{"contractAddress":"` + testAddress + `","contractABI":[]}`, errors.KindMetadataUnavailable},
		{"malformed abi", `{"contractAddress":"` + testAddress + `","contractABI":[{"type":"function","inputs":[{"type":"uint999"}]}]}`, errors.KindMetadataUnavailable},
		{"not json", `<html>`, errors.KindMetadataUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Decode([]byte(tt.body))
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress(testAddress), c.Address)
			assert.Contains(t, c.ABI.Methods, "launch")
			assert.Contains(t, c.ABI.Events, "Launch")
			assert.True(t, gjson.ValidBytes(c.RawABI))
		})
	}
}

func TestClientFetch(t *testing.T) {
	abiJSON := artifactABI(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/contracts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contractAddress":"` + testAddress + `","contractABI":` + abiJSON + `}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/api/contracts", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), c.Address)
}

func TestClientFetchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindMetadataUnavailable, errors.KindOf(err))
	assert.Contains(t, err.Error(), "down for maintenance")

	unreachable := NewClient("http://127.0.0.1:1/api/contracts", time.Second)
	_, err = unreachable.Fetch(context.Background())
	assert.Equal(t, errors.KindMetadataUnavailable, errors.KindOf(err))
}
