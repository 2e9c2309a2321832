package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riomux/chancore/chancore"
	"github.com/riomux/chancore/config"
	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/transport/faketransport"
)

func newTestEngine(t *testing.T) *chancore.Engine {
	t.Helper()
	net := faketransport.NewNetwork()
	mb := net.Register(0x01)
	e := chancore.NewEngine(config.DefaultConfig(), mb, crlog.NewNopLogger(), metrics.NopMetrics())
	require.NoError(t, e.AddPort(0, 0x01))
	return e
}

func TestHandlePortsReturnsJSON(t *testing.T) {
	e := newTestEngine(t)
	defer e.Shutdown()

	s := NewServer("127.0.0.1:0", e, crlog.NewNopLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ports", nil)
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var ports []chancore.PortInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ports))
	require.Len(t, ports, 1)
	assert.EqualValues(t, 0, ports[0].PortID)
}

func TestHandleChannelsEmpty(t *testing.T) {
	e := newTestEngine(t)
	defer e.Shutdown()

	s := NewServer("127.0.0.1:0", e, crlog.NewNopLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var chans []chancore.ChannelSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chans))
	assert.Empty(t, chans)
}
