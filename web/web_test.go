// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-daemon/otdaemon"
	"github.com/openthread/ot-daemon/telemetry"
	"github.com/openthread/ot-daemon/types"
)

type fakeSource struct {
	status otdaemon.Status
	err    error
}

func (f *fakeSource) GetStatus(ctx context.Context) (otdaemon.Status, error) {
	return f.status, f.err
}

func (f *fakeSource) Dump(ctx context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "-- state --\nleader\nDone\n")
	return err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	src := &fakeSource{status: otdaemon.Status{
		ThreadEnabledString: types.ThreadStateEnabled.String(),
		Role:                "leader",
		CountryCode:         "US",
	}}
	h := NewHandler(src, DefaultConfig())

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	var st map[string]interface{}
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "leader", st["role"])
	assert.Equal(t, "enabled", st["thread_enabled"])
	assert.Equal(t, "US", st["country_code"])

	rec = get(t, h, "/dump")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "-- state --")

	telemetry.RecordGracefulDetach()
	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "otd_graceful_detaches_total")
}

func TestHandler_Unavailable(t *testing.T) {
	h := NewHandler(&fakeSource{err: context.DeadlineExceeded}, DefaultConfig())
	for _, path := range []string{"/healthz", "/state", "/dump"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, h, path).Code, path)
	}
}

func TestHandler_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestLimit = 2
	h := NewHandler(&fakeSource{}, cfg)
	codes := []int{get(t, h, "/healthz").Code, get(t, h, "/healthz").Code, get(t, h, "/healthz").Code}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServer_ServeStop(t *testing.T) {
	s := NewServer(&fakeSource{}, DefaultConfig())
	done := make(chan error, 1)
	go func() { done <- s.Serve("127.0.0.1:0") }()
	<-s.Started
	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	// A stopped server does not serve again.
	err := s.Serve("127.0.0.1:0")
	assert.Equal(t, http.ErrServerClosed, err)
}
