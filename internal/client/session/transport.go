package session

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/financekit/internal/common"
)

// Do sends req with the session's Authorization header unless the caller set
// one. On 401, when a refresh token is held, it refreshes once and retries
// with the new access token. If the refresh fails the session is logged out
// and the original 401 response is returned without an error.
//
// Do satisfies api.Doer, so the REST client can route through it.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	sentAccess := ""
	if req.Header.Get(common.AuthorizationHeaderName) == "" {
		if h, ok := m.AuthHeader(); ok {
			req.Header.Set(common.AuthorizationHeaderName, h)
		}
	}
	if h := req.Header.Get(common.AuthorizationHeaderName); strings.HasPrefix(h, common.SchemeBearer+" ") {
		sentAccess = strings.TrimPrefix(h, common.SchemeBearer+" ")
	}

	resp, err := m.transport.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	ctx := req.Context()
	if _, refresh := m.Tokens(); refresh == "" {
		return resp, nil
	}

	access, err := m.refreshOrLogout(ctx, sentAccess)
	if err != nil {
		return resp, nil
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return resp, nil
	}
	drain(resp)

	retry.Header.Set(common.AuthorizationHeaderName, common.SchemeBearer+" "+access)
	m.log.Debug(ctx, "retrying request after refresh", "method", req.Method, "path", req.URL.Path)
	return m.transport.Do(retry)
}

// bufferBody makes the request body replayable.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	return nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
