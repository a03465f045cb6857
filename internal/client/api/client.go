package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/financekit/internal/client/models"
)

// DefaultPrefix is the path under which every endpoint is mounted.
const DefaultPrefix = "/api/v1"

// Doer executes HTTP requests. *http.Client and the session manager satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	prefix  string
	http    Doer
}

// NewClient builds a client for baseURL; an empty prefix means DefaultPrefix.
func NewClient(baseURL, prefix string, doer Doer) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  "/" + strings.Trim(prefix, "/"),
		http:    doer,
	}
}

// URL resolves an endpoint path against the base URL and prefix.
func (c *Client) URL(path string) string {
	return c.baseURL + c.prefix + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newJSONRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// ObtainToken exchanges credentials for a token pair.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (TokenPair, error) {
	var tp TokenPair
	err := c.doJSON(ctx, http.MethodPost, "auth/token", credentialsRequest{Username: username, Password: password}, &tp)
	if err == nil && (tp.Access == "" || tp.Refresh == "") {
		err = fmt.Errorf("%w: token pair incomplete", ErrBadResponse)
	}
	return tp, err
}

// SignUp creates an account and returns its first token pair.
func (c *Client) SignUp(ctx context.Context, username, password, email string) (TokenPair, error) {
	var tp TokenPair
	err := c.doJSON(ctx, http.MethodPost, "auth/register", credentialsRequest{Username: username, Password: password, Email: email}, &tp)
	if err == nil && (tp.Access == "" || tp.Refresh == "") {
		err = fmt.Errorf("%w: token pair incomplete", ErrBadResponse)
	}
	return tp, err
}

// RefreshToken trades a refresh token for a new access token. Refresh in the
// result is empty when the service did not rotate it.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (TokenPair, error) {
	var tp TokenPair
	err := c.doJSON(ctx, http.MethodPost, "auth/token/refresh", refreshRequest{Refresh: refresh}, &tp)
	if err == nil && tp.Access == "" {
		err = fmt.Errorf("%w: access token missing", ErrBadResponse)
	}
	return tp, err
}

func (c *Client) GetServerPublicKey(ctx context.Context) (ServerKey, error) {
	var k ServerKey
	err := c.doJSON(ctx, http.MethodGet, "crypto/server-public-key", nil, &k)
	if err == nil && k.PEM == "" {
		err = fmt.Errorf("%w: pem missing", ErrBadResponse)
	}
	return k, err
}

func (c *Client) RegisterDevice(ctx context.Context, deviceID, publicKeyB64 string) error {
	return c.doJSON(ctx, http.MethodPost, "device/register", registerDeviceRequest{DeviceID: deviceID, PublicKeyB64: publicKeyB64}, nil)
}

// IngestReceipt uploads an image as multipart form data together with the
// grant and the wrapped content key.
func (c *Client) IngestReceipt(ctx context.Context, in IngestRequest) (*IngestResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"token", in.Token},
		{"dek_wrap_srv", in.WrappedKey},
		{"year", strconv.Itoa(in.Year)},
		{"month", strconv.Itoa(in.Month)},
		{"category", in.Category},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}

	name := in.ImageName
	if name == "" {
		name = "receipt.jpg"
	}
	fw, err := mw.CreateFormFile("image", name)
	if err != nil {
		return nil, err
	}
	if in.Image != nil {
		if _, err := io.Copy(fw, in.Image); err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("ingest/receipt"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out IngestResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecryptProcess asks the service to decrypt targets with the given grant
// and wrapped key.
func (c *Client) DecryptProcess(ctx context.Context, token, wrappedKey string, targets []models.ResourceID) (*DecryptResponse, error) {
	ids := make([]int64, len(targets))
	for i, id := range targets {
		ids[i] = int64(id)
	}
	var out DecryptResponse
	if err := c.doJSON(ctx, http.MethodPost, "decrypt/process", decryptRequest{Token: token, WrappedKey: wrappedKey, Targets: ids}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteReceipt removes a receipt server-side. 200 and 204 both mean success.
func (c *Client) DeleteReceipt(ctx context.Context, id models.ResourceID) error {
	return c.doJSON(ctx, http.MethodDelete, "receipts/"+id.String(), nil, nil)
}

// ListReceipts returns the server's receipt list. The service names the
// collection either "results" or "items".
func (c *Client) ListReceipts(ctx context.Context) ([]models.ReceiptListItem, error) {
	var out listResponse
	if err := c.doJSON(ctx, http.MethodGet, "receipts", nil, &out); err != nil {
		return nil, err
	}
	if out.Results != nil {
		return out.Results, nil
	}
	if out.Items != nil {
		return out.Items, nil
	}
	return []models.ReceiptListItem{}, nil
}

// Ping reports whether the service answers at all; any HTTP status counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL("crypto/server-public-key"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
