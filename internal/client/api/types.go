package api

import (
	"encoding/json"
	"io"

	"github.com/dmitrijs2005/financekit/internal/client/models"
)

// TokenPair is returned by the token endpoints. Refresh may be empty when
// the service keeps the old refresh token valid.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// ServerKey is the service's RSA public key used for wrapping content keys.
type ServerKey struct {
	Algorithm string `json:"algorithm"`
	PEM       string `json:"pem"`
}

// IngestRequest carries one receipt upload.
type IngestRequest struct {
	Token      string
	WrappedKey string
	Year       int
	Month      int
	Category   string
	ImageName  string
	Image      io.Reader
}

type IngestResponse struct {
	ReceiptID models.ResourceID      `json:"receipt_id"`
	Data      *models.ReceiptData    `json:"data,omitempty"`
	Derived   *models.ReceiptSummary `json:"derived,omitempty"`
}

type DecryptedReceipt struct {
	ID            models.ResourceID `json:"id"`
	PlaintextJSON string            `json:"plaintext_json"`
}

// Receipt decodes the plaintext body.
func (d DecryptedReceipt) Receipt() (*models.ReceiptData, error) {
	var data models.ReceiptData
	if err := json.Unmarshal([]byte(d.PlaintextJSON), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

type DecryptResponse struct {
	Data        []DecryptedReceipt `json:"data"`
	ProcessedAt string             `json:"processed_at,omitempty"`
}

type decryptRequest struct {
	Token      string  `json:"token"`
	WrappedKey string  `json:"dek_wrap_srv"`
	Targets    []int64 `json:"targets"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type registerDeviceRequest struct {
	DeviceID     string `json:"device_id"`
	PublicKeyB64 string `json:"public_key_b64"`
}

type listResponse struct {
	Results []models.ReceiptListItem `json:"results"`
	Items   []models.ReceiptListItem `json:"items"`
}
