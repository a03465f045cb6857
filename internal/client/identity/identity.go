// Package identity manages the device's Ed25519 signing identity: key
// generation, registration with the service, and the server public key used
// for wrapping content keys. The private key never leaves the secure tier.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/financekit/internal/client/api"
	"github.com/dmitrijs2005/financekit/internal/client/storage"
	"github.com/dmitrijs2005/financekit/internal/common"
	"github.com/dmitrijs2005/financekit/internal/cryptox"
	"github.com/dmitrijs2005/financekit/internal/logging"
)

// Secure-tier keys.
const (
	KeyPrivate    = "privB64"
	KeyPublic     = "pubB64"
	KeyDeviceID   = "deviceId"
	KeyRegistered = "registered"
	KeyServerPEM  = "pem"
)

// ErrKeysUnreadable means the stored keypair could not be read. The keys may
// still exist, so they must not be replaced.
var ErrKeysUnreadable = errors.New("device keys unreadable")

// Registrar is the part of the REST client used for provisioning.
type Registrar interface {
	RegisterDevice(ctx context.Context, deviceID, publicKeyB64 string) error
	GetServerPublicKey(ctx context.Context) (api.ServerKey, error)
}

// Identity is the device's signing identity.
type Identity struct {
	DeviceID   string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Registered bool
}

// PublicKeyB64 is the form the service expects at registration.
func (id *Identity) PublicKeyB64() string {
	return base64.StdEncoding.EncodeToString(id.PublicKey)
}

type Service struct {
	store    storage.Store
	api      Registrar
	log      logging.Logger
	deviceID string

	mu sync.Mutex
}

// NewService builds the identity service. deviceID, when non-empty, is used
// instead of a generated id the first time one is needed.
func NewService(store storage.Store, registrar Registrar, log logging.Logger, deviceID string) *Service {
	return &Service{store: store, api: registrar, log: log.With("component", "identity"), deviceID: deviceID}
}

// NewDeviceID returns "device-" followed by 16 random hex digits.
func NewDeviceID() string {
	s, err := common.MakeRandHexString(8)
	if err != nil {
		panic(err)
	}
	return "device-" + s
}

// DeviceID returns the stored device id, creating and persisting one if needed.
func (s *Service) DeviceID(ctx context.Context) string {
	stored, ok, err := s.store.Read(ctx, KeyDeviceID)
	if ok && stored != "" {
		return stored
	}
	id := s.deviceID
	if id == "" {
		id = NewDeviceID()
	}
	if err != nil {
		s.log.Warn(ctx, "device id unreadable, not replacing it", "error", err)
		return id
	}
	s.store.Set(ctx, KeyDeviceID, id)
	return id
}

// Load reads the identity from the secure tier.
func (s *Service) Load(ctx context.Context) (*Identity, error) {
	seedB64, ok1, err := s.store.Read(ctx, KeyPrivate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeysUnreadable, err)
	}
	pubB64, ok2, err := s.store.Read(ctx, KeyPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeysUnreadable, err)
	}
	if !ok1 || !ok2 || seedB64 == "" || pubB64 == "" {
		return nil, common.ErrDeviceNotProvisioned
	}

	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: stored private key is corrupt", common.ErrDeviceNotProvisioned)
	}
	defer common.WipeByteArray(seed)

	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: stored public key is corrupt", common.ErrDeviceNotProvisioned)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(pub)) {
		return nil, fmt.Errorf("%w: stored keypair mismatch", common.ErrDeviceNotProvisioned)
	}

	reg, _ := s.store.Get(ctx, KeyRegistered)
	return &Identity{
		DeviceID:   s.DeviceID(ctx),
		PublicKey:  ed25519.PublicKey(pub),
		PrivateKey: priv,
		Registered: parseFlag(reg),
	}, nil
}

// GenerateKeypair creates and persists a new Ed25519 keypair. A new key is
// unknown to the service, so the device is marked unregistered.
func (s *Service) GenerateKeypair(ctx context.Context) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	ok := s.store.SetMany(ctx, map[string]string{
		KeyPrivate:    base64.StdEncoding.EncodeToString(priv.Seed()),
		KeyPublic:     base64.StdEncoding.EncodeToString(pub),
		KeyRegistered: formatFlag(false),
	})
	if !ok {
		return nil, fmt.Errorf("persist device keypair: %w", common.ErrorInternal)
	}

	id := &Identity{DeviceID: s.DeviceID(ctx), PublicKey: pub, PrivateKey: priv}
	s.log.Info(ctx, "device keypair generated", "device_id", id.DeviceID)
	return id, nil
}

// Register announces the device's public key to the service. The call is
// idempotent server-side and may be repeated.
func (s *Service) Register(ctx context.Context) error {
	id, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := s.api.RegisterDevice(ctx, id.DeviceID, id.PublicKeyB64()); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	s.MarkRegistered(ctx, true)
	s.log.Info(ctx, "device registered", "device_id", id.DeviceID)
	return nil
}

func (s *Service) MarkRegistered(ctx context.Context, registered bool) {
	s.store.Set(ctx, KeyRegistered, formatFlag(registered))
}

// ServerKey returns the cached server public key PEM.
func (s *Service) ServerKey(ctx context.Context) (string, bool) {
	pem, ok := s.store.Get(ctx, KeyServerPEM)
	return pem, ok && pem != ""
}

// FetchServerKey downloads, validates and caches the server public key.
func (s *Service) FetchServerKey(ctx context.Context) (string, error) {
	k, err := s.api.GetServerPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch server key: %w", err)
	}
	if _, err := cryptox.ParseRSAPublicKeyPEM(k.PEM); err != nil {
		return "", err
	}
	s.store.Set(ctx, KeyServerPEM, k.PEM)
	return k.PEM, nil
}

// EnsureReady generates keys if absent, registers if unregistered, and
// fetches the server public key if absent. Once complete, further calls make
// no network requests. Keys that exist but cannot be read are never replaced.
func (s *Service) EnsureReady(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.Load(ctx)
	switch {
	case errors.Is(err, common.ErrDeviceNotProvisioned):
		if id, err = s.GenerateKeypair(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if !id.Registered {
		if err := s.Register(ctx); err != nil {
			return nil, err
		}
		id.Registered = true
	}

	if _, ok := s.ServerKey(ctx); !ok {
		if _, err := s.FetchServerKey(ctx); err != nil {
			return nil, err
		}
	}
	return id, nil
}

// Destroy removes the keypair and marks the device unregistered. The device
// id and the server key are kept.
func (s *Service) Destroy(ctx context.Context) {
	s.store.RemoveMany(ctx, KeyPrivate, KeyPublic)
	s.MarkRegistered(ctx, false)
	s.log.Info(ctx, "device keypair destroyed")
}

// Signer returns what the grant minter needs. It fails if the device has no
// keypair yet.
func (s *Service) Signer(ctx context.Context) (string, ed25519.PrivateKey, error) {
	id, err := s.Load(ctx)
	if err != nil {
		return "", nil, err
	}
	return id.DeviceID, id.PrivateKey, nil
}

func parseFlag(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
