package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/arena-hub/arena-hub/internal/domain/session"
)

// ErrDenied is returned for any credential the identity service does not
// positively confirm. Timeouts and transport failures deny; never fail open.
var ErrDenied = errors.New("credential denied")

// Verifier resolves a bearer credential to an identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*session.Identity, error)
}

// Client verifies credentials against an external identity service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates an identity client with a hard request timeout.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("service", "identity").Logger(),
	}
}

type verifyResponse struct {
	ActorID uuid.UUID `json:"actorId"`
	Name    string    `json:"name"`
}

// Verify calls the identity service. Any failure mode maps to ErrDenied.
func (c *Client) Verify(ctx context.Context, credential string) (*session.Identity, error) {
	if credential == "" {
		return nil, ErrDenied
	}
	body, _ := json.Marshal(map[string]string{"token": credential})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/verify", bytes.NewReader(body))
	if err != nil {
		return nil, ErrDenied
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("identity service unreachable; denying")
		return nil, ErrDenied
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ErrDenied
	}
	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ErrDenied
	}
	if out.ActorID == uuid.Nil {
		return nil, ErrDenied
	}
	return &session.Identity{ActorID: out.ActorID, Name: out.Name}, nil
}

// StaticVerifier verifies "name:password" credentials against an in-memory
// table of bcrypt hashes. Used for local development and tests.
type StaticVerifier struct {
	hashes map[string]string
}

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{hashes: make(map[string]string)}
}

// AddUser registers a user with a bcrypt-hashed password.
func (v *StaticVerifier) AddUser(name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	v.hashes[name] = string(hash)
	return nil
}

func (v *StaticVerifier) Verify(_ context.Context, credential string) (*session.Identity, error) {
	name, password, ok := strings.Cut(credential, ":")
	if !ok {
		return nil, ErrDenied
	}
	hash, ok := v.hashes[name]
	if !ok {
		return nil, ErrDenied
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrDenied
	}
	return &session.Identity{ActorID: ActorID(name), Name: name}, nil
}

// ActorID derives a stable actor ID from a username.
func ActorID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("actor:%s", name)))
}
