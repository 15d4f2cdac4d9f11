package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// signatureTolerance bounds the age of a signed webhook timestamp.
const signatureTolerance = 5 * time.Minute

type sandboxIntent struct {
	Status
}

// Sandbox is an in-process Provider used when no Stripe key is configured
// and in tests.  Intents succeed as soon as they are created, refunds are
// recorded per idempotency key, and webhooks use Stripe's
// "t=<unix>,v1=<hmac-sha256>" signature header.
type Sandbox struct {
	mu        sync.Mutex
	secret    []byte
	intents   map[string]*sandboxIntent
	refunds   map[string]string
	refundErr error
	now       func() time.Time
}

// NewSandbox returns a sandbox provider that signs webhooks with secret.
func NewSandbox(secret string) *Sandbox {
	return &Sandbox{
		secret:  []byte(secret),
		intents: make(map[string]*sandboxIntent),
		refunds: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Sandbox) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref := "pi_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	s.mu.Lock()
	s.intents[ref] = &sandboxIntent{Status{Reference: ref, State: StateSucceeded, AmountCents: amountCents, Currency: currency, Metadata: md}}
	s.mu.Unlock()
	return &Intent{Reference: ref, ClientSecret: ref + "_secret_sandbox"}, nil
}

func (s *Sandbox) GetStatus(ctx context.Context, reference string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[reference]
	if !ok {
		return nil, ErrUnknownReference
	}
	st := in.Status
	st.Metadata = make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		st.Metadata[k] = v
	}
	return &st, nil
}

func (s *Sandbox) Refund(ctx context.Context, reference string, amountCents int64, idempotencyKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refundErr != nil {
		return "", s.refundErr
	}
	if _, ok := s.intents[reference]; !ok {
		return "", ErrUnknownReference
	}
	if idempotencyKey != "" {
		if id, ok := s.refunds[idempotencyKey]; ok {
			return id, nil
		}
	}
	id := "re_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := idempotencyKey
	if key == "" {
		key = id
	}
	s.refunds[key] = id
	return id, nil
}

// SetState overrides the state reported for reference.
func (s *Sandbox) SetState(reference, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.intents[reference]; ok {
		in.State = state
	}
}

// SetRefundError makes every following Refund call fail with err; nil
// restores normal behaviour.
func (s *Sandbox) SetRefundError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refundErr = err
}

// RefundCount returns the number of distinct refunds issued.
func (s *Sandbox) RefundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refunds)
}

type sandboxEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// SignedEvent builds a webhook payload of eventType for reference and the
// matching signature header.
func (s *Sandbox) SignedEvent(eventType, reference string) ([]byte, string, error) {
	st, err := s.GetStatus(context.Background(), reference)
	if err != nil {
		return nil, "", err
	}
	var ev sandboxEvent
	ev.ID = "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ev.Type = eventType
	ev.Data.Object.ID = st.Reference
	ev.Data.Object.Status = st.State
	ev.Data.Object.Metadata = st.Metadata
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	return payload, s.Sign(payload, s.now()), nil
}

// Sign returns the signature header for payload at instant ts.
func (s *Sandbox) Sign(payload []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + s.mac(unix, payload)
}

func (s *Sandbox) mac(unix string, payload []byte) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(unix))
	m.Write([]byte("."))
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

func (s *Sandbox) VerifyWebhookSignature(payload []byte, signature string) (*Event, error) {
	var unix string
	var sigs []string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			unix = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	ts, err := strconv.ParseInt(unix, 10, 64)
	if err != nil || len(sigs) == 0 {
		return nil, fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	if age := s.now().Sub(time.Unix(ts, 0)); age > signatureTolerance || age < -signatureTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}
	want := s.mac(unix, payload)
	valid := false
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(want)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrInvalidSignature
	}
	var ev sandboxEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("sandbox: decode event: %w", err)
	}
	return &Event{
		ID:        ev.ID,
		Type:      ev.Type,
		Reference: ev.Data.Object.ID,
		State:     ev.Data.Object.Status,
		Metadata:  ev.Data.Object.Metadata,
	}, nil
}
