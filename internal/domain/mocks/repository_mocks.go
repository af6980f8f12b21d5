package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// MockTransport is a mock implementation of domain.Transport for testing.
type MockTransport struct {
	mu      sync.Mutex
	Sent    []domain.LogRecord
	Calls   int
	Closed  int
	SendErr error
	// Errs, when non-empty, is consumed one entry per call before SendErr applies.
	Errs []error
	// BeforeSend is applied like a real transport would.
	BeforeSend domain.BeforeSendFunc
}

func (m *MockTransport) Send(ctx context.Context, record domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.BeforeSend != nil {
		filtered, ok := m.BeforeSend(record)
		if !ok {
			return nil
		}
		record = filtered
	}
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return err
		}
	} else if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, record)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed++
	return nil
}

// Records returns a copy of the delivered records.
func (m *MockTransport) Records() []domain.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogRecord(nil), m.Sent...)
}

// CallCount returns the number of Send invocations.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// SetErr replaces the error returned by subsequent sends.
func (m *MockTransport) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendErr = err
}

// MockSessionStore is a mock implementation of domain.SessionStore for testing.
type MockSessionStore struct {
	mu     sync.Mutex
	Values map[string]string
	GetErr error
	SetErr error
}

func (m *MockSessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.Values[key]
	return v, ok, nil
}

func (m *MockSessionStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	if m.Values == nil {
		m.Values = make(map[string]string)
	}
	m.Values[key] = value
	return nil
}

// MockAppKeyRepository is a mock implementation of domain.AppKeyRepository.
type MockAppKeyRepository struct {
	ValidKeys map[string]bool
	Err       error
}

func (m *MockAppKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.ValidKeys[key], nil
}

// MockDeliverer records the payloads handed to a delivery adapter.
type MockDeliverer struct {
	mu        sync.Mutex
	InitErr   error
	Inits     int
	Payloads  []domain.LogPayload
	UserIDs   []string
	Destroyed int
}

func (m *MockDeliverer) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inits++
	return m.InitErr
}

func (m *MockDeliverer) SendLog(ctx context.Context, payload domain.LogPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payloads = append(m.Payloads, payload)
}

func (m *MockDeliverer) SetUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserIDs = append(m.UserIDs, id)
}

func (m *MockDeliverer) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Destroyed++
}

// Sent returns a copy of the delivered payloads.
func (m *MockDeliverer) Sent() []domain.LogPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogPayload(nil), m.Payloads...)
}
