package mock

import (
	"context"
)

// MockBlobWriter records WriteBytes calls in order. Err fails every call;
// FailKeys fails only the listed keys.
type MockBlobWriter struct {
	Err      error
	FailKeys map[string]error

	Keys     []string
	Payloads map[string][]byte
}

func (m *MockBlobWriter) WriteBytes(_ context.Context, key string, payload []byte) error {
	if m.Err != nil {
		return m.Err
	}
	if err, ok := m.FailKeys[key]; ok {
		return err
	}
	if m.Payloads == nil {
		m.Payloads = map[string][]byte{}
	}
	m.Keys = append(m.Keys, key)
	m.Payloads[key] = append([]byte(nil), payload...)
	return nil
}
