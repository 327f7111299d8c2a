package translate

import (
	"context"
	"time"
)

// MockTranslator returns canned responses for testing.
type MockTranslator struct {
	Delay  time.Duration
	Result string // returned verbatim when set; otherwise the input text echoes back
	Err    error
}

func (m *MockTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Result != "" {
		return m.Result, nil
	}
	return text, nil
}
