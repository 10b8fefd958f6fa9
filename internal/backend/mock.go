package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Client = (*MockClient)(nil)

// MockClient is an in-memory Client for local runs and tests.
type MockClient struct {
	mu      sync.Mutex
	users   map[string]string // phone -> preferred language
	threads map[string]*mockThread

	// Reply, when set, is returned by ProcessMessage verbatim.
	Reply string
	// Fail* flags force the corresponding operation to error.
	FailRegister bool
	FailProcess  bool
}

type mockThread struct {
	phoneNum string
	title    string
	messages []ThreadMessage
	lastAt   time.Time
}

func NewMockClient() *MockClient {
	return &MockClient{
		users:   make(map[string]string),
		threads: make(map[string]*mockThread),
		Reply:   "mock backend reply",
	}
}

func (m *MockClient) RegisterUser(ctx context.Context, phoneNum, preferredLanguage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRegister {
		return fmt.Errorf("%w: mock failure", ErrRegistration)
	}
	m.users[phoneNum] = preferredLanguage
	return nil
}

func (m *MockClient) UserExists(ctx context.Context, phoneNum string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[phoneNum]
	return ok, nil
}

func (m *MockClient) UpdateLocation(ctx context.Context, phoneNum string, latitude, longitude float64) error {
	return nil
}

func (m *MockClient) CreateThread(ctx context.Context, phoneNum, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.threads[id] = &mockThread{phoneNum: phoneNum, title: title}
	return id, nil
}

// ThreadTitle reports the title a thread was created with. Used by tests.
func (m *MockClient) ThreadTitle(threadID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.threads[threadID]; ok {
		return t.title
	}
	return ""
}

func (m *MockClient) LastThreadInfo(ctx context.Context, phoneNum string) (*ThreadInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest string
	var latestAt time.Time
	for id, t := range m.threads {
		if t.phoneNum != phoneNum {
			continue
		}
		if latest == "" || t.lastAt.After(latestAt) {
			latest, latestAt = id, t.lastAt
		}
	}
	info := &ThreadInfo{ThreadID: latest}
	if latest != "" && !latestAt.IsZero() {
		at := latestAt
		info.LastMessageTime = &at
	}
	return info, nil
}

func (m *MockClient) ThreadHistory(ctx context.Context, phoneNum, threadID string) ([]ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown thread %s", ErrThreadHistory, threadID)
	}
	out := make([]ThreadMessage, len(t.messages))
	copy(out, t.messages)
	return out, nil
}

func (m *MockClient) ProcessMessage(ctx context.Context, phoneNum, threadID, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailProcess {
		return "", fmt.Errorf("%w: mock failure", ErrMessageProcessing)
	}
	if t, ok := m.threads[threadID]; ok {
		t.messages = append(t.messages,
			ThreadMessage{Role: "user", Content: message},
			ThreadMessage{Role: "assistant", Content: m.Reply})
		t.lastAt = time.Now()
	}
	return m.Reply, nil
}

// SetThreadLastMessageTime backdates a thread, used to exercise retention.
func (m *MockClient) SetThreadLastMessageTime(threadID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.threads[threadID]; ok {
		t.lastAt = at
	}
}
