package classifier

import "sync"

// MockClassifier is a test implementation of the Classifier interface.
type MockClassifier struct {
	mu     sync.Mutex
	output []float32
	err    error
	gate   chan struct{}
	inputs [][]float32
	closed bool
}

var _ Classifier = (*MockClassifier)(nil)

// NewMockClassifier returns a MockClassifier producing output.
func NewMockClassifier(output ...float32) *MockClassifier {
	return &MockClassifier{output: output}
}

// SetOutput sets the probabilities returned by Classify.
func (m *MockClassifier) SetOutput(output ...float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = output
}

// SetError sets the error returned by Classify.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetGate makes Classify block until gate is closed or receives a value.
func (m *MockClassifier) SetGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// Classify implements Classifier.
func (m *MockClassifier) Classify(tensor []float32) ([]float32, error) {
	m.mu.Lock()
	gate := m.gate
	m.inputs = append(m.inputs, append([]float32(nil), tensor...))
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]float32(nil), m.output...), nil
}

// Inputs returns the tensors passed to Classify so far.
func (m *MockClassifier) Inputs() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]float32(nil), m.inputs...)
}

// Closed reports whether Close was called.
func (m *MockClassifier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close implements Classifier.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
