package mqtt

import "errors"

// Message is a publish recorded by FakeClient.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakeClient records connects and publishes for test assertions.
type FakeClient struct {
	// Messages contains every successful publish, in order.
	Messages []Message

	// ConnectErrors are returned by successive Connect calls; once exhausted
	// Connect succeeds.
	ConnectErrors []error

	// ConnectError, if set, is returned by every Connect call.
	ConnectError error

	// PublishError, if set, is returned by Publish.
	PublishError error

	// ConnectCalls counts Connect invocations.
	ConnectCalls int

	// PublishCalls counts Publish invocations, including failed ones.
	PublishCalls int

	// Connected controls the return value of IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeClient creates a disconnected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Connect records the attempt.
func (f *FakeClient) Connect() error {
	f.ConnectCalls++
	if f.ConnectError != nil {
		return f.ConnectError
	}
	if len(f.ConnectErrors) > 0 {
		err := f.ConnectErrors[0]
		f.ConnectErrors = f.ConnectErrors[1:]
		if err != nil {
			return err
		}
	}
	f.Connected = true
	return nil
}

// Publish records the message.
func (f *FakeClient) Publish(topic string, payload []byte, retained bool) error {
	f.PublishCalls++
	if !f.Connected {
		return errors.New("not connected")
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Messages = append(f.Messages, Message{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	return f.Connected
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.Closed = true
	f.Connected = false
	return nil
}

// Reset clears recorded state.
func (f *FakeClient) Reset() {
	*f = FakeClient{}
}
