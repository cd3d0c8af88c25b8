package provision

import (
	"context"
	"errors"
	"sync"
)

// FakeStation is a scripted network stack for tests.
type FakeStation struct {
	mu sync.Mutex

	// AutoConnectError, if set, is returned by AutoConnect.
	AutoConnectError error

	// AutoConnectBlocks makes AutoConnect wait for its context instead.
	AutoConnectBlocks bool

	// JoinErrors are returned by successive Join calls; once exhausted Join succeeds.
	JoinErrors []error

	// APError, if set, is returned by StartAccessPoint.
	APError error

	AutoConnectCalls int
	Joined           []Credentials
	APName           string
	APStarted        int
	APStopped        int
	Addr             string
}

// AutoConnect returns the scripted result.
func (f *FakeStation) AutoConnect(ctx context.Context) error {
	f.mu.Lock()
	f.AutoConnectCalls++
	blocks := f.AutoConnectBlocks
	err := f.AutoConnectError
	f.mu.Unlock()

	if blocks {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

// Join records the credentials and returns the next scripted error.
func (f *FakeStation) Join(_ context.Context, creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Joined = append(f.Joined, creds)
	if len(f.JoinErrors) > 0 {
		err := f.JoinErrors[0]
		f.JoinErrors = f.JoinErrors[1:]
		return err
	}
	return nil
}

// StartAccessPoint records the access point name.
func (f *FakeStation) StartAccessPoint(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.APError != nil {
		return f.APError
	}
	f.APName = name
	f.APStarted++
	return nil
}

// StopAccessPoint records the stop.
func (f *FakeStation) StopAccessPoint() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.APStopped++
	return nil
}

// Address returns Addr.
func (f *FakeStation) Address() string {
	return f.Addr
}

// FakePortal replays Submissions, mimicking an operator at the form.
type FakePortal struct {
	// Submissions are posted in order until one joins successfully.
	Submissions []Submission

	// WaitForTimeout makes Run block on its context once submissions run out.
	WaitForTimeout bool

	Runs     int
	callback func()
}

// SetSaveConfigCallback registers the save callback.
func (p *FakePortal) SetSaveConfigCallback(fn func()) {
	p.callback = fn
}

// Run posts each submission: valid params are applied and flagged for save,
// then join is attempted.
func (p *FakePortal) Run(ctx context.Context, params *Params, join JoinFunc) error {
	p.Runs++
	for _, s := range p.Submissions {
		if _, err := s.Params.DeviceConfig(); err != nil {
			continue
		}
		*params = s.Params
		if p.callback != nil {
			p.callback()
		}
		if err := join(ctx, s.Credentials); err == nil {
			return nil
		}
	}
	if p.WaitForTimeout {
		<-ctx.Done()
		return ctx.Err()
	}
	return errors.New("portal closed")
}

// FakeIndicator records provisioning indications.
type FakeIndicator struct {
	Dimmed bool
	Dims   int
	Offs   int
}

// Dim records the provisioning level.
func (f *FakeIndicator) Dim() { f.Dimmed = true; f.Dims++ }

// Off records the end of provisioning.
func (f *FakeIndicator) Off() { f.Dimmed = false; f.Offs++ }
