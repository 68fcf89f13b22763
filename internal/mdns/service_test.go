package mdns

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []Advertisement
	closed    int
	failWith  error
}

func (f *fakePublisher) Publish(ad Advertisement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, ad)
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func dialTo(p *fakePublisher) Dialer {
	return func() (Publisher, error) { return p, nil }
}

func TestAdvertisement_TXT(t *testing.T) {
	ad := Advertisement{Name: "kitchen-pi", Port: 8080, WebSocketPath: "/api/v1/ws"}

	var records []string
	for _, r := range ad.TXT() {
		records = append(records, string(r))
	}
	assert.Equal(t, []string{"name=kitchen-pi", "version=" + ServerVersion, "api=v1", "ws=/api/v1/ws"}, records)
}

func TestService_StartAndStop(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{}
	svc := NewServiceWithDialer(dialTo(pub), slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, svc.Start(Advertisement{Name: "kitchen-pi", Port: 8080}))
	assert.True(t, svc.Running())
	require.Len(t, pub.published, 1)
	assert.Equal(t, 8080, pub.published[0].Port)
	assert.Contains(t, buf.String(), "mDNS advertisement started")

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.Running())
	assert.Equal(t, 1, pub.closed)
}

func TestService_RestartReplacesAdvertisement(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewServiceWithDialer(dialTo(pub), nil)

	require.NoError(t, svc.Start(Advertisement{Port: 8080}))
	require.NoError(t, svc.Start(Advertisement{Port: 8081}))

	assert.Equal(t, 1, pub.closed)
	require.Len(t, pub.published, 2)
	assert.NotEmpty(t, pub.published[0].Name, "hostname is the default name")
	svc.Stop()
}

func TestService_StartFailures(t *testing.T) {
	t.Run("no daemon", func(t *testing.T) {
		svc := NewServiceWithDialer(func() (Publisher, error) { return nil, errors.New("no system bus") }, nil)
		err := svc.Start(Advertisement{Port: 8080})
		assert.ErrorContains(t, err, "no system bus")
		assert.False(t, svc.Running())
	})

	t.Run("publish rejected", func(t *testing.T) {
		pub := &fakePublisher{failWith: errors.New("collision")}
		svc := NewServiceWithDialer(dialTo(pub), nil)
		err := svc.Start(Advertisement{Port: 8080})
		assert.ErrorContains(t, err, "collision")
		assert.Equal(t, 1, pub.closed)
		assert.False(t, svc.Running())
	})
}

func TestService_ConcurrentStop(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewServiceWithDialer(dialTo(pub), nil)
	require.NoError(t, svc.Start(Advertisement{Name: "x", Port: 1}))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Stop()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, pub.closed)
}
