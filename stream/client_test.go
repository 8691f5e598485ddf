package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/errors"
)

// fakeSource pairs a scriptable connection flag with a frame-recording adapter
type fakeSource struct {
	mu        sync.Mutex
	connected bool
	frames    [][]byte
	writeErr  error
	connects  atomic.Int32
	lost      atomic.Int32
}

func (f *fakeSource) Adapter() backend.Adapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil
	}
	return (*fakeFrameAdapter)(f)
}

func (f *fakeSource) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSource) Connect(_ context.Context) error {
	f.connects.Add(1)
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) MarkConnectionLost(_ error) {
	f.lost.Add(1)
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeSource) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeSource) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// fakeFrameAdapter is the backend view of fakeSource
type fakeFrameAdapter fakeSource

func (a *fakeFrameAdapter) Connect(_ context.Context) error { return nil }
func (a *fakeFrameAdapter) Disconnect() error               { return nil }
func (a *fakeFrameAdapter) Supports(_ string) bool          { return true }
func (a *fakeFrameAdapter) IsAlive() bool                   { return (*fakeSource)(a).IsConnected() }
func (a *fakeFrameAdapter) Kind() backend.Kind              { return backend.DirectSocket }

func (a *fakeFrameAdapter) SendCommand(_ context.Context, _ string, _ ...any) (string, error) {
	return "0,OK", nil
}

func (a *fakeFrameAdapter) SendFrame(payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.writeErr != nil {
		return a.writeErr
	}
	a.frames = append(a.frames, append([]byte(nil), payload...))
	return nil
}

func newTestClient(t *testing.T, src *fakeSource) *Client {
	t.Helper()
	c, err := NewClient(src, Config{ReconnectInterval: 10 * time.Millisecond}, Deps{})
	require.NoError(t, err)
	return c
}

func TestSample_RoundTrip(t *testing.T) {
	in := Sample{
		Timestamp:      1724900000.25,
		ReferencePoint: [3]float64{0.5, 0.5, 0.5},
		TrackedPoint:   [3]float64{0.7, 0.5, 0.5},
	}

	frame, err := in.Encode()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), frame[len(frame)-1])

	out, err := Decode(frame)
	require.NoError(t, err)

	assert.InDelta(t, in.Timestamp, out.Timestamp, 1e-9)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, in.ReferencePoint[i], out.ReferencePoint[i], 1e-9)
		assert.InDelta(t, in.TrackedPoint[i], out.TrackedPoint[i], 1e-9)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json\n"))
	assert.ErrorIs(t, err, errors.ErrMalformedResponse)

	_, err = Decode([]byte("\n"))
	assert.ErrorIs(t, err, errors.ErrMalformedResponse)
}

func TestSplitFrames(t *testing.T) {
	frames, rest := SplitFrames([]byte("{\"a\":1}\n{\"b\":2}\r\n{\"part"))

	require.Len(t, frames, 2)
	assert.Equal(t, "{\"a\":1}", string(frames[0]))
	assert.Equal(t, "{\"b\":2}", string(frames[1]))
	assert.Equal(t, "{\"part", string(rest))
}

func TestClient_SendWhileDisconnectedFailsFast(t *testing.T) {
	src := &fakeSource{}
	c := newTestClient(t, src)

	ok := c.Send(Sample{Timestamp: 1})

	assert.False(t, ok)
	assert.Equal(t, 0, src.frameCount(), "no wire traffic while disconnected")
	assert.Equal(t, uint64(1), c.Dropped())
	assert.Equal(t, uint64(0), c.Sent())
}

func TestClient_SustainedSendDeliversEveryFrame(t *testing.T) {
	src := &fakeSource{connected: true}
	c := newTestClient(t, src)

	for i := 0; i < 100; i++ {
		ok := c.Send(Sample{Timestamp: float64(i)})
		require.True(t, ok, "frame %d", i)
	}

	assert.Equal(t, uint64(100), c.Sent())
	assert.Equal(t, 100, src.frameCount())
}

func TestClient_DisconnectMidStreamDropsRemainder(t *testing.T) {
	src := &fakeSource{connected: true}
	c := newTestClient(t, src)

	for i := 0; i < 50; i++ {
		require.True(t, c.Send(Sample{Timestamp: float64(i)}))
	}
	src.setConnected(false)
	for i := 50; i < 100; i++ {
		assert.False(t, c.Send(Sample{Timestamp: float64(i)}))
	}

	assert.Equal(t, uint64(50), c.Sent())
	assert.Equal(t, uint64(50), c.Dropped())
	assert.Equal(t, 50, src.frameCount(), "no writes after the link dropped")
}

func TestClient_WriteFailureReportsConnectionLost(t *testing.T) {
	src := &fakeSource{connected: true, writeErr: errors.ErrTransport}
	c := newTestClient(t, src)

	ok := c.Send(Sample{Timestamp: 1})

	assert.False(t, ok)
	assert.Equal(t, int32(1), src.lost.Load())
	assert.Equal(t, uint64(1), c.Dropped())
}

func TestClient_ReconnectLoopRestoresLink(t *testing.T) {
	src := &fakeSource{}
	c := newTestClient(t, src)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return src.connects.Load() >= 1 && src.IsConnected()
	}, time.Second, 5*time.Millisecond)

	// Once connected the loop goes quiet.
	n := src.connects.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, src.connects.Load())
}

func TestClient_StartTwiceFails(t *testing.T) {
	src := &fakeSource{}
	c := newTestClient(t, src)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.ErrorIs(t, c.Start(context.Background()), errors.ErrAlreadyStarted)
}
