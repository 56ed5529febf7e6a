package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/gateway"
	"camgateway/internal/msgs"
	"camgateway/internal/status"
	"camgateway/internal/transport"
)

// startGateway はモックドライバのゲートウェイを起動する
func startGateway(t *testing.T, bus *transport.Bus, id string) *camera.MockDriver {
	t.Helper()
	driver := camera.NewMockDriver()
	driver.SetPacing(false)
	ch := bus.NewChannel()
	g := gateway.New(id, driver, ch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.Run(ctx, nil); err != nil {
			t.Errorf("Run failed: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		ch.Close()
	})
	return driver
}

func TestClient_SetGetConfig(t *testing.T) {
	for _, codec := range []transport.Codec{transport.JSON, transport.MsgPack} {
		t.Run(codec.ContentType(), func(t *testing.T) {
			bus := transport.NewBus(16)
			startGateway(t, bus, "cam0")

			ch := bus.NewChannel()
			defer ch.Close()
			c := New(ch, "cam0", WithCodec(codec), WithTimeout(2*time.Second))

			ctx := context.Background()
			period := camera.Period(50 * time.Millisecond)
			err := c.SetConfig(ctx, camera.Config{
				Sampling: &camera.SamplingSettings{Rate: period},
				Camera:   &camera.CameraSettings{Focus: &camera.CameraSetting{Ratio: 0.75, Automatic: true}},
			})
			if err != nil {
				t.Fatalf("SetConfig failed: %v", err)
			}

			cfg, err := c.GetConfig(ctx, camera.FieldSelector{camera.FieldAll})
			if err != nil {
				t.Fatalf("GetConfig failed: %v", err)
			}
			if p, ok := cfg.Sampling.Rate.(camera.Period); !ok || p != period {
				t.Errorf("Unexpected rate: %#v", cfg.Sampling.Rate)
			}
			if f := cfg.Camera.Focus; f == nil || f.Ratio != 0.75 || !f.Automatic {
				t.Errorf("Unexpected focus: %+v", f)
			}
		})
	}
}

func TestClient_StatusErrors(t *testing.T) {
	bus := transport.NewBus(16)
	driver := startGateway(t, bus, "cam0")
	driver.SetUnsupported(camera.ControlIris)

	ch := bus.NewChannel()
	defer ch.Close()
	c := New(ch, "cam0")
	ctx := context.Background()

	err := c.SetConfig(ctx, camera.Config{Camera: &camera.CameraSettings{Iris: &camera.CameraSetting{Ratio: 0.1}}})
	if status.CodeOf(err) != status.Unimplemented {
		t.Errorf("Expected UNIMPLEMENTED, got %v", err)
	}

	freq, period := 10.0, 0.1
	err = c.SetConfigMessage(ctx, &msgs.CameraConfig{Sampling: &msgs.SamplingSettings{Frequency: &freq, Period: &period}})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT, got %v", err)
	}

	_, err = c.GetConfigMessage(ctx, msgs.FieldSelector{Fields: []string{"NOPE"}})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	bus := transport.NewBus(16)
	ch := bus.NewChannel()
	defer ch.Close()

	c := New(ch, "missing", WithTimeout(30*time.Millisecond))
	_, err := c.GetConfig(context.Background(), camera.FieldSelector{camera.FieldAll})
	if status.CodeOf(err) != status.DeadlineExceeded {
		t.Errorf("Expected DEADLINE_EXCEEDED, got %v", err)
	}
}

func TestWatch(t *testing.T) {
	bus := transport.NewBus(16)
	startGateway(t, bus, "cam1")

	ch := bus.NewChannel()
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frames, err := Watch(ctx, ch, "cam1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatal("Watch closed early")
			}
			if f.ContentType != "image/jpeg" || len(f.Data) == 0 || f.Timestamp.IsZero() {
				t.Errorf("Unexpected frame: %s %d bytes at %v", f.ContentType, len(f.Data), f.Timestamp)
			}
			if f.Resolution != "640x480" {
				t.Errorf("Unexpected resolution: %s", f.Resolution)
			}
		case <-ctx.Done():
			t.Fatal("Timed out waiting for frames")
		}
	}

	cancel()
	for range frames {
	}
}
