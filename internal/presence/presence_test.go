package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	tr := NewTracker()

	tr.Subscribe("c1", "dev-a", "api")
	if !tr.HasActiveViewers("api") {
		t.Error("expected active viewers after subscribe")
	}

	tr.Unsubscribe("c1")
	if tr.HasActiveViewers("api") {
		t.Error("expected no viewers after unsubscribe")
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	tr := NewTracker()
	tr.Unsubscribe("never-subscribed")
	tr.Subscribe("c1", "dev-a", "api")
	tr.Unsubscribe("c1")
	tr.Unsubscribe("c1")
	if tr.ViewerCount("api") != 0 {
		t.Errorf("ViewerCount = %d, want 0", tr.ViewerCount("api"))
	}
}

func TestResubscribe_MovesConnection(t *testing.T) {
	tr := NewTracker()

	tr.Subscribe("c1", "dev-a", "sessionA")
	tr.Subscribe("c1", "dev-a", "sessionB")

	if tr.HasActiveViewers("sessionA") {
		t.Error("connection should have left sessionA")
	}
	if !tr.HasActiveViewers("sessionB") {
		t.Error("connection should be present under sessionB")
	}
}

func TestDevicesFor_CollapsesWindows(t *testing.T) {
	tr := NewTracker()

	// Two windows from the same device plus one other device.
	tr.Subscribe("c1", "dev-a", "api")
	tr.Subscribe("c2", "dev-a", "api")
	tr.Subscribe("c3", "dev-b", "api")

	devices := tr.DevicesFor("api")
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2: %v", len(devices), devices)
	}
	if tr.ViewerCount("api") != 3 {
		t.Errorf("ViewerCount = %d, want 3", tr.ViewerCount("api"))
	}
	if tr.DeviceCount("api") != 2 {
		t.Errorf("DeviceCount = %d, want 2", tr.DeviceCount("api"))
	}
}

func TestConnectionsFor(t *testing.T) {
	tr := NewTracker()
	tr.Subscribe("c1", "dev-a", "api")
	tr.Subscribe("c2", "dev-a", "api")
	tr.Subscribe("c3", "dev-b", "api")
	tr.Subscribe("c4", "dev-a", "other")

	conns := tr.ConnectionsFor("api", "dev-a")
	if len(conns) != 2 {
		t.Fatalf("got %d connections, want 2: %v", len(conns), conns)
	}
	for _, c := range conns {
		if c != "c1" && c != "c2" {
			t.Errorf("unexpected connection %q", c)
		}
	}
}

func TestDevicesFor_EmptySession(t *testing.T) {
	tr := NewTracker()
	if devices := tr.DevicesFor("nothing"); len(devices) != 0 {
		t.Errorf("got %v, want empty", devices)
	}
}

func TestConcurrentChurn(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			device := fmt.Sprintf("dev-%d", i%4)
			for j := 0; j < 100; j++ {
				tr.Subscribe(connID, device, "api")
				tr.Subscribe(connID, device, "other")
				tr.DevicesFor("api")
				tr.HasActiveViewers("other")
				tr.Unsubscribe(connID)
			}
		}(i)
	}
	wg.Wait()

	if tr.ViewerCount("api") != 0 || tr.ViewerCount("other") != 0 {
		t.Errorf("leftover viewers: api=%d other=%d",
			tr.ViewerCount("api"), tr.ViewerCount("other"))
	}
}
