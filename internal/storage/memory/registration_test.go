package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/sessiond/internal/core/domain"
)

func newDevice(name string) domain.Device {
	return domain.Device{ID: uuid.NewString(), Name: name, Kind: "totp"}
}

func TestNewDeviceRegistrationStore_Config(t *testing.T) {
	if _, err := NewDeviceRegistrationStore[domain.Device](nil); err == nil {
		t.Error("expected error for nil accessor")
	}
	_, err := NewDeviceRegistrationStore(domain.DeviceID, WithRegistrationLifetime(-time.Second))
	if !domain.IsDomainError(err, domain.ErrConfiguration.Code) {
		t.Errorf("negative lifetime error = %v, want configuration error", err)
	}
	s, err := NewDeviceRegistrationStore(domain.DeviceID)
	if err != nil {
		t.Fatalf("NewDeviceRegistrationStore: %v", err)
	}
	if s.Lifetime() != DefaultRegistrationLifetime {
		t.Errorf("Lifetime() = %v, want %v", s.Lifetime(), DefaultRegistrationLifetime)
	}
}

func TestDeviceRegistrationStore_UnlimitedLifetime(t *testing.T) {
	s, err := NewDeviceRegistrationStore(domain.DeviceID, WithRegistrationLifetime(0))
	if err != nil {
		t.Fatalf("NewDeviceRegistrationStore: %v", err)
	}

	devices := []domain.Device{newDevice("phone"), newDevice("laptop"), newDevice("key")}
	for _, d := range devices {
		if err := s.Register(1, 7, d); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if got := s.Devices(1, 7); len(got) != 3 {
		t.Fatalf("Devices = %d entries, want 3", len(got))
	}

	removed, ok, err := s.Unregister(1, 7, devices[1].ID)
	if err != nil || !ok || removed.Name != "laptop" {
		t.Fatalf("Unregister = (%v, %v, %v)", removed, ok, err)
	}
	got := s.Devices(1, 7)
	if len(got) != 2 {
		t.Fatalf("Devices = %d entries, want 2", len(got))
	}
	if got[0].Name != "phone" || got[1].Name != "key" {
		t.Errorf("Devices order = %v", got)
	}
	if _, ok := s.Device(1, 7, devices[2].ID); !ok {
		t.Error("Device(key) not found")
	}
}

func TestDeviceRegistrationStore_UnregisterLastUnlinks(t *testing.T) {
	s, _ := NewDeviceRegistrationStore(domain.DeviceID)
	d := newDevice("phone")
	_ = s.Register(1, 7, d)

	if _, ok, _ := s.Unregister(1, 7, "missing"); ok {
		t.Fatal("Unregister of unknown device reported success")
	}
	if _, ok, _ := s.Unregister(1, 7, d.ID); !ok {
		t.Fatal("Unregister failed")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if _, ok, _ := s.Unregister(1, 7, d.ID); ok {
		t.Error("second Unregister should report absent")
	}
}

func TestDeviceRegistrationStore_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	s, _ := NewDeviceRegistrationStore(domain.DeviceID,
		WithRegistrationLifetime(time.Minute),
		WithRegistrationClock(clock),
	)
	_ = s.Register(1, 7, newDevice("old"))

	now = now.Add(30 * time.Second)
	_ = s.Register(1, 7, newDevice("new"))

	now = now.Add(45 * time.Second)
	got := s.Devices(1, 7)
	if len(got) != 1 || got[0].Name != "new" {
		t.Fatalf("Devices = %v, want only new", got)
	}

	now = now.Add(time.Minute)
	if dropped := s.Cleanup(); dropped != 1 {
		t.Errorf("Cleanup dropped %d, want 1", dropped)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after all expired", s.Len())
	}
}

func TestDeviceRegistrationStore_NoLostRegistrationsUnderCleanup(t *testing.T) {
	s, _ := NewDeviceRegistrationStore(domain.DeviceID, WithRegistrationLifetime(time.Hour))
	const n = 200

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				s.Cleanup()
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := domain.Device{ID: fmt.Sprintf("dev-%d", i)}
			if err := s.Register(1, 7, d); err != nil {
				t.Errorf("Register: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(stop)
	<-done

	if got := s.Devices(1, 7); len(got) != n {
		t.Fatalf("Devices = %d, want %d", len(got), n)
	}
}

func TestDeviceRegistrationStore_ConcurrentRegisterUnregister(t *testing.T) {
	s, _ := NewDeviceRegistrationStore(domain.DeviceID, WithRegistrationLifetime(0))
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := domain.Device{ID: fmt.Sprintf("dev-%d", i)}
			for j := 0; j < 20; j++ {
				if err := s.Register(2, 3, d); err != nil {
					t.Errorf("Register: %v", err)
					return
				}
				if _, ok, err := s.Unregister(2, 3, d.ID); err != nil || !ok {
					t.Errorf("Unregister = (%v, %v)", ok, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if got := s.Devices(2, 3); len(got) != 0 {
		t.Errorf("Devices = %d, want 0", len(got))
	}
}
