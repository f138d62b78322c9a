package deviceconf

import "testing"

const whisperID = 0

func newWithWhisper() *Configurations {
	c := New()
	c.Add(whisperID, "whisper", 0, "w", "asr")
	return c
}

func TestApplyEngineNameOnlyUsesImplicit(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("whisper", -1, ImplicitAllowed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, _ := c.Device(whisperID)
	if d != -1 {
		t.Fatalf("expected device -1, got %d", d)
	}
}

func TestApplyRequiredRejectsBareName(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("whisper", -1, ImplicitRequired); err == nil {
		t.Fatal("expected error for missing device under ImplicitRequired")
	}
}

func TestApplyNotAllowedRejectsDeviceSuffix(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("whisper:cpu", -1, ImplicitNotAllowed); err == nil {
		t.Fatal("expected error for device suffix under ImplicitNotAllowed")
	}
}

func TestApplyShortFormCPUAndGPU(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("whisper:cpu", 0, ImplicitAllowed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d, _ := c.Device(whisperID); d != -1 {
		t.Fatalf("expected cpu (-1), got %d", d)
	}

	if err := c.Apply("whisper:gpu#2", 0, ImplicitAllowed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d, _ := c.Device(whisperID); d != 2 {
		t.Fatalf("expected gpu#2, got %d", d)
	}
}

// TestApplyThreePartFormUsesDeviceNumberField is the regression test for the
// original three-part parsing bug: the device number must be read from the
// third field, not the second (type) field.
func TestApplyThreePartFormUsesDeviceNumberField(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("whisper:gpu:1", -1, ImplicitAllowed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, _ := c.Device(whisperID)
	if d != 1 {
		t.Fatalf("expected device 1 from three-part form, got %d", d)
	}
}

func TestApplyThreePartFormAuto(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("whisper:gpu:auto", -1, ImplicitAllowed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, _ := c.Device(whisperID)
	if d != 0 {
		t.Fatalf("expected device 0 (auto), got %d", d)
	}
}

func TestApplyCPUWithDeviceNumberRejected(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("whisper:cpu:1", -1, ImplicitAllowed); err == nil {
		t.Fatal("expected error: CPU does not take a device number")
	}
}

func TestApplyAllAlias(t *testing.T) {
	c := newWithWhisper()
	c.Add(1, "tts", 0, "t")
	if err := c.Apply("all:cpu", 0, ImplicitAllowed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d, _ := c.Device(whisperID); d != -1 {
		t.Fatalf("expected whisper cpu, got %d", d)
	}
	if d, _ := c.Device(1); d != -1 {
		t.Fatalf("expected tts cpu, got %d", d)
	}
}

func TestApplyUnknownEngine(t *testing.T) {
	c := newWithWhisper()
	if err := c.Apply("nonexistent:cpu", -1, ImplicitAllowed); err == nil {
		t.Fatal("expected error for unknown engine alias")
	}
}

func TestDeviceString(t *testing.T) {
	if DeviceString(-1) != "cpu" {
		t.Fatalf("expected cpu")
	}
	if DeviceString(0) != "gpu#0" {
		t.Fatalf("expected gpu#0")
	}
	if DeviceString(3) != "gpu#3" {
		t.Fatalf("expected gpu#3")
	}
}
