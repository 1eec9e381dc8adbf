package sysinfo

import (
	"context"
	"encoding/json"
	"testing"
)

func TestHostSampler_Sample(t *testing.T) {
	snap, err := NewHostSampler().Sample(context.Background())
	if err != nil {
		t.Skipf("host stats unavailable: %v", err)
	}

	if snap.RAM.Total == 0 {
		t.Error("RAM.Total = 0")
	}
	if snap.RAM.Free > snap.RAM.Total {
		t.Errorf("RAM.Free %d > RAM.Total %d", snap.RAM.Free, snap.RAM.Total)
	}
	if snap.CPU.Usage < 0 || snap.CPU.Usage > 100 {
		t.Errorf("CPU.Usage = %v, want 0..100", snap.CPU.Usage)
	}
}

func TestSnapshot_JSONShape(t *testing.T) {
	data, err := json.Marshal(Snapshot{RAM: RAM{Total: 7972, Free: 1024}, CPU: CPU{Usage: 12.5}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"ram":{"total":7972,"free":1024},"cpu":{"usage":12.5}}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}
