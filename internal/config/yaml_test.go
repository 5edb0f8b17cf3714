package config

import (
	"testing"
	"time"
)

func TestCacheHealthCheckInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 15 * time.Second, false},
		{"30s", 30 * time.Second, false},
		{"0s", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := CacheConfig{HealthInterval: tt.in}.HealthCheckInterval()
		if (err != nil) != tt.wantErr {
			t.Errorf("HealthCheckInterval(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("HealthCheckInterval(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if d, err := Default().Cache.HealthCheckInterval(); err != nil || d != 15*time.Second {
		t.Errorf("default interval = %v, %v", d, err)
	}
}
