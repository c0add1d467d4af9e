package timeouts_test

import (
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/system/timeouts"
)

func TestDefaults(t *testing.T) {
	timeouts.Reset()
	defer timeouts.Reset()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"ping", timeouts.Ping(), timeouts.DefaultPing},
		{"read", timeouts.Read(), timeouts.DefaultRead},
		{"write", timeouts.Write(), timeouts.DefaultWrite},
		{"sweep", timeouts.Sweep(), timeouts.DefaultSweep},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestConfigure_IgnoresZero(t *testing.T) {
	timeouts.Reset()
	defer timeouts.Reset()

	timeouts.Configure(timeouts.Config{Write: 20 * time.Second})

	cur := timeouts.Current()
	if cur.Write != 20*time.Second {
		t.Errorf("Write = %v, want 20s", cur.Write)
	}
	if cur.Read != timeouts.DefaultRead || cur.Ping != timeouts.DefaultPing {
		t.Errorf("zero fields should keep defaults, got %+v", cur)
	}
}
