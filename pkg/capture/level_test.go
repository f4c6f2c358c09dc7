package capture

import "testing"

func TestRMSLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{name: "empty", pcm: nil, want: 0},
		{name: "odd tail ignored", pcm: []byte{0x01}, want: 0},
		{name: "silence", pcm: []byte{0, 0, 0, 0}, want: 0},
		{name: "full scale", pcm: []byte{0xff, 0x7f, 0xff, 0x7f}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rmsLevel(tt.pcm)
			if diff := got - tt.want; diff > 1e-3 || diff < -1e-3 {
				t.Errorf("rmsLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
