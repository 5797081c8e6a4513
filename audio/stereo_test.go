package audio

import (
	"bytes"
	"testing"
)

// chunks returns its slices one per Read.
type chunks [][]byte

func (c *chunks) Read(p []byte) (int, error) {
	if len(*c) == 0 {
		return 0, nil
	}
	n := copy(p, (*c)[0])
	(*c)[0] = (*c)[0][n:]
	if len((*c)[0]) == 0 {
		*c = (*c)[1:]
	}
	return n, nil
}

func TestStereoReader(t *testing.T) {
	tests := []struct {
		name  string
		widen bool
		src   chunks
		size  int
		want  [][]byte
	}{
		{
			name:  "mono widened",
			widen: true,
			src:   chunks{{1, 2, 3, 4}},
			size:  8,
			want:  [][]byte{{1, 2, 1, 2, 3, 4, 3, 4}},
		},
		{
			name:  "mono odd byte carried",
			widen: true,
			src:   chunks{{1, 2, 3}, {4, 5, 6}},
			size:  8,
			want: [][]byte{
				{1, 2, 1, 2, 0, 0, 0, 0},
				{3, 4, 3, 4, 5, 6, 5, 6},
			},
		},
		{
			name: "stereo partial frame carried",
			src:  chunks{{1, 2, 3, 4, 5, 6}, {7, 8}},
			size: 8,
			want: [][]byte{
				{1, 2, 3, 4, 0, 0, 0, 0},
				{5, 6, 7, 8, 0, 0, 0, 0},
			},
		},
		{
			name:  "underrun is silence",
			widen: true,
			src:   chunks{},
			size:  6,
			want:  [][]byte{{0, 0, 0, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.src
			r := newStereoReader(&src, tt.widen)
			for i, want := range tt.want {
				p := bytes.Repeat([]byte{0xEE}, tt.size)
				n, err := r.Read(p)
				if err != nil {
					t.Fatalf("Read() error = %v", err)
				}
				if !bytes.Equal(p[:n], want) {
					t.Errorf("read %d = % X, want % X", i, p[:n], want)
				}
			}
		})
	}
}
