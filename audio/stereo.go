package audio

import "io"

// stereoReader feeds a player 16-bit stereo PCM from a ring, widening mono
// and filling gaps with silence. A partial frame read from the ring is held
// for the next read so samples stay aligned.
type stereoReader struct {
	src   io.Reader
	widen bool
	buf   []byte
	carry []byte
}

func newStereoReader(src io.Reader, widen bool) *stereoReader {
	return &stereoReader{src: src, widen: widen}
}

func (r *stereoReader) Read(p []byte) (int, error) {
	p = p[:len(p)/4*4]
	if len(p) == 0 {
		return 0, nil
	}

	frame, dst := 4, p
	if r.widen {
		frame = 2
		if cap(r.buf) < len(p)/2 {
			r.buf = make([]byte, len(p)/2)
		}
		dst = r.buf[:len(p)/2]
	}

	c := copy(dst, r.carry)
	n, _ := r.src.Read(dst[c:])
	n += c
	whole := n / frame * frame
	r.carry = append(r.carry[:0], dst[whole:n]...)
	clear(dst[whole:])

	if r.widen {
		for i := 0; i < len(dst); i += 2 {
			lo, hi := dst[i], dst[i+1]
			p[2*i], p[2*i+1], p[2*i+2], p[2*i+3] = lo, hi, lo, hi
		}
	}
	return len(p), nil
}
