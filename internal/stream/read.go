package stream

import "io"

// ReadFull fills buf from r with reads of at most readSize bytes, retrying
// short reads. It returns io.ErrUnexpectedEOF if r ends after a partial fill
// and io.EOF if r ends before any byte was read.
func ReadFull(r io.Reader, buf []byte, readSize int) (int, error) {
	if readSize <= 0 {
		return io.ReadFull(r, buf)
	}

	n := 0
	empty := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:min(n+readSize, len(buf))])
		n += m
		if err != nil {
			if err == io.EOF && n < len(buf) {
				if n == 0 {
					return 0, io.EOF
				}

				return n, io.ErrUnexpectedEOF
			}
			if err != io.EOF {
				return n, err
			}
		}
		if m == 0 {
			empty++
			if empty >= maxEmptyReads {
				return n, io.ErrNoProgress
			}
		} else {
			empty = 0
		}
	}

	return n, nil
}
