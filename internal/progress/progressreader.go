package progress

import "io"

// Reader wraps an io.Reader, counts the bytes read through it and reports
// progress to a callback every interval bytes.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(read int64, total int64)

	read      int64
	sinceLast int64
	interval  int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(read int64, total int64)) *Reader {
	return &Reader{
		Reader:     r,
		Total:      total,
		OnProgress: cb,
		interval:   interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)

		if pr.OnProgress != nil && pr.interval > 0 && pr.sinceLast >= pr.interval {
			pr.OnProgress(pr.read, pr.Total)
			pr.sinceLast = 0
		}
	}

	return n, err
}

// BytesRead returns how many bytes have passed through the reader so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}
