// Package ioutil bounds what is read from remote peers.
package ioutil

import (
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned by ReadBounded when r holds more than limit bytes.
var ErrTooLarge = errors.New("body exceeds size limit")

// ReadLimited reads up to limit bytes from r for use in error messages and
// logs. A read failure is described in the result instead of returned.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

// ReadBounded reads all of r, failing with ErrTooLarge instead of
// truncating when r holds more than limit bytes.
func ReadBounded(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrTooLarge
	}
	return body, nil
}
