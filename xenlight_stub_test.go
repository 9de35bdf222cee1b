//go:build !xenlight || !cgo

package xlevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenXenlight_notSupported(t *testing.T) {
	_, err := New(OpenXenlight)
	assert.ErrorIs(t, err, ErrNotSupported)
}
