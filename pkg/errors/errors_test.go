package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(ErrCodeBadURI, "bad locator")
	assert.Equal(t, "[BAD_URI] bad locator", plain.Error())

	wrapped := Wrap(ErrCodeFetchHTTP, "fetch failed", fmt.Errorf("connection refused"))
	assert.Equal(t, "[FETCH_HTTP] fetch failed: connection refused", wrapped.Error())
	assert.EqualError(t, wrapped.Unwrap(), "connection refused")
}

func TestCodeOf_Unwraps(t *testing.T) {
	inner := New(ErrCodeChecksumMismatch, "mismatch")
	outer := fmt.Errorf("while fetching: %w", inner)

	assert.Equal(t, ErrCodeChecksumMismatch, CodeOf(outer))
	assert.True(t, Is(outer, ErrCodeChecksumMismatch))
	assert.False(t, Is(outer, ErrCodeBadURI))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeConfigSchema, "bad schema").WithDetail("field", "wiring")
	assert.Equal(t, "wiring", err.Details["field"])
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{New(ErrCodeSafetyViolation, "unsafe"), ExitUnsafe},
		{New(ErrCodeConfigIO, "io"), ExitConfig},
		{New(ErrCodeConfigSyntax, "syntax"), ExitConfig},
		{New(ErrCodeConfigSchema, "schema"), ExitConfig},
		{New(ErrCodeBadURI, "uri"), ExitFetch},
		{New(ErrCodeFetchHTTP, "http"), ExitFetch},
		{New(ErrCodeManifestChecksum, "manifest"), ExitFetch},
		{New(ErrCodeChecksumMismatch, "mismatch"), ExitFetch},
		{New(ErrCodeUnsupportedHash, "hash"), ExitFetch},
		{New(ErrCodeInstantiationFailed, "inst"), ExitRuntime},
		{New(ErrCodeCallFailed, "call"), ExitRuntime},
		{fmt.Errorf("uncoded"), ExitRuntime},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "error %v", tt.err)
	}
}
