package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	header := Sign(body, "s3cret")

	assert.True(t, strings.HasPrefix(header, "sha256="))
	assert.Len(t, header, len("sha256=")+64)
	assert.True(t, Verify(body, header, "s3cret"))
}

func TestVerify_Rejects(t *testing.T) {
	body := []byte(`{"entry":[]}`)
	valid := Sign(body, "s3cret")
	digest := strings.TrimPrefix(valid, "sha256=")

	tests := map[string]struct {
		body   []byte
		header string
		secret string
	}{
		"wrong secret":   {body, valid, "other"},
		"tampered body":  {[]byte(`{"entry":[{}]}`), valid, "s3cret"},
		"missing prefix": {body, digest, "s3cret"},
		"sha1 prefix":    {body, "sha1=" + digest, "s3cret"},
		"not hex":        {body, "sha256=" + strings.Repeat("z", 64), "s3cret"},
		"short digest":   {body, "sha256=" + digest[:10], "s3cret"},
		"empty header":   {body, "", "s3cret"},
		"empty secret":   {body, Sign(body, ""), ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.False(t, Verify(tt.body, tt.header, tt.secret))
		})
	}
}

func TestVerify_RejectsAnySingleByteChange(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"WABA1"}]}`)
	header := Sign(body, "s3cret")

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		assert.False(t, Verify(tampered, header, "s3cret"), "byte %d", i)
	}
	assert.True(t, Verify(body, header, "s3cret"))
}
