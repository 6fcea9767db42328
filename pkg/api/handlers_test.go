package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/crc64"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

func testContent(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i*31 + i/7)
	}
	return b
}

func encodeBody(t *testing.T, content []byte, flags structmsg.Flags, segment int64) []byte {
	t.Helper()
	enc, err := structmsg.NewEncodingStream(bodystream.NewMemory(content), structmsg.EncodingOptions{
		MaxSegmentLength: segment,
		Flags:            flags,
	})
	require.NoError(t, err)
	encoded, err := bodystream.ReadToEnd(context.Background(), enc)
	require.NoError(t, err)
	return encoded
}

func structuredHeaders(flags structmsg.Flags, contentLength int) map[string]string {
	return map[string]string{
		structmsg.HeaderStructuredBody:          structmsg.HeaderValue(flags),
		structmsg.HeaderStructuredContentLength: strconv.Itoa(contentLength),
	}
}

func decodeBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	contentLength, err := strconv.ParseInt(resp.Header.Get(structmsg.HeaderStructuredContentLength), 10, 64)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	dec := structmsg.NewDecodingStream(bodystream.NewMemory(raw), structmsg.DecodingOptions{ContentLength: contentLength})
	decoded, err := bodystream.ReadToEnd(context.Background(), dec)
	require.NoError(t, err)
	return decoded
}

func TestPutBlob_Raw(t *testing.T) {
	env := setupTestServer(t)
	content := testContent(5000)

	resp := env.do(t, "PUT", "/api/v1/blobs", content, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	blob, _ := decodeResponse[BlobResponse](t, resp)
	assert.Equal(t, int64(len(content)), blob.Length)
	assert.Equal(t, FormatCrc64(crc64.Checksum(content)), blob.Crc64)
	assert.Empty(t, resp.Header.Get(structmsg.HeaderStructuredBody))

	resp = env.do(t, "GET", "/api/v1/blobs/"+blob.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
	assert.Equal(t, blob.Crc64, resp.Header.Get(HeaderBlobCrc64))
}

func TestPutBlob_Structured(t *testing.T) {
	for _, flags := range []structmsg.Flags{structmsg.FlagCrc64, structmsg.FlagNone} {
		t.Run(flags.String(), func(t *testing.T) {
			env := setupTestServer(t)
			content := testContent(2560)

			resp := env.do(t, "PUT", "/api/v1/blobs", encodeBody(t, content, flags, 1024), structuredHeaders(flags, len(content)))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, structmsg.HeaderValue(flags), resp.Header.Get(structmsg.HeaderStructuredBody))

			blob, _ := decodeResponse[BlobResponse](t, resp)
			assert.Equal(t, int64(2560), blob.Length)

			data, _, err := env.store.Get(blob.ID)
			require.NoError(t, err)
			assert.Equal(t, content, data)
			assert.Equal(t, float64(2560), env.metricValue(t, "smsg_structured_bytes_decoded_total"))
		})
	}
}

func TestPutBlob_StructuredCorruption(t *testing.T) {
	env := setupTestServer(t)
	content := testContent(2048)
	encoded := encodeBody(t, content, structmsg.FlagCrc64, 1024)
	encoded[structmsg.StreamHeaderLength+structmsg.SegmentHeaderLength+100] ^= 0xFF

	resp := env.do(t, "PUT", "/api/v1/blobs", encoded, structuredHeaders(structmsg.FlagCrc64, len(content)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, msg := decodeResponse[BlobResponse](t, resp)
	assert.Contains(t, msg, "segment 1 compared checksums did not match")
	assert.Equal(t, float64(1), env.metricValue(t, `smsg_integrity_failures_total{scope="segment"}`))

	blobs, err := env.store.List()
	require.NoError(t, err)
	assert.Empty(t, blobs, "corrupt uploads must not be stored")
}

func TestPutBlob_StructuredBadRequests(t *testing.T) {
	content := testContent(300)
	encoded := encodeBody(t, content, structmsg.FlagCrc64, 100)

	testCases := []struct {
		name    string
		body    []byte
		headers map[string]string
	}{
		{
			name:    "missing content length",
			body:    encoded,
			headers: map[string]string{structmsg.HeaderStructuredBody: structmsg.HeaderValue(structmsg.FlagCrc64)},
		},
		{
			name:    "content length mismatch",
			body:    encoded,
			headers: structuredHeaders(structmsg.FlagCrc64, len(content)+1),
		},
		{
			name:    "unsupported body type",
			body:    encoded,
			headers: map[string]string{structmsg.HeaderStructuredBody: "XSM/9.0", structmsg.HeaderStructuredContentLength: "300"},
		},
		{
			name:    "truncated message",
			body:    encoded[:len(encoded)-20],
			headers: structuredHeaders(structmsg.FlagCrc64, len(content)),
		},
		{
			name:    "raw bytes announced as structured",
			body:    content,
			headers: structuredHeaders(structmsg.FlagCrc64, len(content)),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestServer(t)
			resp := env.do(t, "PUT", "/api/v1/blobs", tc.body, tc.headers)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetBlob_Structured(t *testing.T) {
	env := setupTestServer(t)
	content := testContent(3000)
	info, err := env.store.Put(context.Background(), bodystream.NewMemory(content))
	require.NoError(t, err)

	resp := env.do(t, "GET", "/api/v1/blobs/"+info.ID, nil, map[string]string{
		structmsg.HeaderStructuredBody: structmsg.HeaderValue(structmsg.FlagCrc64),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, structmsg.HeaderValue(structmsg.FlagCrc64), resp.Header.Get(structmsg.HeaderStructuredBody))
	assert.Equal(t, "3000", resp.Header.Get(structmsg.HeaderStructuredContentLength))
	assert.Equal(t, structmsg.EncodedLength(3000, 1024, structmsg.FlagCrc64), resp.ContentLength)

	assert.Equal(t, content, decodeBody(t, resp))
	// recorded once the handler has finished writing
	assert.Eventually(t, func() bool {
		return env.metricValue(t, "smsg_structured_bytes_encoded_total") == 3000
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetBlob_Range(t *testing.T) {
	env := setupTestServer(t)
	content := testContent(3000)
	info, err := env.store.Put(context.Background(), bodystream.NewMemory(content))
	require.NoError(t, err)

	t.Run("raw", func(t *testing.T) {
		resp := env.do(t, "GET", "/api/v1/blobs/"+info.ID, nil, map[string]string{"Range": "bytes=1000-"})
		require.Equal(t, http.StatusPartialContent, resp.StatusCode)
		assert.Equal(t, "bytes 1000-2999/3000", resp.Header.Get("Content-Range"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, content[1000:], body)
	})

	t.Run("structured", func(t *testing.T) {
		headers := map[string]string{
			"Range":                        "bytes=2500-",
			structmsg.HeaderStructuredBody: structmsg.HeaderValue(structmsg.FlagCrc64),
		}
		resp := env.do(t, "GET", "/api/v1/blobs/"+info.ID, nil, headers)
		require.Equal(t, http.StatusPartialContent, resp.StatusCode)
		assert.Equal(t, "500", resp.Header.Get(structmsg.HeaderStructuredContentLength))
		assert.Equal(t, content[2500:], decodeBody(t, resp))
	})

	t.Run("beyond end", func(t *testing.T) {
		resp := env.do(t, "GET", "/api/v1/blobs/"+info.ID, nil, map[string]string{"Range": "bytes=3001-"})
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
		assert.Equal(t, "bytes */3000", resp.Header.Get("Content-Range"))
	})
}

func TestStatBlob(t *testing.T) {
	env := setupTestServer(t)
	content := testContent(1234)
	info, err := env.store.Put(context.Background(), bodystream.NewMemory(content))
	require.NoError(t, err)

	resp := env.do(t, "HEAD", "/api/v1/blobs/"+info.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1234), resp.ContentLength)
	assert.Equal(t, FormatCrc64(info.Crc64), resp.Header.Get(HeaderBlobCrc64))

	resp = env.do(t, "HEAD", "/api/v1/blobs/"+notFoundID(t, env), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func notFoundID(t *testing.T, env *testEnv) string {
	t.Helper()
	info, err := env.store.Put(context.Background(), bodystream.NewMemory([]byte("gone")))
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(info.ID))
	return info.ID
}

func TestGetBlob_Errors(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "GET", "/api/v1/blobs/"+notFoundID(t, env), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/blobs/not-a-valid-id", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteAndListBlobs(t *testing.T) {
	env := setupTestServer(t)

	var ids []string
	for i := 0; i < 3; i++ {
		resp := env.do(t, "PUT", "/api/v1/blobs", []byte(fmt.Sprintf("blob-%d", i)), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		blob, _ := decodeResponse[BlobResponse](t, resp)
		ids = append(ids, blob.ID)
	}

	resp := env.do(t, "GET", "/api/v1/blobs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	blobs, _ := decodeResponse[[]BlobResponse](t, resp)
	assert.Len(t, blobs, 3)

	resp = env.do(t, "DELETE", "/api/v1/blobs/"+ids[0], nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "DELETE", "/api/v1/blobs/"+ids[0], nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/blobs", nil, nil)
	blobs, _ = decodeResponse[[]BlobResponse](t, resp)
	assert.Len(t, blobs, 2)
}

func TestParseRange(t *testing.T) {
	testCases := []struct {
		header string
		offset int64
		ranged bool
		ok     bool
	}{
		{"", 0, false, true},
		{"bytes=0-", 0, true, true},
		{"bytes=100-", 100, true, true},
		{"bytes=1000-", 1000, true, true},
		{"bytes=1001-", 0, false, false},
		{"bytes=0-99", 0, false, false},
		{"bytes=-100", 0, false, false},
		{"items=0-", 0, false, false},
		{"bytes=abc-", 0, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.header, func(t *testing.T) {
			offset, ranged, err := parseRange(tc.header, 1000)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.offset, offset)
			assert.Equal(t, tc.ranged, ranged)
		})
	}
}

func TestSegmentLength(t *testing.T) {
	env := setupTestServer(t)
	assert.Equal(t, int64(1024), env.server.segmentLength(3000))

	// 100 MiB in 1 KiB segments would overflow the segment count
	length := env.server.segmentLength(100 << 20)
	assert.LessOrEqual(t, structmsg.SegmentCount(100<<20, length), int64(structmsg.MaxSegmentCount))
}
