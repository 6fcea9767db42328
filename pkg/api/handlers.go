package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/storage"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

// Response headers carrying blob metadata
const (
	HeaderBlobCrc64   = "X-Blob-Crc64"
	HeaderBlobCreated = "X-Blob-Created"
)

// Server holds the API server state
type Server struct {
	store   IBlobStore
	config  ServerConfig
	metrics *Metrics
	logger  zerolog.Logger
}

// NewServer creates a new API server
func NewServer(store IBlobStore, config ServerConfig, metrics *Metrics, logger zerolog.Logger) *Server {
	if config.MaxSegmentLength <= 0 {
		config.MaxSegmentLength = structmsg.DefaultMaxSegmentLength
	}
	return &Server{
		store:   store,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handlePutBlob stores the request body. A body announced as a structured
// message is decoded and verified first; nothing is stored when verification
// fails.
func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.ContentLength < 0 {
		s.metrics.RecordBlobOperation("put", false, time.Since(start))
		sendError(w, "Content-Length is required", http.StatusLengthRequired)
		return
	}

	var body bodystream.BodyStream = bodystream.NewReaderStream(r.Body, r.ContentLength)
	headerValue := r.Header.Get(structmsg.HeaderStructuredBody)
	structured := headerValue != ""
	var dec *structmsg.DecodingStream

	if structured {
		if _, err := structmsg.ParseHeaderValue(headerValue); err != nil {
			s.metrics.RecordBlobOperation("put", false, time.Since(start))
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		contentLength, err := strconv.ParseInt(r.Header.Get(structmsg.HeaderStructuredContentLength), 10, 64)
		if err != nil || contentLength < 0 {
			s.metrics.RecordBlobOperation("put", false, time.Since(start))
			sendError(w, fmt.Sprintf("%s header is required for structured bodies", structmsg.HeaderStructuredContentLength), http.StatusBadRequest)
			return
		}
		dec = structmsg.NewDecodingStream(body, structmsg.DecodingOptions{ContentLength: contentLength})
		body = dec
	}

	content, err := bodystream.ReadToEnd(r.Context(), body)
	if err != nil {
		s.metrics.RecordBlobOperation("put", false, time.Since(start))
		s.sendDecodeError(w, err)
		return
	}

	if structured {
		if int64(len(content)) != dec.Length() {
			s.metrics.RecordBlobOperation("put", false, time.Since(start))
			sendError(w, fmt.Sprintf("structured body carried %d bytes, %s announced %d",
				len(content), structmsg.HeaderStructuredContentLength, dec.Length()), http.StatusBadRequest)
			return
		}
		s.metrics.RecordBytesDecoded(int64(len(content)))
	}

	info, err := s.store.Put(r.Context(), bodystream.NewMemory(content))
	s.metrics.RecordBlobOperation("put", err == nil, time.Since(start))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to store blob")
		sendError(w, "Failed to store blob", http.StatusInternalServerError)
		return
	}

	if structured {
		w.Header().Set(structmsg.HeaderStructuredBody, headerValue)
	}
	s.logger.Info().Str("id", info.ID).Int64("length", info.Length).Bool("structured", structured).Msg("blob stored")
	sendSuccess(w, toBlobResponse(info))
}

// sendDecodeError maps failures while reading a request body to a status
func (s *Server) sendDecodeError(w http.ResponseWriter, err error) {
	var integrityErr *structmsg.IntegrityError
	switch {
	case errors.As(err, &integrityErr):
		s.metrics.RecordIntegrityFailure(string(integrityErr.Scope))
		s.logger.Warn().Err(err).Msg("structured body failed verification")
		sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, structmsg.ErrMalformedMessage),
		errors.Is(err, structmsg.ErrUnsupportedVersion),
		errors.Is(err, structmsg.ErrUnsupportedFlags),
		errors.Is(err, io.ErrUnexpectedEOF):
		sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error().Err(err).Msg("failed to read request body")
		sendError(w, "Failed to read request body", http.StatusInternalServerError)
	}
}

// handleGetBlob streams a blob, framed as a structured message when the
// request carries x-ms-structured-body. "Range: bytes=N-" serves the content
// from offset N.
func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	stream, info, err := s.store.Open(id)
	if err != nil {
		s.metrics.RecordBlobOperation("get", errors.Is(err, storage.ErrBlobNotFound), time.Since(start))
		sendStoreError(w, err)
		return
	}
	s.metrics.RecordBlobOperation("get", true, time.Since(start))

	offset, ranged, err := parseRange(r.Header.Get("Range"), info.Length)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.Length))
		sendError(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}
	var content bodystream.BodyStream = stream
	if ranged {
		content = bodystream.NewMemory(stream.Bytes()[offset:])
	}

	setBlobHeaders(w, info)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Accept-Ranges", "bytes")
	status := http.StatusOK
	if ranged {
		if offset < info.Length {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, info.Length-1, info.Length))
		}
		status = http.StatusPartialContent
	}

	body := content
	requested := r.Header.Get(structmsg.HeaderStructuredBody)
	if requested != "" {
		flags, err := structmsg.ParseHeaderValue(requested)
		if err != nil {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		enc, err := structmsg.NewEncodingStream(content, structmsg.EncodingOptions{
			MaxSegmentLength: s.segmentLength(content.Length()),
			Flags:            flags,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("id", id).Msg("failed to frame blob")
			sendError(w, "Failed to encode blob", http.StatusInternalServerError)
			return
		}
		w.Header().Set(structmsg.HeaderStructuredBody, structmsg.HeaderValue(flags))
		w.Header().Set(structmsg.HeaderStructuredContentLength, strconv.FormatInt(content.Length(), 10))
		body = enc
	}

	w.Header().Set("Content-Length", strconv.FormatInt(body.Length(), 10))
	w.WriteHeader(status)

	if _, err := io.Copy(w, bodystream.NewReader(r.Context(), body)); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("blob response interrupted")
		return
	}
	if requested != "" {
		s.metrics.RecordBytesEncoded(content.Length())
	}
}

// segmentLength keeps the segment count within the 16-bit header field
func (s *Server) segmentLength(contentLength int64) int64 {
	minimum := (contentLength + structmsg.MaxSegmentCount - 1) / structmsg.MaxSegmentCount
	return max(s.config.MaxSegmentLength, minimum)
}

func (s *Server) handleStatBlob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	info, err := s.store.Stat(chi.URLParam(r, "id"))
	s.metrics.RecordBlobOperation("stat", err == nil || errors.Is(err, storage.ErrBlobNotFound), time.Since(start))
	if err != nil {
		w.WriteHeader(storeErrorStatus(err))
		return
	}

	setBlobHeaders(w, info)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Length, 10))
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	err := s.store.Delete(id)
	s.metrics.RecordBlobOperation("delete", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, err)
		return
	}

	s.logger.Info().Str("id", id).Msg("blob deleted")
	sendSuccess(w, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	blobs, err := s.store.List()
	s.metrics.RecordBlobOperation("list", err == nil, time.Since(start))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list blobs")
		sendError(w, "Failed to list blobs", http.StatusInternalServerError)
		return
	}

	response := make([]BlobResponse, 0, len(blobs))
	for _, b := range blobs {
		response = append(response, toBlobResponse(b))
	}
	sendSuccess(w, response)
}

func toBlobResponse(info storage.BlobInfo) BlobResponse {
	return BlobResponse{
		ID:      info.ID,
		Length:  info.Length,
		Crc64:   FormatCrc64(info.Crc64),
		Created: info.Created,
	}
}

// FormatCrc64 renders a checksum the way the API reports it
func FormatCrc64(crc uint64) string {
	return fmt.Sprintf("%016x", crc)
}

func setBlobHeaders(w http.ResponseWriter, info storage.BlobInfo) {
	w.Header().Set(HeaderBlobCrc64, FormatCrc64(info.Crc64))
	w.Header().Set(HeaderBlobCreated, info.Created.Format(time.RFC3339))
}

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func sendStoreError(w http.ResponseWriter, err error) {
	status := storeErrorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Blob store failure"
	}
	sendError(w, message, status)
}

// parseRange accepts the open-ended "bytes=N-" form; anything else is unsatisfiable
func parseRange(header string, length int64) (int64, bool, error) {
	if header == "" {
		return 0, false, nil
	}
	byteRange, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, false, fmt.Errorf("unsupported range unit in %q", header)
	}
	start, ok := strings.CutSuffix(strings.TrimSpace(byteRange), "-")
	if !ok || strings.Contains(start, "-") || strings.Contains(start, ",") {
		return 0, false, fmt.Errorf("only open-ended ranges are supported, got %q", header)
	}
	offset, err := strconv.ParseInt(start, 10, 64)
	if err != nil || offset < 0 {
		return 0, false, fmt.Errorf("invalid range start in %q", header)
	}
	if offset > length {
		return 0, false, fmt.Errorf("range start %d beyond blob length %d", offset, length)
	}
	return offset, true, nil
}
