package echo

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// UploadResult is the /upload response body
type UploadResult struct {
	Size int64 `json:"size"`
}

// handleUpload streams the first file part to io.Discard and reports its size.
// A part counts as the file when it is named "file" or carries a filename.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	defer drain(r)

	mr, err := r.MultipartReader()
	if err != nil {
		s.reject(w, http.StatusBadRequest, "not_multipart", &ProtocolError{Reason: "request is not multipart: " + err.Error()})
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.reject(w, http.StatusBadRequest, "no_file_part", &ProtocolError{Reason: `no "file" part in upload`})
			return
		}
		if err != nil {
			s.uploadFailed(w, err)
			return
		}

		if part.FormName() != "file" && part.FileName() == "" {
			part.Close()
			continue
		}

		n, err := io.Copy(io.Discard, part)
		part.Close()
		if err != nil {
			s.uploadFailed(w, err)
			return
		}

		// Read the rest of the body before responding so the connection
		// can be reused
		drain(r)

		s.metrics.Uploads.Inc()
		s.metrics.BytesUploaded.Add(float64(n))
		s.logger.Debug("upload received", zap.Int64("bytes", n))
		writeJSON(w, http.StatusOK, UploadResult{Size: n})
		return
	}
}

func (s *Server) uploadFailed(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.reject(w, http.StatusRequestEntityTooLarge, "too_large", &ProtocolError{Reason: "upload exceeds size limit"})
		return
	}
	s.reject(w, http.StatusBadRequest, "malformed_upload", &ProtocolError{Reason: err.Error()})
}

func drain(r *http.Request) {
	io.Copy(io.Discard, r.Body)
}
