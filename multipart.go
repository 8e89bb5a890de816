// multipart.go
// -------------
// Multipart payload construction for requests carrying file attachments.
// The builder enforces the per-file and aggregate size ceilings before any
// network activity and guarantees every file handle it opens is closed before
// it returns, success or failure.
package relaykit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// buildMultipart assembles a multipart/form-data body from files plus an
// optional JSON payload attached as a payload_json field. With no files it is
// a pass-through: the payload is serialized as a plain JSON body.
//
// Size rules: each file and the running total must stay within maxFileSize.
// Path attachments are stat-checked before opening; stream attachments are
// size-checked best-effort via Seek without disturbing the read position.
func buildMultipart(files []FileAttachment, payload any, maxFileSize int64, allowedExts []string, logger *slog.Logger) (body []byte, contentType string, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(files) == 0 {
		if payload == nil {
			return nil, "", nil
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", &Failure{
				Kind:       KindBadRequest,
				Message:    fmt.Sprintf("payload is not JSON-serializable: %v", err),
				Suggestion: "verify the request payload contains only JSON-compatible values",
				Cause:      err,
			}
		}
		return data, "application/json", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	var opened []*os.File
	defer func() {
		for _, fh := range opened {
			fh.Close()
		}
	}()

	var total int64
	for i, file := range files {
		key := fmt.Sprintf("file[%d]", i)

		switch {
		case file.Path != "":
			info, statErr := os.Stat(file.Path)
			if statErr != nil {
				return nil, "", &Failure{
					Kind:       KindBadRequest,
					Message:    fmt.Sprintf("file not found: %s", file.Path),
					Suggestion: "verify the file path exists and is readable",
					Cause:      statErr,
				}
			}
			if info.Size() > maxFileSize {
				return nil, "", oversizeFailure(file.Path, info.Size(), maxFileSize)
			}
			total += info.Size()
			if total > maxFileSize {
				return nil, "", aggregateOversizeFailure(total, maxFileSize)
			}

			ext := strings.ToLower(filepath.Ext(file.Path))
			if len(allowedExts) > 0 && !slices.Contains(allowedExts, ext) {
				logger.Debug("attachment has unrecognized extension", "file", file.Path, "ext", ext)
			}

			fh, openErr := os.Open(file.Path)
			if openErr != nil {
				return nil, "", &Failure{
					Kind:       KindBadRequest,
					Message:    fmt.Sprintf("cannot open file: %s", file.Path),
					Suggestion: "verify the file is readable by this process",
					Cause:      openErr,
				}
			}
			opened = append(opened, fh)

			name := file.Name
			if name == "" {
				name = filepath.Base(file.Path)
			}
			part, _ := writer.CreateFormFile(key, name)
			if _, copyErr := io.Copy(part, fh); copyErr != nil {
				return nil, "", &Failure{
					Kind:       KindBadRequest,
					Message:    fmt.Sprintf("reading file %s failed: %v", file.Path, copyErr),
					Suggestion: "verify the file is readable and not truncated mid-read",
					Cause:      copyErr,
				}
			}

		case file.Reader != nil:
			name := file.Name
			if name == "" {
				name = fmt.Sprintf("upload_%d", i)
			}

			// Best-effort size check: only explicit violations are fatal,
			// a non-seekable stream just skips the check.
			if seeker, ok := file.Reader.(io.Seeker); ok {
				if size, seekErr := streamSize(seeker); seekErr == nil {
					if size > maxFileSize {
						return nil, "", oversizeFailure(name, size, maxFileSize)
					}
					total += size
					if total > maxFileSize {
						return nil, "", aggregateOversizeFailure(total, maxFileSize)
					}
				}
			}

			part, _ := writer.CreateFormFile(key, name)
			if _, copyErr := io.Copy(part, file.Reader); copyErr != nil {
				return nil, "", &Failure{
					Kind:       KindBadRequest,
					Message:    fmt.Sprintf("reading stream %s failed: %v", name, copyErr),
					Suggestion: "verify the attachment stream is readable",
					Cause:      copyErr,
				}
			}

		default:
			return nil, "", &Failure{
				Kind:       KindBadRequest,
				Message:    fmt.Sprintf("attachment %d has neither path nor reader", i),
				Suggestion: "set either Path or Reader on every attachment",
			}
		}
	}

	if payload != nil {
		data, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, "", &Failure{
				Kind:       KindBadRequest,
				Message:    fmt.Sprintf("payload is not JSON-serializable: %v", marshalErr),
				Suggestion: "verify the request payload contains only JSON-compatible values",
				Cause:      marshalErr,
			}
		}
		if s := string(data); s != "null" && s != "{}" {
			if fieldErr := writer.WriteField("payload_json", s); fieldErr != nil {
				return nil, "", fieldErr
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// streamSize determines the total size of a seekable stream and restores the
// current read position.
func streamSize(s io.Seeker) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

func oversizeFailure(name string, size, limit int64) *Failure {
	return &Failure{
		Kind:       KindPayloadTooLarge,
		Message:    fmt.Sprintf("file %s is %d bytes, exceeding the %d byte limit", name, size, limit),
		Suggestion: fmt.Sprintf("reduce the file below %d bytes or raise the configured ceiling", limit),
		Context:    map[string]any{"size": size, "limit": limit},
	}
}

func aggregateOversizeFailure(total, limit int64) *Failure {
	return &Failure{
		Kind:       KindPayloadTooLarge,
		Message:    fmt.Sprintf("total attachment size %d bytes exceeds the %d byte limit", total, limit),
		Suggestion: fmt.Sprintf("send fewer or smaller files so the total stays below %d bytes", limit),
		Context:    map[string]any{"size": total, "limit": limit},
	}
}
