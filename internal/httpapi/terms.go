package httpapi

import (
	"context"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/joelkehle/safe-negotiator/internal/extract"
	"github.com/joelkehle/safe-negotiator/internal/safe"
	"github.com/joelkehle/safe-negotiator/internal/termstore"
)

// resolveTerms returns the override when the request carried one and the
// store's current terms otherwise, with the version number they came from.
func (s *Server) resolveTerms(ctx context.Context, override *safe.Terms) (safe.Terms, int, error) {
	if override != nil {
		return *override, 0, nil
	}
	v, err := s.store.Current(ctx)
	if err != nil {
		return safe.Terms{}, 0, err
	}
	return v.Terms, v.Number, nil
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		v, err := s.store.Current(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": v})
	case http.MethodPut:
		var req struct {
			Terms *safe.Terms `json:"terms"`
			Note  string      `json:"note"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Terms == nil {
			writeError(w, invalidQuery("terms are required"))
			return
		}
		v, err := s.store.Update(r.Context(), *req.Terms, termstore.SourceManual, strings.TrimSpace(req.Note))
		if err != nil {
			writeError(w, err)
			return
		}
		log.Printf("terms updated version=%d source=%s", v.Number, v.Source)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": v})
	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTermsHistory(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("version")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, invalidQuery("version must be an integer, got %q", raw))
			return
		}
		v, err := s.store.Version(r.Context(), n)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": v})
		return
	}
	versions, err := s.store.History(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "versions": versions})
}

type extractRequest struct {
	Text  string `json:"text"`
	Mode  string `json:"mode"`
	Apply bool   `json:"apply"`
	Note  string `json:"note"`
}

// handleExtract accepts either JSON {text} or a multipart upload with a
// "document" file (PDF or text). With apply set the extracted terms become
// the new current version.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	req, doc, err := s.readExtractRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	var ex extract.Extraction
	if strings.EqualFold(req.Mode, "llm") && s.extractor != nil {
		ex, err = s.extractor.Extract(r.Context(), doc.Text)
		if err != nil {
			if r.Context().Err() != nil {
				writeError(w, err)
				return
			}
			log.Printf("extract llm fallback err=%v", err)
		}
	} else {
		ex = extract.ParseTerms(doc.Text)
	}

	payload := map[string]any{
		"ok":              true,
		"extraction":      ex,
		"document_method": doc.Method,
		"truncated":       doc.Truncated,
	}
	if req.Apply || queryBool(r, "apply") {
		note := strings.TrimSpace(req.Note)
		if note == "" {
			note = "extracted via " + ex.Method
		}
		v, err := s.store.Update(r.Context(), ex.Terms, termstore.SourceExtracted, note)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Printf("terms updated version=%d source=%s", v.Number, v.Source)
		payload["version"] = v
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) readExtractRequest(w http.ResponseWriter, r *http.Request) (extractRequest, extract.DocumentText, error) {
	var req extractRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, extract.MaxDocumentBytes+1<<20)
		if err := r.ParseMultipartForm(extract.MaxDocumentBytes); err != nil {
			return req, extract.DocumentText{}, invalidQuery("invalid multipart form: %v", err)
		}
		req.Mode = r.FormValue("mode")
		req.Note = r.FormValue("note")
		req.Apply, _ = strconv.ParseBool(r.FormValue("apply"))
		file, _, err := r.FormFile("document")
		if err != nil {
			if text := strings.TrimSpace(r.FormValue("text")); text != "" {
				return req, extract.DocumentText{Text: text, Method: "plain-text"}, nil
			}
			return req, extract.DocumentText{}, invalidQuery("document file or text is required")
		}
		defer file.Close()
		blob, err := io.ReadAll(file)
		if err != nil {
			return req, extract.DocumentText{}, invalidQuery("read document: %v", err)
		}
		doc, err := extract.DocumentFromBytes(r.Context(), blob)
		if err != nil {
			return req, extract.DocumentText{}, invalidQuery("%v", err)
		}
		return req, doc, nil
	}

	if err := decodeBody(r, &req); err != nil {
		return req, extract.DocumentText{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return req, extract.DocumentText{}, invalidQuery("text is required")
	}
	doc, err := extract.DocumentFromBytes(r.Context(), []byte(req.Text))
	if err != nil {
		return req, extract.DocumentText{}, invalidQuery("%v", err)
	}
	return req, doc, nil
}
