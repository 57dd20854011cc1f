package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rendezvous/rendezvous/internal/platform/auth"
)

// wavClip is a minimal RIFF/WAVE header followed by a few samples.
var wavClip = append([]byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x40\x1f\x00\x00\x80\x3e\x00\x00\x02\x00\x10\x00data\x00\x00\x00\x00"), 1, 2, 3, 4)

func testLimits() Limits {
	return DefaultLimits(1024)
}

func seedBlob(t *testing.T, store BlobStore, owner string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{Owner: owner, FileName: "note.wav", ContentType: "audio/wav"}
	result, err := store.Upload(context.Background(), meta, bytes.NewReader(wavClip))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore(testLimits())

	result := seedBlob(t, store, "alice")

	if result.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if result.Owner != "alice" {
		t.Errorf("expected Owner=alice, got %s", result.Owner)
	}
	if result.ContentType != "audio/wav" {
		t.Errorf("expected ContentType=audio/wav, got %s", result.ContentType)
	}
	if result.Size != int64(len(wavClip)) {
		t.Errorf("expected Size=%d, got %d", len(wavClip), result.Size)
	}
	sum := sha256.Sum256(wavClip)
	if result.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("unexpected checksum %s", result.Checksum)
	}
	if result.CreatedAt.IsZero() {
		t.Error("expected non-zero CreatedAt")
	}
}

func TestInMemoryBlobStore_Upload_SniffsGenericType(t *testing.T) {
	store := NewInMemoryBlobStore(testLimits())

	for _, declared := range []string{"", "application/octet-stream"} {
		meta := BlobMetadata{Owner: "alice", FileName: "rec", ContentType: declared}
		result, err := store.Upload(context.Background(), meta, bytes.NewReader(wavClip))
		if err != nil {
			t.Fatalf("declared %q: unexpected error: %v", declared, err)
		}
		if !strings.HasPrefix(result.ContentType, "audio/") {
			t.Errorf("declared %q: expected sniffed audio type, got %s", declared, result.ContentType)
		}
	}
}

func TestInMemoryBlobStore_Upload_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		meta    BlobMetadata
		content []byte
		want    error
	}{
		{"too large", BlobMetadata{Owner: "alice", ContentType: "audio/wav"}, bytes.Repeat([]byte("a"), 1025), ErrFileTooLarge},
		{"empty", BlobMetadata{Owner: "alice", ContentType: "audio/wav"}, nil, ErrEmptyFile},
		{"no owner", BlobMetadata{ContentType: "audio/wav"}, wavClip, ErrMissingOwner},
		{"declared pdf", BlobMetadata{Owner: "alice", ContentType: "application/pdf"}, wavClip, ErrInvalidContentType},
		{"sniffed text", BlobMetadata{Owner: "alice"}, []byte("just some text"), ErrInvalidContentType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryBlobStore(testLimits())
			_, err := store.Upload(context.Background(), tt.meta, bytes.NewReader(tt.content))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestInMemoryBlobStore_Upload_ContentTypeParams(t *testing.T) {
	store := NewInMemoryBlobStore(testLimits())
	meta := BlobMetadata{Owner: "alice", ContentType: "Audio/Ogg; codecs=opus"}
	result, err := store.Upload(context.Background(), meta, bytes.NewReader(wavClip))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != "audio/ogg" {
		t.Errorf("expected audio/ogg, got %s", result.ContentType)
	}
}

func TestInMemoryBlobStore_DownloadAndDelete(t *testing.T) {
	store := NewInMemoryBlobStore(testLimits())
	seeded := seedBlob(t, store, "alice")

	rc, meta, err := store.Download(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, wavClip) {
		t.Error("downloaded content differs from upload")
	}
	if meta.ID != seeded.ID {
		t.Errorf("expected ID %s, got %s", seeded.ID, meta.ID)
	}

	if err := store.Delete(context.Background(), seeded.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), seeded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), seeded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
	if _, _, err := store.Download(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_ListByOwner(t *testing.T) {
	store := NewInMemoryBlobStore(testLimits())
	for i := 0; i < 3; i++ {
		seedBlob(t, store, "alice")
	}
	seedBlob(t, store, "bob")

	items, total, err := store.ListByOwner(context.Background(), "alice", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total=3, got %d", total)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
	for _, m := range items {
		if m.Owner != "alice" {
			t.Errorf("unexpected owner %s", m.Owner)
		}
	}

	items, _, _ = store.ListByOwner(context.Background(), "alice", 2, 10)
	if len(items) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(items))
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore(testLimits())
	var wg sync.WaitGroup
	const goroutines = 50

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			meta := BlobMetadata{Owner: "carol", FileName: fmt.Sprintf("note-%d.wav", n), ContentType: "audio/wav"}
			result, err := store.Upload(context.Background(), meta, bytes.NewReader(wavClip))
			if err != nil {
				t.Errorf("upload goroutine %d: %v", n, err)
				return
			}
			rc, _, err := store.Download(context.Background(), result.ID)
			if err != nil {
				t.Errorf("download goroutine %d: %v", n, err)
				return
			}
			rc.Close()
		}(i)
	}
	wg.Wait()

	_, total, err := store.ListByOwner(context.Background(), "carol", 100, 0)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if total != goroutines {
		t.Errorf("expected total=%d, got %d", goroutines, total)
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func newTestServer() (*InMemoryBlobStore, *echo.Echo) {
	store := NewInMemoryBlobStore(testLimits())
	handler := NewBlobHandler(store, zerolog.Nop())
	e := echo.New()
	g := e.Group("", auth.DevAuthMiddleware(auth.JWTConfig{}))
	handler.RegisterRoutes(g)
	return store, e
}

func uploadRequest(t *testing.T, user, contentType string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="voice.wav"`)
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	if user != "" {
		req.Header.Set(auth.DevUserHeader, user)
	}
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBlobHandler_Upload(t *testing.T) {
	_, e := newTestServer()

	rec := serve(e, uploadRequest(t, "alice", "audio/wav", wavClip))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var result BlobMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("error unmarshaling response: %v", err)
	}
	if result.ID == "" {
		t.Error("expected non-empty ID in response")
	}
	if result.Owner != "alice" {
		t.Errorf("expected owner stamped from caller, got %s", result.Owner)
	}
	if result.FileName != "voice.wav" {
		t.Errorf("expected FileName=voice.wav, got %s", result.FileName)
	}
}

func TestBlobHandler_UploadErrors(t *testing.T) {
	_, e := newTestServer()

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"anonymous", uploadRequest(t, "", "audio/wav", wavClip), http.StatusUnauthorized},
		{"not audio", uploadRequest(t, "alice", "application/pdf", wavClip), http.StatusUnsupportedMediaType},
		{"too large", uploadRequest(t, "alice", "audio/wav", bytes.Repeat([]byte("a"), 2048)), http.StatusRequestEntityTooLarge},
		{"empty", uploadRequest(t, "alice", "audio/wav", nil), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, tt.req)
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/attachments", strings.NewReader(""))
	req.Header.Set(auth.DevUserHeader, "alice")
	if rec := serve(e, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a file, got %d", rec.Code)
	}
}

func TestBlobHandler_DownloadByOtherParty(t *testing.T) {
	store, e := newTestServer()
	seeded := seedBlob(t, store, "alice")

	req := httptest.NewRequest(http.MethodGet, "/attachments/"+seeded.ID, nil)
	req.Header.Set(auth.DevUserHeader, "bob")
	rec := serve(e, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "audio/wav" {
		t.Errorf("expected audio/wav, got %s", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "note.wav") {
		t.Errorf("unexpected Content-Disposition %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if !bytes.Equal(rec.Body.Bytes(), wavClip) {
		t.Error("downloaded body differs from upload")
	}
}

func TestBlobHandler_GetMetadata(t *testing.T) {
	store, e := newTestServer()
	seeded := seedBlob(t, store, "alice")

	req := httptest.NewRequest(http.MethodGet, "/attachments/"+seeded.ID+"/meta", nil)
	req.Header.Set(auth.DevUserHeader, "alice")
	rec := serve(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Checksum != seeded.Checksum {
		t.Errorf("expected checksum %s, got %s", seeded.Checksum, meta.Checksum)
	}

	for _, id := range []string{"not-a-uuid", "7b7c1b5e-3c1a-4f0e-9f57-2b0b0e6a1d11"} {
		req := httptest.NewRequest(http.MethodGet, "/attachments/"+id+"/meta", nil)
		req.Header.Set(auth.DevUserHeader, "alice")
		if rec := serve(e, req); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", id, rec.Code)
		}
	}
}

func TestBlobHandler_DeleteOwnerOnly(t *testing.T) {
	store, e := newTestServer()
	seeded := seedBlob(t, store, "alice")

	req := httptest.NewRequest(http.MethodDelete, "/attachments/"+seeded.ID, nil)
	req.Header.Set(auth.DevUserHeader, "bob")
	if rec := serve(e, req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/attachments/"+seeded.ID, nil)
	req.Header.Set(auth.DevUserHeader, "alice")
	if rec := serve(e, req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for owner, got %d", rec.Code)
	}

	if _, err := store.GetMetadata(context.Background(), seeded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected blob removed, got %v", err)
	}
}

func TestBlobHandler_ListOwn(t *testing.T) {
	store, e := newTestServer()
	seedBlob(t, store, "alice")
	seedBlob(t, store, "alice")
	seedBlob(t, store, "bob")

	req := httptest.NewRequest(http.MethodGet, "/attachments?limit=1", nil)
	req.Header.Set(auth.DevUserHeader, "alice")
	rec := serve(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data    []BlobMetadata `json:"data"`
		Total   int            `json:"total"`
		HasMore bool           `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || !resp.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", resp.Total, len(resp.Data), resp.HasMore)
	}
}
