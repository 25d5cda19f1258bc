package artifactstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/config"
)

// fakeS3 serves the path-style object API for one bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		f.puts++
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		_, _ = w.Write(body)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) object(key string) ([]byte, string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], f.types[key], f.puts
}

func newS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		HTTPClient:   srv.Client(),
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		}),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewS3StoreWithClient(client, "arts", "sdlc/"), fake
}

func TestKey(t *testing.T) {
	require.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Key(nil))

	_, err := parseKey("md5:abc")
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = parseKey("sha256:zz")
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = parseKey("sha256:" + strings.Repeat("g", 64))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestKey_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(rt, "data")
		key := Key(data)
		if _, err := parseKey(key); err != nil {
			rt.Fatalf("key %q does not parse: %v", key, err)
		}
		if Key(append([]byte(nil), data...)) != key {
			rt.Fatalf("key not stable")
		}
	})
}

func TestFSStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewFSStore(fs, "/data/artifacts")
	require.NoError(t, err)
	ctx := t.Context()

	key, err := s.Put(ctx, []byte(`{"id":"EPIC-1"}`), "application/json")
	require.NoError(t, err)
	require.Equal(t, Key([]byte(`{"id":"EPIC-1"}`)), key)

	again, err := s.Put(ctx, []byte(`{"id":"EPIC-1"}`), "application/json")
	require.NoError(t, err)
	require.Equal(t, key, again)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, `{"id":"EPIC-1"}`, string(got))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	files, err := afero.ReadDir(fs, "/data/artifacts")
	require.NoError(t, err)
	require.Len(t, files, 1, "no temp files left behind")

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting twice is fine")
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewFSStore(fs, "")
	require.Error(t, err)
}

func TestS3Store(t *testing.T) {
	s, fake := newS3Store(t)
	ctx := t.Context()
	data := []byte("# Report\n")

	key, err := s.Put(ctx, data, "text/markdown; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, Key(data), key)

	digest, _ := parseKey(key)
	objectKey := "arts/sdlc/" + digest + ".blob"
	stored, contentType, _ := fake.object(objectKey)
	require.Equal(t, data, stored)
	require.Equal(t, "text/markdown; charset=utf-8", contentType)

	_, err = s.Put(ctx, data, "text/markdown; charset=utf-8")
	require.NoError(t, err)
	_, _, puts := fake.object(objectKey)
	require.Equal(t, 1, puts, "existing blobs are not uploaded again")

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, data, got)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSave(t *testing.T) {
	s, err := NewFSStore(afero.NewMemMapFs(), "/blobs")
	require.NoError(t, err)

	key, err := Save(t.Context(), s, &artifacts.Artifact{
		Type:        artifacts.TypeEpic,
		ContentType: artifacts.ContentJSON,
		Content:     map[string]any{"id": "EPIC-1"},
	})
	require.NoError(t, err)
	got, err := s.Get(t.Context(), key)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"EPIC-1"}`, string(got))

	data, mime, err := Encode(&artifacts.Artifact{ContentType: artifacts.ContentTypeScript, Content: "test('x')"})
	require.NoError(t, err)
	require.Equal(t, "test('x')", string(data))
	require.Equal(t, "text/typescript; charset=utf-8", mime)
}

func TestNew(t *testing.T) {
	s, err := New(t.Context(), config.ArtifactsConfig{Backend: "fs", Dir: "/blobs"}, afero.NewMemMapFs())
	require.NoError(t, err)
	require.IsType(t, &FSStore{}, s)

	_, err = New(t.Context(), config.ArtifactsConfig{Backend: "gcs"}, afero.NewMemMapFs())
	require.Error(t, err)

	_, err = New(t.Context(), config.ArtifactsConfig{Backend: "s3"}, afero.NewMemMapFs())
	require.ErrorContains(t, err, "bucket")
}
