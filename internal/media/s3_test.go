package media

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testS3(t *testing.T, endpoint string) *s3.S3 {
	t.Helper()
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String(endpoint),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials("AKID", "SECRET", ""),
	})
	require.NoError(t, err)
	return s3.New(sess)
}

func TestS3Store_PutSendsObject(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotBody  string
		gotType  string
		gotCount int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		gotCount++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewS3Store(testS3(t, srv.URL), S3Config{Bucket: "ads-bucket", Prefix: "dev"}, slog.Default())
	obj, err := store.Put(context.Background(), "ads/clip.mp4", strings.NewReader("payload"), "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, gotCount)
	assert.Equal(t, "/ads-bucket/dev/ads/clip.mp4", gotPath)
	assert.Equal(t, "payload", gotBody)
	assert.Equal(t, "video/mp4", gotType)
	assert.Equal(t, int64(7), obj.Size)
	assert.Contains(t, obj.URL, "X-Amz-Signature")
}

func TestS3Store_URLIsPresigned(t *testing.T) {
	store := NewS3Store(testS3(t, "http://s3.local"), S3Config{Bucket: "b", PresignTTL: 10 * time.Minute}, slog.Default())

	url, err := store.URL(context.Background(), "main/v.mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://s3.local/b/main/v.mp4?"))
	assert.Contains(t, url, "X-Amz-Expires=600")

	_, err = store.URL(context.Background(), "../v.mp4")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
