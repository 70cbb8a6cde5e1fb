package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukezje16/pdfmerger/internal/security"
)

type fakeObject struct {
	data     []byte
	modified time.Time
}

// fakeS3 keeps objects in memory; uploads below the part size go through
// PutObject only.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]fakeObject{}} }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, modified: time.Now()}
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	backend := NewS3Backend(newFakeS3(), "pdfs")
	key := MergedKey("ns", "dl", "merged_20240101_000000.pdf")

	require.NoError(t, backend.Put(ctx, key, strings.NewReader("%PDF-merged")))
	assert.Error(t, backend.Put(ctx, "../x", strings.NewReader("x")))

	ok, err := backend.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	infos, err := backend.ListWithInfo(ctx, MergedRoot)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.EqualValues(t, 11, infos[0].Size)

	require.NoError(t, backend.Delete(ctx, key))
	ok, err = backend.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = backend.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMaterializeSpoolsRemoteObjects(t *testing.T) {
	ctx := context.Background()
	backend := NewS3Backend(newFakeS3(), "pdfs")
	key := UploadKey("ns", "id_a.pdf")
	require.NoError(t, backend.Put(ctx, key, strings.NewReader("%PDF-remote")))

	scratch, err := security.NewSecurePathFromExisting(t.TempDir())
	require.NoError(t, err)

	path, release, err := Materialize(ctx, backend, key, scratch)
	require.NoError(t, err)
	assert.True(t, security.IsWithin(scratch.String(), path))

	release()
	sp, _ := security.NewSecurePathFromExisting(path)
	assert.False(t, security.SafeStatExists(sp))
}

func TestMaterializeUsesLocalPath(t *testing.T) {
	ctx := context.Background()
	fsb := NewFilesystemBackend(t.TempDir())
	key := UploadKey("ns", "id_a.pdf")
	require.NoError(t, fsb.Put(ctx, key, strings.NewReader("%PDF-local")))

	path, release, err := Materialize(ctx, fsb, key, nil)
	require.NoError(t, err)
	defer release()

	want, _ := fsb.LocalPath(key)
	assert.Equal(t, want, path)
}

func TestPutFile(t *testing.T) {
	ctx := context.Background()
	backend := NewS3Backend(newFakeS3(), "pdfs")
	dir, _ := security.NewSecurePathFromExisting(t.TempDir())
	src, _ := dir.Join("out.pdf")
	f, err := security.SafeCreate(src)
	require.NoError(t, err)
	f.WriteString("%PDF-out")
	f.Close()

	require.NoError(t, PutFile(ctx, backend, src.String(), "merged/ns/x.pdf"))
	info, err := backend.GetInfo(ctx, "merged/ns/x.pdf")
	require.NoError(t, err)
	assert.EqualValues(t, 8, info.Size)
}
