package filestore

import (
	"bytes"
	"context"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
)

type s3Mock struct {
	s3iface.S3API
	objects map[string][]byte
	deleted []string
}

func (m *s3Mock) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	b, ok := m.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(b))}, nil
}

func (m *s3Mock) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	m.deleted = append(m.deleted, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	mock := &s3Mock{objects: map[string][]byte{"medias/u1/agreement.pdf": []byte("%PDF")}}
	store := newS3Store(mock, "medias")

	rc, err := store.Get(ctx, "medias/u1/agreement.pdf")
	require.NoError(t, err)
	b, _ := ioutil.ReadAll(rc)
	assert.Equal(t, []byte("%PDF"), b)

	_, err = store.Get(ctx, "medias/u2/missing.pdf")
	assert.Equal(t, media.ErrNotFound, err)

	require.NoError(t, store.Delete(ctx, "medias/u1/agreement.pdf"))
	assert.Equal(t, []string{"medias/u1/agreement.pdf"}, mock.deleted)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "medias/u1/a.txt", strings.NewReader("hello"), 5, "text/plain"))
	assert.True(t, store.Has("medias/u1/a.txt"))

	rc, err := store.Get(ctx, "medias/u1/a.txt")
	require.NoError(t, err)
	b, _ := ioutil.ReadAll(rc)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, store.Delete(ctx, "medias/u1/a.txt"))
	_, err = store.Get(ctx, "medias/u1/a.txt")
	assert.Equal(t, media.ErrNotFound, err)
}

func TestNew(t *testing.T) {
	tests := []struct {
		driver  string
		want    interface{}
		wantErr bool
	}{
		{driver: "", want: &MemoryStore{}},
		{driver: "memory", want: &MemoryStore{}},
		{driver: "ftp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			store, err := New(core.StorageConfig{Driver: tt.driver})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}
}
