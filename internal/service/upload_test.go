package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	got string
	err error
}

func (f *fakeUploader) Upload(_ context.Context, file io.Reader, filename string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	body, _ := io.ReadAll(file)
	f.got = string(body)
	return "https://res.example/" + filename, nil
}

func TestUploadService_UploadImage(t *testing.T) {
	ctx := context.Background()
	seller := uuid.New()
	uploader := &fakeUploader{}
	svc := NewUploadService(uploader)

	url, err := svc.UploadImage(ctx, seller, strings.NewReader("png-bytes"), "lamp.PNG", 9)
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/lamp.PNG", url)
	assert.Equal(t, "png-bytes", uploader.got)

	tests := []struct {
		name     string
		filename string
		size     int64
	}{
		{"wrong extension", "notes.txt", 10},
		{"empty file", "lamp.png", 0},
		{"too large", "lamp.png", MaxUploadSize + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadImage(ctx, seller, strings.NewReader("x"), tt.filename, tt.size)
			assert.ErrorIs(t, err, ErrInvalidUpload)
		})
	}

	_, err = svc.UploadImage(ctx, uuid.Nil, strings.NewReader("x"), "a.png", 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = NewUploadService(nil).UploadImage(ctx, seller, strings.NewReader("x"), "a.png", 1)
	assert.ErrorIs(t, err, ErrInvalidUpload)

	boom := errors.New("host down")
	_, err = NewUploadService(&fakeUploader{err: boom}).UploadImage(ctx, seller, strings.NewReader("x"), "a.png", 1)
	assert.ErrorIs(t, err, boom)
}
