package datalayer_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/glizzus/chime-off/internal/datalayer"
)

func TestMemoryStorage(t *testing.T) {
	ctx := t.Context()
	storage := datalayer.NewMemoryStorage()

	if err := storage.Put(ctx, "sounds/a", strings.NewReader("abc"), datalayer.PutOptions{Size: 3}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	r, err := storage.Get(ctx, "sounds/a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	b, _ := io.ReadAll(r)
	r.Close()
	if string(b) != "abc" {
		t.Errorf("Get = %q; want %q", b, "abc")
	}

	if err := storage.Delete(ctx, "sounds/a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := storage.Get(ctx, "sounds/a"); !errors.Is(err, datalayer.ErrBlobNotFound) {
		t.Errorf("Get after Delete = %v; want ErrBlobNotFound", err)
	}
	if err := storage.Delete(ctx, "sounds/a"); !errors.Is(err, datalayer.ErrBlobNotFound) {
		t.Errorf("second Delete = %v; want ErrBlobNotFound", err)
	}
}
