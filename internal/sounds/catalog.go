// Package sounds lists, stores and opens the sounds a chime can play.
//
// Built-in sounds are described by an embedded sounds.json and read from a
// directory on disk. Uploaded sounds keep their metadata in the settings
// store under the customSounds key and their data in blob storage.
package sounds

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/glizzus/chime-off/internal/datalayer"
	"github.com/glizzus/chime-off/internal/generator"
	"github.com/glizzus/chime-off/internal/repository"
	"github.com/glizzus/chime-off/internal/settings"
	"github.com/glizzus/chime-off/internal/util"
)

// DefaultMaxUploadBytes matches the limit of the original extension.
const DefaultMaxUploadBytes = 1 << 20

const blobPrefix = "sounds"

//go:embed sounds.json
var builtinJSON []byte

type Sound struct {
	ID          string `json:"value"`
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Custom reports whether the sound was uploaded by the user.
func (s Sound) Custom() bool {
	return strings.HasPrefix(s.ID, generator.CustomSoundPrefix)
}

func loadBuiltins() ([]Sound, error) {
	var doc struct {
		Sounds []Sound `json:"sounds"`
	}
	if err := json.Unmarshal(builtinJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sounds.json: %w", err)
	}
	return doc.Sounds, nil
}

type Options struct {
	// Files holds the built-in sound files.
	Files fs.FS
	KV    repository.KV
	// Blobs stores uploaded sounds. Nil disables uploads.
	Blobs          datalayer.BlobStorage
	MaxUploadBytes int64
	IDs            generator.Generator[string]
}

type Catalog struct {
	builtins  []Sound
	files     fs.FS
	kv        repository.KV
	blobs     datalayer.BlobStorage
	maxUpload int64
	ids       generator.Generator[string]

	// mu serializes read-modify-write cycles of the customSounds key.
	mu sync.Mutex
}

func NewCatalog(opts Options) (*Catalog, error) {
	builtins, err := loadBuiltins()
	if err != nil {
		return nil, err
	}
	if opts.KV == nil {
		return nil, fmt.Errorf("a settings store is required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.IDs == nil {
		opts.IDs = &generator.CustomSoundIDGenerator{}
	}
	return &Catalog{
		builtins:  builtins,
		files:     opts.Files,
		kv:        opts.KV,
		blobs:     opts.Blobs,
		maxUpload: opts.MaxUploadBytes,
		ids:       opts.IDs,
	}, nil
}

// UploadsEnabled reports whether Add can store sounds.
func (c *Catalog) UploadsEnabled() bool {
	return c.blobs != nil
}

// List returns the built-in sounds followed by the uploaded ones.
func (c *Catalog) List(ctx context.Context) ([]Sound, error) {
	custom, err := c.customSounds(ctx)
	if errors.Is(err, ErrUnreadableList) {
		slog.Warn("listing built-in sounds only", "error", err)
	} else if err != nil {
		return nil, err
	}
	all := make([]Sound, 0, len(c.builtins)+len(custom))
	all = append(all, c.builtins...)
	return append(all, custom...), nil
}

// Find returns the metadata of one sound.
func (c *Catalog) Find(ctx context.Context, id string) (Sound, error) {
	sounds, err := c.List(ctx)
	if err != nil {
		return Sound{}, err
	}
	sound, ok := util.FindFirst(sounds, func(s Sound) bool { return s.ID == id })
	if !ok {
		return Sound{}, &MissingError{ID: id}
	}
	return sound, nil
}

// Open returns the sound and a reader over its data. The caller closes the
// reader.
func (c *Catalog) Open(ctx context.Context, id string) (Sound, io.ReadCloser, error) {
	sound, err := c.Find(ctx, id)
	if err != nil {
		return Sound{}, nil, err
	}

	if sound.Custom() {
		if c.blobs == nil {
			return Sound{}, nil, &MissingError{ID: id}
		}
		r, err := c.blobs.Get(ctx, blobKey(id))
		if err != nil {
			if errors.Is(err, datalayer.ErrBlobNotFound) {
				return Sound{}, nil, &MissingError{ID: id}
			}
			return Sound{}, nil, fmt.Errorf("failed to fetch sound %s: %w", id, err)
		}
		return sound, r, nil
	}

	if c.files == nil {
		return Sound{}, nil, &MissingError{ID: id}
	}
	f, err := c.files.Open(sound.Filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Sound{}, nil, &MissingError{ID: id}
		}
		return Sound{}, nil, fmt.Errorf("failed to open sound %s: %w", id, err)
	}
	return sound, f, nil
}

// Upload is a sound file offered by the user.
type Upload struct {
	Filename    string
	ContentType string
	// Size as claimed by the client; the data is still length checked.
	Size int64
	Data io.Reader
}

// Add validates and stores an uploaded sound.
func (c *Catalog) Add(ctx context.Context, up Upload) (Sound, error) {
	if c.blobs == nil {
		return Sound{}, ErrUploadsDisabled
	}

	reject := func(reason string) (Sound, error) {
		return Sound{}, &UploadError{Filename: up.Filename, Reason: reason}
	}
	limit := fmt.Sprintf("file size cannot exceed %d bytes", c.maxUpload)

	if up.Size > c.maxUpload {
		return reject(limit)
	}
	contentType := strings.ToLower(strings.TrimSpace(up.ContentType))
	if !strings.HasPrefix(contentType, "audio/") {
		return reject("only audio files are allowed")
	}

	data, err := io.ReadAll(io.LimitReader(up.Data, c.maxUpload+1))
	if err != nil {
		return Sound{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > c.maxUpload {
		return reject(limit)
	}
	if len(data) == 0 {
		return reject("file is empty")
	}
	if contentType == "audio/ogg" || contentType == "audio/opus" {
		if err := validateOgg(data); err != nil {
			return reject("file is not a valid Ogg stream")
		}
	}

	id, err := c.ids.Next()
	if err != nil {
		return Sound{}, fmt.Errorf("failed to generate sound ID: %w", err)
	}

	sound := Sound{
		ID:          id,
		Name:        strings.TrimSuffix(up.Filename, path.Ext(up.Filename)),
		Filename:    up.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
	}

	if err := c.blobs.Put(ctx, blobKey(id), bytes.NewReader(data), datalayer.PutOptions{
		Size:        sound.Size,
		ContentType: contentType,
	}); err != nil {
		return Sound{}, fmt.Errorf("failed to upload sound: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	custom, err := c.customSounds(ctx)
	if err == nil {
		err = c.saveCustomSounds(ctx, append(custom, sound))
	}
	if err != nil {
		if delErr := c.blobs.Delete(ctx, blobKey(id)); delErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove sound data: %w", delErr))
		}
		return Sound{}, err
	}

	slog.Info("sound added", "soundID", sound.ID, "name", sound.Name, "size", sound.Size)
	return sound, nil
}

// Delete removes an uploaded sound. When it was the selected sound the
// selection falls back to the default, and reset is true.
func (c *Catalog) Delete(ctx context.Context, id string) (reset bool, err error) {
	if !strings.HasPrefix(id, generator.CustomSoundPrefix) {
		return false, ErrBuiltin
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	custom, err := c.customSounds(ctx)
	if err != nil {
		return false, err
	}
	kept := make([]Sound, 0, len(custom))
	for _, s := range custom {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(custom) {
		return false, &MissingError{ID: id}
	}

	if c.blobs != nil {
		if err := c.blobs.Delete(ctx, blobKey(id)); err != nil && !errors.Is(err, datalayer.ErrBlobNotFound) {
			return false, fmt.Errorf("failed to delete sound data: %w", err)
		}
	}
	if err := c.saveCustomSounds(ctx, kept); err != nil {
		return false, err
	}

	current, err := settings.Load(ctx, c.kv)
	if err != nil {
		return false, err
	}
	if current.SelectedSound == id {
		if err := settings.Save(ctx, c.kv, settings.Patch{SelectedSound: settings.Ptr(settings.DefaultSound)}); err != nil {
			return false, err
		}
		reset = true
	}

	slog.Info("sound deleted", "soundID", id, "selectionReset", reset)
	return reset, nil
}

func (c *Catalog) customSounds(ctx context.Context) ([]Sound, error) {
	raw, err := c.kv.Get(ctx, settings.KeyCustomSounds)
	if err != nil {
		return nil, err
	}
	v, ok := raw[settings.KeyCustomSounds]
	if !ok || v == "" {
		return nil, nil
	}
	var custom []Sound
	if err := json.Unmarshal([]byte(v), &custom); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableList, err)
	}
	return custom, nil
}

func (c *Catalog) saveCustomSounds(ctx context.Context, custom []Sound) error {
	if custom == nil {
		custom = []Sound{}
	}
	b, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("failed to encode custom sounds: %w", err)
	}
	return c.kv.Set(ctx, map[string]string{settings.KeyCustomSounds: string(b)})
}

func blobKey(id string) string {
	return blobPrefix + "/" + id
}
