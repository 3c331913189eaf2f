package sharemanager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrMountUnavailable is returned when the local mount point of the share
// cannot be used.
var ErrMountUnavailable = errors.New("share mount point is not usable")

// FileOperations represents operations on files inside the mounted share.
type FileOperations interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	FileExists(name string) (bool, error)
	GetFileAttributes(name string) (File, error)
}

// DirOperations represents operations on the mount point itself.
type DirOperations interface {
	CheckMount() error
}

// ShareManager gives access to the local mount of a liaison share.
type ShareManager interface {
	FileOperations
	DirOperations
	Share() *Share
}

// File describes basic file attributes.
type File struct {
	Path     string
	Size     int64 // bytes
	Mode     os.FileMode
	Modified time.Time
}

type MountedShareManager struct {
	fs    afero.Fs
	share *Share
}

// NewShareManager returns a manager for share on fs. Production code passes
// afero.NewOsFs().
func NewShareManager(fs afero.Fs, share *Share) *MountedShareManager {
	return &MountedShareManager{fs: fs, share: share}
}

func (m *MountedShareManager) Share() *Share {
	return m.share
}

func (m *MountedShareManager) path(name string) string {
	return filepath.Join(m.share.MountPath, filepath.Base(name))
}

// CheckMount verifies that the mount path is a directory this process can
// write to, by creating and removing a marker file.
func (m *MountedShareManager) CheckMount() error {
	info, err := m.fs.Stat(m.share.MountPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMountUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMountUnavailable, m.share.MountPath)
	}

	marker := StagingFileName("mountcheck", "tmp")
	if err := afero.WriteFile(m.fs, m.path(marker), []byte("idracuser"), 0644); err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", ErrMountUnavailable, m.share.MountPath, err)
	}
	if err := m.fs.Remove(m.path(marker)); err != nil {
		return fmt.Errorf("%w: removing marker file: %v", ErrMountUnavailable, err)
	}
	return nil
}

func (m *MountedShareManager) WriteFile(name string, data []byte) error {
	return afero.WriteFile(m.fs, m.path(name), data, 0644)
}

func (m *MountedShareManager) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(m.fs, m.path(name))
}

func (m *MountedShareManager) DeleteFile(name string) error {
	err := m.fs.Remove(m.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (m *MountedShareManager) FileExists(name string) (bool, error) {
	return afero.Exists(m.fs, m.path(name))
}

func (m *MountedShareManager) GetFileAttributes(name string) (File, error) {
	info, err := m.fs.Stat(m.path(name))
	if err != nil {
		return File{}, err
	}
	return File{
		Path:     m.path(name),
		Size:     info.Size(),
		Mode:     info.Mode(),
		Modified: info.ModTime(),
	}, nil
}

// StagingFileName returns a unique file name for a profile staged on the
// share, e.g. idracuser-export-<uuid>.xml.
func StagingFileName(kind, ext string) string {
	return fmt.Sprintf("idracuser-%s-%s.%s", kind, uuid.NewString(), ext)
}
