package app

import (
	"errors"

	"github.com/hyperengineering/goalboard/internal/export"
	"github.com/hyperengineering/goalboard/internal/remotesync"
	"github.com/hyperengineering/goalboard/internal/session"
)

// Notice is the single user-visible banner.
type Notice struct {
	Err     error
	Message string
}

// Empty reports whether no notice is set.
func (n Notice) Empty() bool {
	return n.Err == nil
}

const cannotSaveMessage = "Tidak bisa menyimpan. Cek koneksi/autentikasi."

var noticeMessages = []struct {
	err error
	msg string
}{
	{remotesync.ErrBackendUnavailable, "Koneksi ke database gagal."},
	{session.ErrAuthenticationFailed, "Gagal autentikasi."},
	{remotesync.ErrNoAuthenticatedUser, "Tidak ada user terautentikasi."},
	{remotesync.ErrInvalidStoragePath, "Jalur data tidak valid."},
	{remotesync.ErrLoadFailed, "Gagal memuat data dari database."},
	{remotesync.ErrSaveFailed, "Gagal menyimpan perubahan."},
	{export.ErrExportDependencyNotReady, "Library untuk membuat file Excel belum termuat. Silakan coba beberapa saat lagi."},
}

// noticeFor maps err to its banner text.
func noticeFor(err error) Notice {
	for _, m := range noticeMessages {
		if errors.Is(err, m.err) {
			return Notice{Err: err, Message: m.msg}
		}
	}
	return Notice{Err: err, Message: err.Error()}
}
