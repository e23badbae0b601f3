package internal

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

func FullPathname(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Panic(err)
	}
	return filepath.Join(wd, filename)
}

// FileExists is os.Stat with false in place of errors
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// FileOpen is os.Open with panics in place of errors
func FileOpen(name string) *os.File {
	file, err := os.Open(name)
	if err != nil {
		log.Panic(err)
	}
	return file
}

// FileCreate is os.Create with panics in place of errors
func FileCreate(name string) *os.File {
	file, err := os.Create(name)
	if err != nil {
		log.Panic(err)
	}
	return file
}

// Close is closer.Close() with panics in place of errors
func Close(closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Panic(err)
	}
}

// MkdirAll is os.MkdirAll with panics in place of errors
func MkdirAll(path string, perm os.FileMode) {
	if err := os.MkdirAll(path, perm); err != nil {
		log.Panic(err)
	}
}

// RemoveFile deletes a temporary file, logging instead of failing when
// the file is already gone.
func RemoveFile(name string) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		log.Println("Error deleting file ", name, ": ", err)
	}
}
