// Package atomicwrite provee un helper para escritura atómica de archivos.
// Un lector nunca ve una escritura parcial.
package atomicwrite

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFrom copia r a path de forma atómica.
// Pasos: tmp en el mismo directorio → io.Copy → Sync → Close → Chmod → Rename
//
// Quien lea path ve el contenido viejo o el nuevo, nunca uno a medias.
// En Windows, os.Rename puede fallar si el destino existe/está bloqueado:
// en ese caso intenta remove+rename una vez.
func WriteFrom(path string, r io.Reader, perm fs.FileMode) (n int64, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	// Cleanup en caso de error
	defer func() {
		_ = tmp.Close()
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if n, err = io.Copy(tmp, r); err != nil {
		return n, fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return n, fmt.Errorf("fsync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp: %w", err)
	}
	// Set perms antes del rename
	_ = os.Chmod(tmpPath, perm)

	if rerr := os.Rename(tmpPath, path); rerr != nil {
		_ = os.Remove(path)
		if rerr2 := os.Rename(tmpPath, path); rerr2 != nil {
			err = fmt.Errorf("rename: %v (after remove: %v)", rerr, rerr2)
			return n, err
		}
	}
	return n, nil
}
