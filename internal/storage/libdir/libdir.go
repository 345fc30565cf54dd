// Пакет libdir — определение корня библиотеки.
//
// Корень библиотеки — <app_data_dir>/library, где app_data_dir —
// платформенная директория данных приложения (XDG_DATA_HOME на Linux,
// ~/Library/Application Support на macOS, %LOCALAPPDATA% на Windows)
// с подкаталогом идентификатора приложения.
package libdir

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
)

// LibraryDirName — фиксированный подкаталог библиотеки в директории данных.
const LibraryDirName = "library"

// ErrNoDataDir — платформенная директория данных не определена.
var ErrNoDataDir = errors.New("директория данных приложения не определена")

// AppDataDir возвращает платформенную директорию данных приложения appID.
func AppDataDir(appID string) (string, error) {
	if appID == "" {
		return "", fmt.Errorf("%w: пустой идентификатор приложения", ErrNoDataDir)
	}
	if xdg.DataHome == "" {
		return "", ErrNoDataDir
	}
	return filepath.Join(xdg.DataHome, appID), nil
}

// Resolver — определяет и лениво создаёт корень библиотеки.
type Resolver struct {
	fs         afero.Fs
	appDataDir func() (string, error)
}

// New создаёт Resolver. Если appDataDir пустой, директория данных
// определяется через XDG для appID.
func New(fs afero.Fs, appDataDir, appID string) *Resolver {
	base := func() (string, error) { return AppDataDir(appID) }
	if appDataDir != "" {
		base = func() (string, error) { return appDataDir, nil }
	}
	return &Resolver{fs: fs, appDataDir: base}
}

// AppDataDir возвращает директорию данных приложения без создания.
func (r *Resolver) AppDataDir() (string, error) {
	dir, err := r.appDataDir()
	if err != nil {
		return "", fmt.Errorf("ошибка определения директории данных приложения: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("ошибка определения директории данных приложения: %w", err)
	}
	return abs, nil
}

// Resolve возвращает путь корня библиотеки, создавая его вместе
// с предками при отсутствии. Идемпотентен: повторный вызов для
// существующей директории не ошибка.
func (r *Resolver) Resolve() (string, error) {
	base, err := r.AppDataDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, LibraryDirName)
	if err := r.fs.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания директории библиотеки %s: %w", dir, err)
	}
	return dir, nil
}
