package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/readflow/internal/config"
)

// cli — состояние, общее для всех команд: конфигурация и логгер
// заполняются в PersistentPreRunE корневой команды.
type cli struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// NewRootCommand возвращает корневую команду со всеми подкомандами.
func NewRootCommand() *cobra.Command {
	c := &cli{}

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "readflow",
		Short: "Локальная библиотека книг readflow",
		Long: `readflow хранит импортированные книги в директории данных приложения
(<app_data>/library/<id>/original.<format>), ведёт каталог в SQLite и
обслуживает локальный HTTP API для desktop-оболочки.

Конфигурация задаётся переменными окружения RF_* и файлом .env.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger, c.logCloser = config.SetupLogger(cfg)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logCloser != nil {
				_ = c.logCloser.Close()
			}
		},
	}

	rootCmd.AddCommand(newServeCommand(c))
	rootCmd.AddCommand(newImportCommand(c))
	rootCmd.AddCommand(newHashCommand(c))
	rootCmd.AddCommand(newRemoveCommand(c))
	rootCmd.AddCommand(newMigrateCommand(c))
	rootCmd.AddCommand(newReconcileCommand(c))
	rootCmd.AddCommand(newTrashCommand(c))
	rootCmd.AddCommand(newTokenCommand(c))

	return rootCmd
}
