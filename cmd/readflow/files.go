package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bigkaa/readflow/internal/domain/model"
	"github.com/bigkaa/readflow/internal/service"
	"github.com/bigkaa/readflow/internal/storage/filestore"
)

func newImportCommand(c *cli) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "import <path>...",
		Short: "Импортировать файлы в библиотеку",
		Long: `Копирует файлы в библиотеку и регистрирует их в каталоге.
Дубликаты (по SHA-256) пропускаются, книги из корзины восстанавливаются.

С флагом --raw файлы только копируются, без каталога и дедупликации.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), c.cfg, c.logger, "")
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if raw {
				records, err := a.importer.ImportPaths(args)
				if err != nil {
					return err
				}
				for _, rec := range records {
					printRecord(out, rec)
				}
				return nil
			}

			result, err := a.library.Import(cmd.Context(), service.ImportRequest{Paths: args})
			if err != nil {
				return err
			}
			for _, b := range result.Books {
				fmt.Fprintf(out, "%s  %-6s %10s  %s\n", b.ID, b.Format, humanize.Bytes(uint64(b.FileSize)), b.Title)
			}
			fmt.Fprintf(out, "Импортировано: %d, дубликатов: %d\n", result.Summary.Imported, result.Summary.Deduped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "только копирование, без каталога")
	return cmd
}

func printRecord(out io.Writer, rec model.ImportRecord) {
	fmt.Fprintf(out, "%s  %-6s %10s  %s\n", rec.ID, rec.Format, humanize.Bytes(uint64(rec.FileSize)), rec.FilePath)
}

func newHashCommand(_ *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <path>",
		Short: "Вычислить SHA-256 и метаданные файла",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := filestore.New(afero.NewOsFs())
			name, err := filestore.FileName(args[0])
			if err != nil {
				return err
			}
			hash, size, err := store.HashFile(args[0])
			if err != nil {
				return err
			}
			_, mtime, err := store.Probe(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file_name: %s\n", name)
			fmt.Fprintf(out, "file_hash: %s\n", hash)
			fmt.Fprintf(out, "file_size: %d (%s)\n", size, humanize.Bytes(uint64(size)))
			fmt.Fprintf(out, "mtime:     %d (%s)\n", mtime, humanize.Time(time.UnixMilli(mtime)))
			fmt.Fprintf(out, "format:    %s\n", filestore.InferFormat(name))
			return nil
		},
	}
}

func newRemoveCommand(_ *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Удалить файл или директорию рекурсивно",
		Long: `Удаляет файл или директорию со всем содержимым. Отсутствующий путь
не считается ошибкой. Каталог не изменяется.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := filestore.New(afero.NewOsFs()).Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Удалено: %s\n", args[0])
			return nil
		},
	}
}
