package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bigkaa/readflow/internal/api/middleware"
	"github.com/bigkaa/readflow/internal/storage/catalog"
	"github.com/bigkaa/readflow/internal/storage/libdir"
)

func newMigrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции каталога",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, err := libdir.New(afero.NewOsFs(), c.cfg.DataDir, c.cfg.AppID).AppDataDir()
			if err != nil {
				return err
			}
			path := c.cfg.CatalogFile(dataDir, catalog.DefaultFileName)

			version, err := catalog.Migrate(path, c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Каталог %s: версия схемы %d\n", path, version)
			return nil
		},
	}
}

func newReconcileCommand(c *cli) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить библиотеку на диске с каталогом",
		Long: `Находит директории без записи в каталоге, записи без файла и
расхождения размера. С --cleanup удаляет осиротевшие директории старше
RF_ORPHAN_GRACE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *c.cfg
			if cmd.Flags().Changed("cleanup") {
				cfg.ReconcileCleanup = cleanup
			}
			if err := cfg.ValidateOrphanGrace(); err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), &cfg, c.logger, "")
			if err != nil {
				return err
			}
			defer a.Close()

			result, _, err := a.reconcile.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, issue := range result.Issues {
				mark := ""
				if issue.Removed {
					mark = " (удалено)"
				}
				fmt.Fprintf(out, "%-14s %s%s\n", issue.Type, issue.Path, mark)
			}
			fmt.Fprintf(out, "Книг: %d, директорий: %d, ok: %d, осиротевших: %d, без файла: %d, размер не совпал: %d\n",
				result.BooksChecked, result.DirsChecked, result.Summary.Ok,
				result.Summary.OrphanedDirs, result.Summary.MissingFiles, result.Summary.SizeMismatches)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "удалять осиротевшие директории")
	return cmd
}

func newTrashCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Очистить корзину и завершённые записи журнала",
		Long: `Окончательно удаляет книги, находящиеся в корзине дольше
RF_TRASH_RETENTION, и файлы завершённых пакетов журнала.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), c.cfg, c.logger, "")
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.trash.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Удалено книг: %d, записей журнала: %d, ошибок: %d\n",
				res.PurgedCount, res.JournalCleaned, res.Errors)
			return nil
		},
	}
}

func newTokenCommand(c *cli) *cobra.Command {
	var (
		subject string
		scopes  string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Выпустить токен доступа к API",
		Long: `Выпускает HS256-токен, подписанный RF_API_SECRET.
Desktop-оболочка передаёт его в заголовке Authorization: Bearer <token>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := middleware.IssueToken(c.cfg.APISecret, subject, splitScopes(scopes), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "desktop-shell", "subject токена")
	cmd.Flags().StringVar(&scopes, "scopes",
		middleware.ScopeRead+","+middleware.ScopeWrite, "scopes через запятую")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "срок жизни токена")
	return cmd
}

func splitScopes(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
