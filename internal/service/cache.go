// cache.go — LRU-кэш записей каталога с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/readflow/internal/domain/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rf_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш книг.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rf_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша книг.",
	})
)

// BookCache — LRU-кэш книг по идентификатору с автоматическим TTL.
// Хранятся значения: Get каждый раз возвращает новый экземпляр.
type BookCache struct {
	cache *expirable.LRU[string, model.Book]
}

// NewBookCache создаёт кэш на maxSize записей со временем жизни ttl.
func NewBookCache(maxSize int, ttl time.Duration) *BookCache {
	return &BookCache{cache: expirable.NewLRU[string, model.Book](maxSize, nil, ttl)}
}

// Get возвращает книгу из кэша. (nil, false) при промахе.
func (c *BookCache) Get(id string) (*model.Book, bool) {
	val, ok := c.cache.Get(id)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &val, true
}

// Set добавляет или обновляет запись.
func (c *BookCache) Set(b *model.Book) {
	c.cache.Add(b.ID, *b)
}

// Delete инвалидирует запись.
func (c *BookCache) Delete(id string) {
	c.cache.Remove(id)
}

// Len возвращает число записей в кэше.
func (c *BookCache) Len() int {
	return c.cache.Len()
}
