// Package counter buffers product view and phone-click increments in Redis
// and periodically folds them into the products table.
package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/Marketly/internal/pkg/cache"
	"github.com/ManuelReschke/Marketly/internal/pkg/database"
)

const (
	productViewsKey       = "product:counters:views"
	productPhoneClicksKey = "product:counters:phone_clicks"
)

// AddProductView increments the pending view counter for a product.
func AddProductView(productID uint) error {
	return incr(productViewsKey, productID)
}

// AddPhoneClick increments the pending contact counter for a product.
func AddPhoneClick(productID uint) error {
	return incr(productPhoneClicksKey, productID)
}

func incr(key string, id uint) error {
	field := strconv.FormatUint(uint64(id), 10)
	return cache.GetClient().HIncrBy(context.Background(), key, field, 1).Err()
}

// FlushAll flushes views and phone clicks to the database.
func FlushAll() error {
	if err := flushHashToTable(productViewsKey, "products", "views"); err != nil {
		return err
	}
	return flushHashToTable(productPhoneClicksKey, "products", "phone_clicks")
}

type increment struct {
	id  uint64
	inc int64
}

// parseIncrements turns a drained hash into sorted id/increment pairs,
// skipping malformed fields and zero increments.
func parseIncrements(data map[string]string) []increment {
	pairs := make([]increment, 0, len(data))
	for k, v := range data {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, increment{id: id, inc: inc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	return pairs
}

// buildIncrementSQL renders one batched UPDATE. Values are parsed integers and
// are inlined so the statement reads the same on MySQL and Postgres.
func buildIncrementSQL(table, column string, pairs []increment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s = %s + CASE id", table, column, column)
	for _, p := range pairs {
		fmt.Fprintf(&b, " WHEN %d THEN %d", p.id, p.inc)
	}
	b.WriteString(" ELSE 0 END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.FormatUint(p.id, 10))
	}
	b.WriteString(")")
	return b.String()
}

// flushHashToTable drains a Redis hash and applies its increments. RENAME to
// a temporary key keeps increments that arrive during the flush.
func flushHashToTable(redisKey, table, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		if errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	pairs := parseIncrements(data)
	if len(pairs) == 0 {
		return nil
	}
	return database.GetDB().Exec(buildIncrementSQL(table, column, pairs)).Error
}
