package store

import "context"

// Corrupt записывает в ключ данные, которые не разбираются как JSON
func Corrupt(ctx context.Context, db *DB, key string) error {
	return db.put(ctx, key, []byte("{not json"))
}
