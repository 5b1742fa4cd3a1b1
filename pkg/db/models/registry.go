package models

// All lists every persisted model, in dependency order. Used for sqlite
// development databases and tests; Postgres schemas come from goose.
func All() []any {
	return []any{
		&User{},
		&Store{},
		&Category{},
		&Product{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Review{},
		&OutboxEvent{},
	}
}
