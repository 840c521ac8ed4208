package models

// All lists every persisted model in dependency order. Tests use it with
// AutoMigrate; production schema is owned by the SQL migrations.
func All() []any {
	return []any{
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&AuditLog{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
