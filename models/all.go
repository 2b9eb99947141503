package models

// All lists the models in migration order: referenced tables first.
func All() []any {
	return []any{
		&Role{},
		&Company{},
		&User{},
		&RefreshToken{},
		&UploadBatch{},
		&ReportedYear{},
		&FinancialFact{},
	}
}
