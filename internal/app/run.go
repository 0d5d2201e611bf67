package app

// ImportOperation tracks a CLI operation that may mutate the content store.
// Operations are created in memory with ID=0. Only store-mutating commands
// persist them (giving them an auto-increment ID from the database).
type ImportOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}

// NewImportOperation creates a new in-memory import operation.
func NewImportOperation(operation, parameters string) *ImportOperation {
	return &ImportOperation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *ImportOperation) Persisted() bool {
	return op.ID != 0
}
