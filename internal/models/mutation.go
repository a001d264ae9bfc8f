package models

// MutationKind describes how a mutation changes the stored position
type MutationKind string

// Mutation outcomes
const (
	MutationCreated  MutationKind = "CREATED"
	MutationMerged   MutationKind = "MERGED"
	MutationReduced  MutationKind = "REDUCED"
	MutationUpdated  MutationKind = "UPDATED"
	MutationRepaired MutationKind = "REPAIRED"
)

// Mutation is the paired write set produced for one user intent. The store
// persists Position and Transaction together or not at all.
type Mutation struct {
	Kind        MutationKind
	Position    *Position
	Transaction *Transaction // nil when the quantity did not change
}

// CreatesPosition reports whether the position row must be inserted.
func (m *Mutation) CreatesPosition() bool {
	return m.Kind == MutationCreated
}
