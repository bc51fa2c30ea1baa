package model

// MutationKind identifies one of the three supported mutations.
type MutationKind string

const (
	MutationCreate       MutationKind = "create"
	MutationSetCompleted MutationKind = "set_completed"
	MutationDelete       MutationKind = "delete"
)

// Mutation is a single request against the shared list. Only the fields
// relevant to Kind are read.
type Mutation struct {
	Kind MutationKind

	// Create
	Date    string
	Content string

	// SetCompleted and Delete
	ID        string
	Completed bool

	// IdempotencyKey optionally deduplicates repeated creates.
	IdempotencyKey string
}

// CreateRequest is the JSON body of a create call.
type CreateRequest struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

// SetCompletedRequest is the JSON body of a completion toggle. Completed is a
// pointer so a missing field can be told apart from false.
type SetCompletedRequest struct {
	ID        string `json:"id,omitempty"`
	Completed *bool  `json:"completed"`
}

// Ack is the body returned by toggle and delete calls.
type Ack struct {
	Message string `json:"message"`
}

// ErrorBody is the body returned with every failed call.
type ErrorBody struct {
	Error string `json:"error"`
}
