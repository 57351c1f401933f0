package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Fixture registration and resolution errors
const (
	// ErrCodeDuplicateName indicates a fixture name is already visible in the namespace chain.
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"
	// ErrCodeUnknownFixture indicates a requested fixture was never registered.
	ErrCodeUnknownFixture ErrorCode = "UNKNOWN_FIXTURE"
	// ErrCodeCyclicDependency indicates the dependency graph contains a cycle.
	ErrCodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"
	// ErrCodeScopeMismatch indicates a fixture requested a narrower-scoped fixture.
	ErrCodeScopeMismatch ErrorCode = "SCOPE_MISMATCH"
	// ErrCodeInvalidDefinition indicates a fixture definition failed validation.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// Fixture lifecycle errors
const (
	// ErrCodeFactory indicates a fixture factory failed while producing its value.
	ErrCodeFactory ErrorCode = "FACTORY_ERROR"
	// ErrCodeTeardown indicates a fixture failed while being torn down.
	ErrCodeTeardown ErrorCode = "TEARDOWN_ERROR"
)

// Generic errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)
